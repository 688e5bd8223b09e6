package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fee-api/internal/models"
	"github.com/noah-isme/sma-fee-api/pkg/config"
	appErrors "github.com/noah-isme/sma-fee-api/pkg/errors"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "test-secret", Issuer: "sma-auth", Audience: []string{"sma-fee-api"}}
}

func TestIssueAndValidateToken(t *testing.T) {
	svc := NewTokenService(testJWTConfig(), fixedClock("2025-03-03"))
	user := models.User{ID: "admin-1", Name: "Admin", Email: "admin@example.com", Role: models.RoleAdmin}

	token, expiresAt, err := svc.Issue(user, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC), expiresAt)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestValidateTokenRejections(t *testing.T) {
	issuer := NewTokenService(testJWTConfig(), fixedClock("2025-03-03"))
	token, _, err := issuer.Issue(models.User{ID: "u1", Role: models.RoleTeacher}, time.Hour)
	require.NoError(t, err)

	later := NewTokenService(testJWTConfig(), fixedClock("2025-03-04"))
	_, err = later.ValidateToken(token)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	other := testJWTConfig()
	other.Secret = "another-secret"
	_, err = NewTokenService(other, fixedClock("2025-03-03")).ValidateToken(token)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	wrongAudience := testJWTConfig()
	wrongAudience.Audience = []string{"reporting"}
	_, err = NewTokenService(wrongAudience, fixedClock("2025-03-03")).ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRequiresKnownRole(t *testing.T) {
	cfg := testJWTConfig()
	now := fixedClock("2025-03-03")()
	claims := models.JWTClaims{
		UserID: "u1",
		Role:   "JANITOR",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings(cfg.Audience),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	_, err = NewTokenService(cfg, fixedClock("2025-03-03")).ValidateToken(token)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
