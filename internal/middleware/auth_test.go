package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-fee-api/internal/models"
	appErrors "github.com/noah-isme/sma-fee-api/pkg/errors"
)

type staticValidator map[string]*models.JWTClaims

func (v staticValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	claims, ok := v[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return claims, nil
}

func newProtectedRouter(guardians GuardianLookup) *gin.Engine {
	gin.SetMode(gin.TestMode)
	tokens := staticValidator{
		"admin":  {UserID: "a1", Role: models.RoleAdmin},
		"s1":     {UserID: "s1", Role: models.RoleStudent},
		"s2":     {UserID: "s2", Role: models.RoleStudent},
		"parent": {UserID: "p1", Role: models.RoleParent},
	}
	router := gin.New()
	router.GET("/students/:id/fee-status", JWT(tokens), RBACWithGuardian(guardians, string(models.RoleAdmin), AllowSelf, AllowGuardian), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func call(router *gin.Engine, path, authorization string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec.Code
}

func TestJWTAndRBAC(t *testing.T) {
	guardians := func(_ context.Context, parentID, studentID string) (bool, error) {
		return parentID == "p1" && studentID == "s1", nil
	}
	router := newProtectedRouter(guardians)

	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"missing header", "/students/s1/fee-status", "", http.StatusUnauthorized},
		{"malformed header", "/students/s1/fee-status", "Token admin", http.StatusUnauthorized},
		{"unknown token", "/students/s1/fee-status", "Bearer nope", http.StatusUnauthorized},
		{"admin", "/students/s1/fee-status", "Bearer admin", http.StatusNoContent},
		{"self", "/students/s1/fee-status", "Bearer s1", http.StatusNoContent},
		{"other student", "/students/s1/fee-status", "Bearer s2", http.StatusForbidden},
		{"guardian", "/students/s1/fee-status", "bearer parent", http.StatusNoContent},
		{"not their child", "/students/s2/fee-status", "Bearer parent", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, call(router, tc.path, tc.header))
		})
	}
}

func TestRBACGuardianLookupFailure(t *testing.T) {
	router := newProtectedRouter(func(context.Context, string, string) (bool, error) {
		return false, errors.New("db down")
	})
	assert.Equal(t, http.StatusInternalServerError, call(router, "/students/s1/fee-status", "Bearer parent"))
}

func TestRBACWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/x/:id", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	assert.Equal(t, http.StatusUnauthorized, call(router, "/x/1", ""))
}
