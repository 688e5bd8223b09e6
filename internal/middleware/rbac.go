package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-fee-api/internal/models"
	appErrors "github.com/noah-isme/sma-fee-api/pkg/errors"
	"github.com/noah-isme/sma-fee-api/pkg/response"
)

const (
	// AllowSelf admits the caller when the :id path parameter is their own id.
	AllowSelf = "SELF"
	// AllowGuardian admits a parent when the :id path parameter is one of
	// their children.
	AllowGuardian = "GUARDIAN"
)

// GuardianLookup reports whether parentID is the guardian of studentID.
type GuardianLookup func(ctx context.Context, parentID, studentID string) (bool, error)

// RBAC enforces role-based access control for routes.
func RBAC(allowed ...string) gin.HandlerFunc {
	return authorize(nil, allowed)
}

// RBACWithGuardian is RBAC with AllowGuardian resolved through guardians.
func RBACWithGuardian(guardians GuardianLookup, allowed ...string) gin.HandlerFunc {
	return authorize(guardians, allowed)
}

func authorize(guardians GuardianLookup, allowed []string) gin.HandlerFunc {
	allowSelf, allowGuardian := false, false
	allowedRoles := make(map[models.UserRole]struct{})
	for _, a := range allowed {
		switch a {
		case AllowSelf:
			allowSelf = true
		case AllowGuardian:
			allowGuardian = guardians != nil
		default:
			allowedRoles[models.UserRole(a)] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		claims, ok := claimsValue.(*models.JWTClaims)
		if !exists || !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowedRoles[claims.Role]; ok {
			c.Next()
			return
		}

		targetID := c.Param("id")
		if allowSelf && targetID != "" && targetID == claims.UserID {
			c.Next()
			return
		}
		if allowGuardian && targetID != "" && claims.Role == models.RoleParent {
			isGuardian, err := guardians(c.Request.Context(), claims.UserID, targetID)
			if err != nil {
				response.Error(c, appErrors.Internal(err, "failed to verify guardian"))
				c.Abort()
				return
			}
			if isGuardian {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireRoles is a helper that accepts a list of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}
