package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/paud-admission-api/internal/models"
	appErrors "github.com/noah-isme/paud-admission-api/pkg/errors"
	"github.com/noah-isme/paud-admission-api/pkg/response"
)

// RequireRoles enforces role-based access control for routes.
func RequireRoles(roles ...models.StaffRole) gin.HandlerFunc {
	allowed := make(map[models.StaffRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// InstitutionScope blocks staff from operating on institutions other than
// their own. Superadmins pass through.
func InstitutionScope(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if claims.Role == models.RoleSuperAdmin {
			c.Next()
			return
		}
		if target := c.Param(param); target != "" && claims.InstitutionID != "" && target != claims.InstitutionID {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
