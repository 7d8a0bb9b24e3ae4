package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-registration-api/internal/models"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
	"github.com/noah-isme/course-registration-api/pkg/response"
)

// Capability names an action a role may perform.
type Capability string

const (
	CapDirectoryRead    Capability = "directory:read"
	CapRegistrationSelf Capability = "registration:self"
	CapRegistrationAny  Capability = "registration:any"
	CapRosterRead       Capability = "roster:read"
	CapCatalogWrite     Capability = "catalog:write"
)

var roleCapabilities = map[models.UserRole]map[Capability]bool{
	models.RoleStudent: {
		CapDirectoryRead:    true,
		CapRegistrationSelf: true,
	},
	models.RoleInstructor: {
		CapDirectoryRead:    true,
		CapRegistrationSelf: true,
		CapRosterRead:       true,
	},
	models.RoleRegistrar: {
		CapDirectoryRead:    true,
		CapRegistrationSelf: true,
		CapRegistrationAny:  true,
		CapRosterRead:       true,
		CapCatalogWrite:     true,
	},
}

// Can reports whether role holds capability.
func Can(role models.UserRole, capability Capability) bool {
	return roleCapabilities[role][capability]
}

// Require passes when the caller's role holds any of the capabilities.
// registration:self only matches when the :id route param is the caller.
func Require(capabilities ...Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		for _, capability := range capabilities {
			if !Can(claims.Role, capability) {
				continue
			}
			if capability == CapRegistrationSelf && c.Param("id") != claims.UserID {
				continue
			}
			c.Next()
			return
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
