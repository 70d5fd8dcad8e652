// Package middleware (rbac.go) implements role-requirement middleware.
//
// Roles ride in the session token's permission claims and are checked at
// request time against the actor AuthMiddleware put in the context. Finer
// decisions (team scoping, creator-only access, reuse fallback) live in the
// policy package and run inside handlers; this middleware gates whole routes
// that no holder of a lesser role may reach at all.

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireRole aborts with 403 unless the actor holds roleID on any team
func RequireRole(roleID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := ActorFromContext(c)
		if actor == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}

		if !actor.HasRole(roleID) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Missing required role",
				"details": "Required role: " + roleID,
			})
			return
		}

		c.Next()
	}
}

// RequireAnyRole aborts with 403 unless the actor holds at least one of the
// given roles on any team.
func RequireAnyRole(roleIDs ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := ActorFromContext(c)
		if actor == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}

		for _, roleID := range roleIDs {
			if actor.HasRole(roleID) {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Missing required role",
		})
	}
}
