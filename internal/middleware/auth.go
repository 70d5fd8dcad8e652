// Package middleware provides Gin HTTP middleware for authentication,
// authorization, rate limiting, security headers, and request metrics.
//
// Middleware ordering matters and is enforced in router.go. Security headers
// run globally so they appear on all responses including errors. On the login
// endpoints rate limiting runs alone, keyed by client IP, to slow brute-force
// attempts before any crypto work. On bearer-gated routes auth runs first so
// the rate limiter can key on the member identity, then RBAC reads the actor
// from the context.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/credvault/credvault/internal/auth"
)

// ActorKey is the gin context key the authenticated actor is stored under
const ActorKey = "actor"

// AuthMiddleware validates the bearer session token and stores the resulting
// actor in the request context. Tokens are self-contained; the member's team
// grants ride in the token claims, so no database load happens here.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing authorization header",
			})
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header must start with 'Bearer '",
			})
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization token is empty",
			})
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid credentials",
			})
			return
		}

		c.Set(ActorKey, claims.Actor())
		c.Next()
	}
}

// ActorFromContext returns the authenticated actor set by AuthMiddleware,
// or nil when the request is unauthenticated.
func ActorFromContext(c *gin.Context) *auth.Actor {
	v, ok := c.Get(ActorKey)
	if !ok {
		return nil
	}
	actor, ok := v.(*auth.Actor)
	if !ok {
		return nil
	}
	return actor
}
