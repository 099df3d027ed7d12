package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/passpolicy/internal/handler"
	"github.com/jwalitptl/passpolicy/pkg/auth"
)

type AuthMiddleware struct {
	tokens auth.TokenValidator
}

func NewAuthMiddleware(tokens auth.TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Authenticate verifies the bearer token and sets the actor and role in context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("missing authorization header"))
			return
		}
		if !m.identify(c) {
			return
		}
		c.Next()
	}
}

// Identify is Authenticate for routes that also serve anonymous callers. A
// request without a token passes through with no actor set; a bad token is
// still rejected.
func (m *AuthMiddleware) Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != "" && !m.identify(c) {
			return
		}
		c.Next()
	}
}

func (m *AuthMiddleware) identify(c *gin.Context) bool {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid authorization format"))
		return false
	}

	claims, err := m.tokens.ValidateToken(parts[1])
	if err != nil {
		log.Debug().Err(err).Str("request_id", c.GetString(ContextRequestID)).Msg("token rejected")
		c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token"))
		return false
	}

	c.Set(handler.ContextActor, claims.Subject)
	c.Set(handler.ContextRole, claims.Role)
	return true
}

// RequireRole rejects authenticated callers whose role is not role
func (m *AuthMiddleware) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(handler.ContextActor) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication required"))
			return
		}
		if c.GetString(handler.ContextRole) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, handler.NewErrorResponse("permission denied"))
			return
		}
		c.Next()
	}
}
