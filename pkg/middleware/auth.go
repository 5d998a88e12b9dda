package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/weiawesome/wes-dm-relay/pkg/jwt"
	"github.com/weiawesome/wes-dm-relay/pkg/response"
)

const (
	UsernameKey   = "username"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
	TokenQueryKey = "token"
)

// AuthMiddleware validates JWT access tokens issued by the relay.
type AuthMiddleware struct {
	tokens *jwt.Manager
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(tokens *jwt.Manager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// RequireAuth returns a Gin middleware that validates bearer tokens.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing authorization header")
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid authorization format")
			return
		}

		claims, err := m.tokens.Validate(strings.TrimPrefix(authHeader, BearerPrefix))
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, err.Error())
			return
		}

		c.Set(UsernameKey, claims.Username)
		c.Next()
	}
}

// Authenticate validates the token carried by a request that cannot set
// headers freely, such as a browser WebSocket handshake. The token is
// read from the "token" query parameter, then from the bearer header.
func (m *AuthMiddleware) Authenticate(c *gin.Context) (string, error) {
	token := c.Query(TokenQueryKey)
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader(AuthHeaderKey), BearerPrefix)
	}
	if token == "" {
		return "", jwt.ErrInvalidToken
	}

	claims, err := m.tokens.Validate(token)
	if err != nil {
		return "", err
	}
	c.Set(UsernameKey, claims.Username)
	return claims.Username, nil
}

// GetUsername extracts username from Gin context.
func GetUsername(c *gin.Context) string {
	if username, exists := c.Get(UsernameKey); exists {
		if s, ok := username.(string); ok {
			return s
		}
	}
	return ""
}
