package security

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dremio-gateway/internal/middleware"
	"dremio-gateway/pkg/response"
)

const (
	claimsKey  = "auth_claims"
	subjectKey = "auth_subject"
)

// AuthMiddleware guards the API with gateway-issued JWTs
type AuthMiddleware struct {
	jwtManager *JWTManager
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(jwtManager *JWTManager) *AuthMiddleware {
	return &AuthMiddleware{jwtManager: jwtManager}
}

// RequireAuth rejects requests without a valid bearer token
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, response.UnauthorizedResponse(err.Error(), middleware.GetCorrelationID(c)))
			c.Abort()
			return
		}

		claims, err := am.jwtManager.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, response.UnauthorizedResponse(
				"Invalid or expired token",
				middleware.GetCorrelationID(c),
			))
			c.Abort()
			return
		}

		c.Set(claimsKey, claims)
		c.Set(subjectKey, claims.Subject)
		c.Next()
	}
}

// GetClaims returns the claims stored by RequireAuth
func GetClaims(c *gin.Context) (*Claims, bool) {
	claims, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}
	userClaims, ok := claims.(*Claims)
	return userClaims, ok
}

// AllowedProtocols filters requested protocols down to those the caller's
// token permits. Without claims every protocol is allowed.
func AllowedProtocols(c *gin.Context, requested []string) (allowed, denied []string) {
	claims, ok := GetClaims(c)
	if !ok {
		return requested, nil
	}
	for _, protocol := range requested {
		if claims.AllowsProtocol(protocol) {
			allowed = append(allowed, protocol)
		} else {
			denied = append(denied, protocol)
		}
	}
	return allowed, denied
}
