package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bingify/tokenvault/internal/auth"
)

const identityKey = "callerIdentity"

// Auth validates the Authorization header and attaches the caller identity.
type Auth struct {
	Verifier *auth.Verifier
}

// RequireUser ensures the request carries a valid bearer token.
func (m *Auth) RequireUser(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Authorization header required."})
		return
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Bearer token required."})
		return
	}
	identity, err := m.Verifier.Verify(parts[1])
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Invalid access token."})
		return
	}
	c.Set(identityKey, identity)
	c.Next()
}

// RequireAdmin gates elevated routes behind the admin claim. It assumes
// RequireUser ran earlier in the chain.
func (m *Auth) RequireAdmin(c *gin.Context) {
	identity, ok := GetIdentity(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Authentication required."})
		return
	}
	if !identity.Admin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "error_description": "Admin privilege required."})
		return
	}
	c.Next()
}

// GetIdentity exposes the authenticated caller to handlers.
func GetIdentity(c *gin.Context) (*auth.Identity, bool) {
	value, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	identity, ok := value.(*auth.Identity)
	return identity, ok
}
