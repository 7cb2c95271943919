package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
	HeaderAPIKey        = "X-API-Key"

	// RoleAPIClient is the role given to callers authenticated by API key.
	RoleAPIClient = "api_client"
)

// ErrInvalidAPIKey is returned by resolvers for unknown or revoked keys.
var ErrInvalidAPIKey = errors.New("invalid api key")

// RequireAccessToken verifies an access token and injects identity into request context.
// It does not perform RBAC checks; those belong to internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
		if raw == "" || !strings.HasPrefix(raw, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tok := strings.TrimPrefix(raw, bearerPrefix)

		claims, err := m.Verify(tok, TokenTypeAccess, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ctx := WithIdentity(c.Request.Context(), claims.UserID, claims.TenantID, claims.Role)
		c.Request = c.Request.WithContext(ctx)

		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)
		if claims.TenantID != "" {
			c.Set("tenant_id", claims.TenantID)
		}

		c.Next()
	}
}

// KeyIdentity is what an API key resolves to.
type KeyIdentity struct {
	KeyID    string
	TenantID string
	SenderID string
}

type APIKeyResolver interface {
	ResolveAPIKey(ctx context.Context, raw string) (KeyIdentity, error)
}

// RequireAPIKey authenticates machine clients by the X-API-Key header. The key id
// stands in for the user id so audit records stay attributable.
func RequireAPIKey(r APIKeyResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderAPIKey))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
			return
		}
		id, err := r.ResolveAPIKey(c.Request.Context(), raw)
		if err != nil {
			if errors.Is(err, ErrInvalidAPIKey) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "api key lookup failed"})
			return
		}

		ctx := WithIdentity(c.Request.Context(), "apikey:"+id.KeyID, id.TenantID, RoleAPIClient)
		ctx = WithSender(ctx, id.SenderID)
		c.Request = c.Request.WithContext(ctx)
		c.Set("tenant_id", id.TenantID)

		c.Next()
	}
}
