package ledger

import (
	"context"
	"net/http"

	"sms-gateway/internal/auth"
	"sms-gateway/internal/rbac"

	"github.com/gin-gonic/gin"
)

// BalanceReader is the minimal ledger view needed by middleware.
type BalanceReader interface {
	Balance(ctx context.Context, tenantID string) (Balance, error)
}

// RequirePositiveBalance fast-fails send requests from tenants with no credit left.
// It is only an early exit; the authoritative affordability check happens under
// the balance lock when the job is built. sys_admin bypasses.
func RequirePositiveBalance(r BalanceReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := auth.Role(c.Request.Context())
		if rbac.IsSysAdmin(role) {
			c.Next()
			return
		}

		tenantID, err := auth.TenantID(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
			return
		}

		bal, err := r.Balance(c.Request.Context(), tenantID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "balance lookup failed"})
			return
		}
		if bal.Credits <= 0 {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "insufficient SMS credits"})
			return
		}
		c.Next()
	}
}
