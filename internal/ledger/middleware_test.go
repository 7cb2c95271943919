package ledger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"sms-gateway/internal/auth"
	"sms-gateway/internal/rbac"

	"github.com/gin-gonic/gin"
)

type fakeBalanceReader struct {
	bal Balance
	err error
}

func (f fakeBalanceReader) Balance(ctx context.Context, tenantID string) (Balance, error) {
	return f.bal, f.err
}

func serveWithBalance(t *testing.T, role string, r BalanceReader) int {
	t.Helper()
	gin.SetMode(gin.TestMode)

	e := gin.New()
	e.POST("/x", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u", "t1", role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, RequirePositiveBalance(r), func(c *gin.Context) {
		c.Status(200)
	})

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
	return w.Code
}

func TestRequirePositiveBalance_BlocksEmptyBalance(t *testing.T) {
	code := serveWithBalance(t, rbac.RoleTenantUser, fakeBalanceReader{bal: Balance{TenantID: "t1", Credits: 0}})
	if code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", code)
	}
}

func TestRequirePositiveBalance_AllowsFundedTenant(t *testing.T) {
	code := serveWithBalance(t, rbac.RoleTenantUser, fakeBalanceReader{bal: Balance{TenantID: "t1", Credits: 1}})
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequirePositiveBalance_SysAdminBypasses(t *testing.T) {
	code := serveWithBalance(t, rbac.RoleSysAdmin, fakeBalanceReader{err: errors.New("unused")})
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequirePositiveBalance_LookupFailure(t *testing.T) {
	code := serveWithBalance(t, rbac.RoleTenantAdmin, fakeBalanceReader{err: errors.New("db down")})
	if code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", code)
	}
}
