package tenant

import (
	"context"
	"errors"
	"testing"

	"sms-gateway/internal/apperr"
	"sms-gateway/internal/audit"
	"sms-gateway/internal/auth"
	"sms-gateway/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDirectory() *MemoryDirectory {
	d := NewMemoryDirectory()
	d.PutTenant(Tenant{ID: "t1", Name: "Acme", ApprovalThreshold: DefaultApprovalThreshold})
	d.PutTenant(Tenant{ID: "t2", Name: "Other", ApprovalThreshold: DefaultApprovalThreshold})
	d.PutSender(Sender{ID: "s1", TenantID: "t1", Name: "ACME", Status: SenderActive})
	d.PutSender(Sender{ID: "s2", TenantID: "t1", Name: "ACME-OLD", Status: SenderPendingVerification})
	return d
}

func TestService_UpdateApprovalThreshold(t *testing.T) {
	ctx := context.Background()
	auditRepo := audit.NewMemoryRepo()
	svc := NewService(newDirectory(), audit.NewService(auditRepo))

	got, err := svc.UpdateApprovalThreshold(ctx, "t1", 10, audit.Actor{UserID: "ops", Role: "sys_admin"})
	require.NoError(t, err)
	assert.Equal(t, 10, got.ApprovalThreshold)
	assert.Len(t, auditRepo.OfType(audit.EventTypeThresholdChanged), 1)

	_, err = svc.UpdateApprovalThreshold(ctx, "t1", -1, audit.Actor{})
	assert.True(t, apperr.IsValidation(err))

	_, err = svc.UpdateApprovalThreshold(ctx, "ghost", 5, audit.Actor{})
	assert.True(t, apperr.IsNotFound(err))
}

func TestService_APIKeyLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newDirectory(), nil)

	issued, err := svc.CreateAPIKey(ctx, "t1", "s1", "crm")
	require.NoError(t, err)
	require.NotEmpty(t, issued.Secret)
	assert.Equal(t, HashKey(issued.Secret), issued.KeyHash)
	assert.NotContains(t, issued.KeyHash, issued.Secret)

	id, err := svc.ResolveAPIKey(ctx, issued.Secret)
	require.NoError(t, err)
	assert.Equal(t, auth.KeyIdentity{KeyID: issued.ID, TenantID: "t1", SenderID: "s1"}, id)

	page, err := svc.ListAPIKeys(ctx, "t1", utils.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	require.NoError(t, svc.RevokeAPIKey(ctx, "t1", issued.ID))
	_, err = svc.ResolveAPIKey(ctx, issued.Secret)
	assert.True(t, errors.Is(err, auth.ErrInvalidAPIKey))

	assert.True(t, apperr.IsNotFound(svc.RevokeAPIKey(ctx, "t2", issued.ID)))
}

func TestService_CreateAPIKeyRequiresActiveOwnedSender(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newDirectory(), nil)

	_, err := svc.CreateAPIKey(ctx, "t1", "s2", "x")
	assert.True(t, errors.Is(err, ErrSenderInactive))
	assert.True(t, apperr.IsBusinessRule(err))

	_, err = svc.CreateAPIKey(ctx, "t2", "s1", "x")
	assert.True(t, apperr.IsNotFound(err))

	_, err = svc.CreateAPIKey(ctx, "t1", "", "x")
	assert.True(t, apperr.IsValidation(err))
}

func TestService_ResolveUnknownKey(t *testing.T) {
	svc := NewService(newDirectory(), nil)
	_, err := svc.ResolveAPIKey(context.Background(), "nope")
	assert.ErrorIs(t, err, auth.ErrInvalidAPIKey)
}
