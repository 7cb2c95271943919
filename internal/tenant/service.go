package tenant

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"sms-gateway/internal/apperr"
	"sms-gateway/internal/audit"
	"sms-gateway/internal/auth"
	"sms-gateway/pkg/logger"
	"sms-gateway/pkg/utils"

	"github.com/google/uuid"
)

var (
	ErrTenantNotFound   = errors.New("tenant not found")
	ErrSenderNotFound   = errors.New("sender not found")
	ErrSenderInactive   = errors.New("sender not active")
	ErrSenderNotPending = errors.New("sender not pending verification")
	ErrSenderLocked     = errors.New("sender cannot be edited")
	ErrSenderStale      = errors.New("sender changed concurrently")
	ErrSenderInUse      = errors.New("sender referenced by jobs")
	ErrTenantInactive   = errors.New("tenant not active")
	ErrInvalidStatus    = errors.New("invalid tenant status")
	ErrAPIKeyNotFound   = errors.New("api key not found")
	ErrInvalidThreshold = errors.New("invalid approval threshold")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// Directory is the tenant/sender/api-key persistence contract.
type Directory interface {
	GetTenant(ctx context.Context, id string) (Tenant, error)
	ListTenants(ctx context.Context, p utils.Page) ([]Tenant, int, error)
	UpdateApprovalThreshold(ctx context.Context, tenantID string, threshold int, at time.Time) error
	UpdateTenantStatus(ctx context.Context, tenantID string, status Status, at time.Time) error

	GetSender(ctx context.Context, tenantID, senderID string) (Sender, error)
	FindSender(ctx context.Context, senderID string) (Sender, error)
	InsertSender(ctx context.Context, s Sender) error
	// UpdateSender fails with ErrSenderStale unless the stored status is in from.
	UpdateSender(ctx context.Context, s Sender, from ...SenderStatus) error
	DeleteSender(ctx context.Context, tenantID, senderID string) error
	ListSenders(ctx context.Context, f SenderFilter, p utils.Page) ([]Sender, int, error)

	InsertAPIKey(ctx context.Context, k APIKey) error
	FindAPIKeyByHash(ctx context.Context, hash string) (APIKey, error)
	ListAPIKeys(ctx context.Context, tenantID string, p utils.Page) ([]APIKey, int, error)
	RevokeAPIKey(ctx context.Context, tenantID, keyID string) error
}

type Service struct {
	dir   Directory
	audit *audit.Service
	clock func() time.Time
}

func NewService(dir Directory, auditSvc *audit.Service) *Service {
	return &Service{dir: dir, audit: auditSvc, clock: time.Now}
}

func (s *Service) Get(ctx context.Context, id string) (Tenant, error) {
	t, err := s.dir.GetTenant(ctx, id)
	if errors.Is(err, ErrTenantNotFound) {
		return Tenant{}, apperr.NotFound(err, "tenant %s not found", id)
	}
	return t, err
}

// RequireActive rejects work for a deactivated tenant.
func RequireActive(t Tenant) error {
	if t.Status != StatusActive {
		return apperr.BusinessRule(ErrTenantInactive, "tenant %s is not active", t.ID)
	}
	return nil
}

func (s *Service) List(ctx context.Context, p utils.Page) (utils.PageResult[Tenant], error) {
	p = p.Normalize()
	items, total, err := s.dir.ListTenants(ctx, p)
	if err != nil {
		return utils.PageResult[Tenant]{}, err
	}
	return utils.NewPageResult(items, total, p), nil
}

// UpdateStatus activates or deactivates a tenant. Inactive tenants keep their
// balance and history but cannot send or buy credits.
func (s *Service) UpdateStatus(ctx context.Context, tenantID string, status Status, actor audit.Actor) (Tenant, error) {
	if !status.Valid() {
		return Tenant{}, apperr.Validation(ErrInvalidStatus, "status must be ACTIVE or INACTIVE")
	}
	if err := s.dir.UpdateTenantStatus(ctx, tenantID, status, s.clock().UTC()); err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return Tenant{}, apperr.NotFound(err, "tenant %s not found", tenantID)
		}
		return Tenant{}, err
	}

	if s.audit != nil {
		if err := s.audit.LogAdminAction(ctx, audit.EventTypeTenantStatus, tenantID, actor, "status set to "+string(status), ""); err != nil {
			logger.From(ctx).Warn("audit tenant status", "tenant_id", tenantID, "err", err)
		}
	}
	return s.Get(ctx, tenantID)
}

// UpdateApprovalThreshold changes the recipient count above which GROUP and BULK
// jobs wait for operator approval. Zero parks every multi-recipient job.
func (s *Service) UpdateApprovalThreshold(ctx context.Context, tenantID string, threshold int, actor audit.Actor) (Tenant, error) {
	if threshold < 0 {
		return Tenant{}, apperr.Validation(ErrInvalidThreshold, "threshold must be non-negative")
	}
	if err := s.dir.UpdateApprovalThreshold(ctx, tenantID, threshold, s.clock().UTC()); err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return Tenant{}, apperr.NotFound(err, "tenant %s not found", tenantID)
		}
		return Tenant{}, err
	}

	if s.audit != nil {
		msg := fmt.Sprintf("approval threshold set to %d", threshold)
		if err := s.audit.LogAdminAction(ctx, audit.EventTypeThresholdChanged, tenantID, actor, msg, ""); err != nil {
			logger.From(ctx).Warn("audit threshold change", "tenant_id", tenantID, "err", err)
		}
	}
	return s.Get(ctx, tenantID)
}

// CreateAPIKey issues a key bound to an ACTIVE sender of the tenant.
func (s *Service) CreateAPIKey(ctx context.Context, tenantID, senderID, name string) (IssuedKey, error) {
	if strings.TrimSpace(senderID) == "" {
		return IssuedKey{}, apperr.Validation(ErrInvalidArgument, "sender id is required")
	}
	sender, err := s.dir.GetSender(ctx, tenantID, senderID)
	if err != nil {
		if errors.Is(err, ErrSenderNotFound) {
			return IssuedKey{}, apperr.NotFound(err, "sender not found")
		}
		return IssuedKey{}, err
	}
	if sender.Status != SenderActive {
		return IssuedKey{}, apperr.BusinessRule(ErrSenderInactive, "sender is not active")
	}

	secret, err := newSecret()
	if err != nil {
		return IssuedKey{}, err
	}
	k := APIKey{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		SenderID:  sender.ID,
		Name:      strings.TrimSpace(name),
		KeyHash:   HashKey(secret),
		Active:    true,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.dir.InsertAPIKey(ctx, k); err != nil {
		return IssuedKey{}, err
	}

	if s.audit != nil {
		if err := s.audit.LogAdminAction(ctx, audit.EventTypeAPIKeyCreated, tenantID, audit.Actor{}, "api key "+k.ID+" created", ""); err != nil {
			logger.From(ctx).Warn("audit api key", "tenant_id", tenantID, "err", err)
		}
	}
	return IssuedKey{APIKey: k, Secret: secret}, nil
}

func (s *Service) ListAPIKeys(ctx context.Context, tenantID string, p utils.Page) (utils.PageResult[APIKey], error) {
	p = p.Normalize()
	items, total, err := s.dir.ListAPIKeys(ctx, tenantID, p)
	if err != nil {
		return utils.PageResult[APIKey]{}, err
	}
	return utils.NewPageResult(items, total, p), nil
}

func (s *Service) RevokeAPIKey(ctx context.Context, tenantID, keyID string) error {
	err := s.dir.RevokeAPIKey(ctx, tenantID, keyID)
	if errors.Is(err, ErrAPIKeyNotFound) {
		return apperr.NotFound(err, "api key not found")
	}
	return err
}

// ResolveAPIKey implements auth.APIKeyResolver.
func (s *Service) ResolveAPIKey(ctx context.Context, raw string) (auth.KeyIdentity, error) {
	k, err := s.dir.FindAPIKeyByHash(ctx, HashKey(raw))
	if err != nil {
		if errors.Is(err, ErrAPIKeyNotFound) {
			return auth.KeyIdentity{}, auth.ErrInvalidAPIKey
		}
		return auth.KeyIdentity{}, err
	}
	if !k.Active {
		return auth.KeyIdentity{}, auth.ErrInvalidAPIKey
	}
	return auth.KeyIdentity{KeyID: k.ID, TenantID: k.TenantID, SenderID: k.SenderID}, nil
}

func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func newSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
