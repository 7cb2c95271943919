package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sms-gateway/internal/apperr"
	"sms-gateway/internal/audit"
	"sms-gateway/pkg/logger"
	"sms-gateway/pkg/utils"
)

// Store opens ledger units of work and serves read-only queries.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
	Balance(ctx context.Context, tenantID string) (Balance, error)
	ListEntries(ctx context.Context, tenantID string, p utils.Page) ([]Entry, int, error)
	EntriesSince(ctx context.Context, tenantID string, since time.Time) ([]Entry, error)
}

// Service exposes balance reads and operator adjustments. Job and funding flows
// debit and credit through the package functions inside their own transactions.
type Service struct {
	store Store
	audit *audit.Service
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(store Store, auditSvc *audit.Service) *Service {
	return &Service{store: store, audit: auditSvc, clock: time.Now}
}

type AdjustRequest struct {
	Credits        int64  `json:"credits"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (s *Service) Balance(ctx context.Context, tenantID string) (Balance, error) {
	b, err := s.store.Balance(ctx, tenantID)
	if errors.Is(err, ErrTenantNotFound) {
		return Balance{}, apperr.NotFound(err, "tenant %s not found", tenantID)
	}
	return b, err
}

func (s *Service) Entries(ctx context.Context, tenantID string, p utils.Page) (utils.PageResult[Entry], error) {
	p = p.Normalize()
	items, total, err := s.store.ListEntries(ctx, tenantID, p)
	if err != nil {
		return utils.PageResult[Entry]{}, err
	}
	return utils.NewPageResult(items, total, p), nil
}

// EntriesSince is used by reporting to summarize usage over a window.
func (s *Service) EntriesSince(ctx context.Context, tenantID string, since time.Time) ([]Entry, error) {
	return s.store.EntriesSince(ctx, tenantID, since)
}

// Adjust grants credits to a tenant on an operator's behalf. The reason is
// mandatory and the change is audited.
func (s *Service) Adjust(ctx context.Context, tenantID string, actor audit.Actor, req AdjustRequest) (Entry, error) {
	if actor.UserID == "" {
		return Entry{}, apperr.Validation(ErrInvalidAmount, "operator identity is required")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return Entry{}, apperr.Validation(ErrInvalidAmount, "adjustment reason is required")
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return Entry{}, apperr.Validation(ErrInvalidAmount, "idempotency key is required")
	}

	var out Entry
	err := s.store.InTx(ctx, func(ctx context.Context, repo Repository) error {
		e, err := Credit(ctx, repo, s.clock(), Request{
			TenantID:       tenantID,
			Amount:         req.Credits,
			Reason:         ReasonAdminAdjustment,
			ExternalRef:    "admin:" + actor.UserID,
			IdempotencyKey: "admin:" + key,
		})
		out = e
		return err
	})
	if err != nil {
		return Entry{}, err
	}

	if s.audit != nil {
		msg := fmt.Sprintf("credited %d SMS credits: %s", req.Credits, reason)
		if err := s.audit.LogAdminAction(ctx, audit.EventTypeCreditAdjusted, tenantID, actor, msg, ""); err != nil {
			logger.From(ctx).Warn("audit credit adjustment", "tenant_id", tenantID, "err", err)
		}
	}
	return out, nil
}
