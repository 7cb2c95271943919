// Package ledger owns the tenant prepaid SMS credit balance.
//
// Every mutation runs inside a caller-provided transaction through a Repository
// whose LockBalance serializes concurrent callers on the same tenant. Debit and
// Credit are plain functions over that repository so the job and funding flows
// can combine them with their own writes in one atomic unit.
package ledger

import (
	"context"
	"errors"
	"time"

	"sms-gateway/internal/apperr"

	"github.com/google/uuid"
)

var (
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrInvalidAmount      = errors.New("invalid amount")
)

// Repository is the transaction-scoped persistence contract of the ledger.
type Repository interface {
	// LockBalance returns the tenant's balance and holds a write lock on it
	// until the surrounding transaction ends.
	LockBalance(ctx context.Context, tenantID string) (int64, error)
	SetBalance(ctx context.Context, tenantID string, credits int64, at time.Time) error
	InsertEntry(ctx context.Context, e Entry) error
	FindEntryByIdempotency(ctx context.Context, tenantID, key string) (Entry, bool, error)
}

// Debit removes req.Amount credits. It fails without mutating anything when the
// balance is short. A repeated idempotency key returns the original entry.
func Debit(ctx context.Context, repo Repository, now time.Time, req Request) (Entry, error) {
	return post(ctx, repo, now, EntryTypeDebit, req)
}

// Credit adds req.Amount credits. There is no upper bound.
func Credit(ctx context.Context, repo Repository, now time.Time, req Request) (Entry, error) {
	return post(ctx, repo, now, EntryTypeCredit, req)
}

// Reserve locks the balance and checks that amount credits are available without
// spending them. Jobs parked for approval use it so they are never created while
// already unaffordable.
func Reserve(ctx context.Context, repo Repository, tenantID string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, apperr.Validation(ErrInvalidAmount, "credit amount must not be negative")
	}
	bal, err := lockBalance(ctx, repo, tenantID)
	if err != nil {
		return 0, err
	}
	if bal < amount {
		return bal, insufficient(amount, bal)
	}
	return bal, nil
}

func post(ctx context.Context, repo Repository, now time.Time, typ EntryType, req Request) (Entry, error) {
	if err := validate(req); err != nil {
		return Entry{}, err
	}

	bal, err := lockBalance(ctx, repo, req.TenantID)
	if err != nil {
		return Entry{}, err
	}

	// Checked after the lock so a concurrent duplicate waits and then sees the
	// first caller's entry.
	if existing, ok, err := repo.FindEntryByIdempotency(ctx, req.TenantID, req.IdempotencyKey); err != nil {
		return Entry{}, err
	} else if ok {
		return existing, nil
	}

	delta := req.Amount
	if typ == EntryTypeDebit {
		if bal < req.Amount {
			return Entry{}, insufficient(req.Amount, bal)
		}
		delta = -req.Amount
	}

	now = now.UTC()
	entry := Entry{
		ID:             uuid.NewString(),
		TenantID:       req.TenantID,
		Type:           typ,
		Amount:         delta,
		BalanceAfter:   bal + delta,
		Reason:         req.Reason,
		ExternalRef:    req.ExternalRef,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
	}
	if err := repo.InsertEntry(ctx, entry); err != nil {
		return Entry{}, err
	}
	if err := repo.SetBalance(ctx, req.TenantID, entry.BalanceAfter, now); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func lockBalance(ctx context.Context, repo Repository, tenantID string) (int64, error) {
	bal, err := repo.LockBalance(ctx, tenantID)
	if errors.Is(err, ErrTenantNotFound) {
		return 0, apperr.NotFound(err, "tenant %s not found", tenantID)
	}
	return bal, err
}

func validate(req Request) error {
	if req.TenantID == "" {
		return apperr.Validation(ErrInvalidAmount, "tenant id is required")
	}
	if req.Amount <= 0 {
		return apperr.Validation(ErrInvalidAmount, "credit amount must be greater than zero, got %d", req.Amount)
	}
	if req.IdempotencyKey == "" {
		return apperr.Validation(ErrInvalidAmount, "idempotency key is required")
	}
	switch req.Reason {
	case ReasonJob, ReasonFunding, ReasonAdminAdjustment:
		return nil
	}
	return apperr.Validation(ErrInvalidAmount, "unknown ledger reason %q", req.Reason)
}

func insufficient(required, available int64) error {
	return apperr.BusinessRule(ErrInsufficientCredit,
		"insufficient SMS credits: required %d, available %d", required, available)
}
