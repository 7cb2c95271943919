// Package funding sells SMS credits through a hosted checkout and credits the
// tenant's ledger once the gateway confirms the payment.
//
// Initialize never holds the ledger lock: the transaction row is written in its
// own short unit and the gateway is called afterwards. Confirm verifies with the
// gateway first and only then, in one atomic unit, re-checks the transaction,
// moves it to its terminal status and credits the ledger.
package funding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sms-gateway/internal/apperr"
	"sms-gateway/internal/audit"
	"sms-gateway/internal/events"
	"sms-gateway/internal/ledger"
	"sms-gateway/internal/metrics"
	"sms-gateway/internal/pricing"
	"sms-gateway/internal/tenant"
	"sms-gateway/pkg/logger"
	"sms-gateway/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrTransactionNotFound = errors.New("payment transaction not found")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidRequest      = errors.New("invalid request")
)

// TierSelector picks the tier a payment amount is credited under.
type TierSelector interface {
	Select(ctx context.Context, amount decimal.Decimal) (pricing.Selection, error)
}

// Tx is the transaction-scoped view used by Confirm.
type Tx interface {
	ledger.Repository

	// LockTransaction loads a transaction and holds a write lock on it until
	// the unit ends.
	LockTransaction(ctx context.Context, id string) (Transaction, error)
	SaveTransaction(ctx context.Context, t Transaction) error
}

type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetTenant(ctx context.Context, id string) (tenant.Tenant, error)
	InsertTransaction(ctx context.Context, t Transaction) error
	// SetCheckoutURL records the gateway checkout link without touching the
	// payment status.
	SetCheckoutURL(ctx context.Context, id, url string, at time.Time) error
	// FailInProgress moves a transaction to FAILED only if it is still
	// IN_PROGRESS and reports whether it did.
	FailInProgress(ctx context.Context, id, reason string, at time.Time) (bool, error)
	GetTransaction(ctx context.Context, id string) (Transaction, error)
	ListTransactions(ctx context.Context, f Filter, p utils.Page) ([]Transaction, int, error)
	SuccessfulSince(ctx context.Context, since time.Time) ([]Transaction, error)
}

type Service struct {
	store     Store
	tiers     TierSelector
	gateway   Gateway
	locker    Locker
	publisher events.Publisher
	metrics   *metrics.Metrics
	audit     *audit.Service

	currency string
	lockTTL  time.Duration
	clock    func() time.Time
}

type Options struct {
	Currency  string
	LockTTL   time.Duration
	Locker    Locker
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Audit     *audit.Service
}

func NewService(store Store, tiers TierSelector, gateway Gateway, opts Options) *Service {
	if opts.Currency == "" {
		opts.Currency = "ETB"
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	return &Service{
		store:     store,
		tiers:     tiers,
		gateway:   gateway,
		locker:    opts.Locker,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		audit:     opts.Audit,
		currency:  opts.Currency,
		lockTTL:   opts.LockTTL,
		clock:     time.Now,
	}
}

// Initialize selects a tier for amount, records an IN_PROGRESS transaction and
// opens a checkout with the gateway.
func (s *Service) Initialize(ctx context.Context, tenantID string, amount decimal.Decimal) (InitResponse, error) {
	if !amount.IsPositive() {
		return InitResponse{}, apperr.Validation(ErrInvalidAmount, "amount must be greater than zero")
	}
	if !amount.Equal(amount.Truncate(2)) {
		return InitResponse{}, apperr.Validation(ErrInvalidAmount, "amount must have at most two decimal places")
	}

	t, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			return InitResponse{}, apperr.NotFound(err, "tenant %s not found", tenantID)
		}
		return InitResponse{}, err
	}
	if err := tenant.RequireActive(t); err != nil {
		return InitResponse{}, err
	}

	sel, err := s.tiers.Select(ctx, amount)
	if err != nil {
		return InitResponse{}, err
	}

	now := s.clock().UTC()
	tx := Transaction{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		TierID:      sel.Tier.ID,
		AmountPaid:  amount,
		Currency:    s.currency,
		SmsCredited: sel.Credits,
		Status:      StatusInProgress,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertTransaction(ctx, tx); err != nil {
		return InitResponse{}, err
	}

	res, err := s.gateway.Initialize(ctx, InitRequest{
		TxRef:    tx.ID,
		Amount:   amount,
		Currency: s.currency,
		Email:    t.Email,
		Phone:    t.Phone,
	})
	if err != nil {
		failed, serr := s.store.FailInProgress(ctx, tx.ID, err.Error(), s.clock().UTC())
		switch {
		case serr != nil:
			logger.From(ctx).Error("mark payment failed", "payment_id", tx.ID, "err", serr)
		case failed:
			s.metrics.FundingConfirmed(ctx, string(StatusFailed), 0)
		default:
			logger.From(ctx).Warn("payment settled before initialization failed", "payment_id", tx.ID)
		}
		return InitResponse{}, upstream(err, "payment initialization failed")
	}

	if err := s.store.SetCheckoutURL(ctx, tx.ID, res.CheckoutURL, s.clock().UTC()); err != nil {
		return InitResponse{}, err
	}

	logger.From(ctx).Info("payment initialized", "payment_id", tx.ID, "tenant_id", tenantID,
		"amount", amount.StringFixed(2), "sms_credits", sel.Credits)
	return InitResponse{CheckoutURL: res.CheckoutURL, TransactionID: tx.ID, SmsCredits: sel.Credits}, nil
}

// Confirm settles a transaction from the gateway's verification. It is safe to
// call any number of times: only the first settlement has an effect. A payment
// the gateway still reports as pending stays IN_PROGRESS.
func (s *Service) Confirm(ctx context.Context, txRef string) (Transaction, error) {
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return Transaction{}, apperr.Validation(ErrInvalidRequest, "transaction reference is required")
	}

	current, err := s.get(ctx, txRef)
	if err != nil {
		return Transaction{}, err
	}
	if current.Status != StatusInProgress {
		return current, nil
	}

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, confirmLockKey(txRef), s.lockTTL)
		switch {
		case errors.Is(err, utils.ErrLockHeld):
			// Another process is confirming this payment right now.
			return current, nil
		case err != nil:
			logger.From(ctx).Warn("confirm lock unavailable", "payment_id", txRef, "err", err)
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					logger.From(ctx).Warn("release confirm lock", "payment_id", txRef, "err", err)
				}
			}()
		}
	}

	v, err := s.gateway.Verify(ctx, txRef)
	if err != nil {
		return Transaction{}, upstream(err, "payment verification failed")
	}
	next := v.outcome()
	if next == StatusInProgress {
		logger.From(ctx).Info("payment not settled yet", "payment_id", txRef, "gateway_status", v.PaymentStatus)
		return current, nil
	}

	var (
		result  Transaction
		settled bool
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.LockTransaction(ctx, txRef)
		if err != nil {
			return err
		}
		if t.Status != StatusInProgress {
			result = t
			return nil
		}

		now := s.clock().UTC()
		settled = true
		t.Status = next
		t.UpdatedAt = now
		if next == StatusSuccessful {
			if _, err := ledger.Credit(ctx, tx, now, ledger.Request{
				TenantID:       t.TenantID,
				Amount:         t.SmsCredited,
				Reason:         ledger.ReasonFunding,
				ExternalRef:    t.ID,
				IdempotencyKey: ledger.FundingKey(t.ID),
			}); err != nil {
				return err
			}
		} else {
			t.FailureReason = failureReason(v)
		}
		result = t
		return tx.SaveTransaction(ctx, t)
	})
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return Transaction{}, apperr.NotFound(err, "payment transaction %s not found", txRef)
		}
		return Transaction{}, err
	}

	switch {
	case !settled:
	case result.Status == StatusSuccessful:
		s.afterCredit(ctx, result)
	default:
		s.metrics.FundingConfirmed(ctx, string(result.Status), 0)
	}
	return result, nil
}

// HandleCallback confirms the payment named in a gateway callback. The
// callback's own status is not trusted; the gateway is always asked.
func (s *Service) HandleCallback(ctx context.Context, p CallbackPayload) (Transaction, error) {
	return s.Confirm(ctx, p.TxRef)
}

// VerifyForTenant is the tenant-triggered confirmation of its own payment.
func (s *Service) VerifyForTenant(ctx context.Context, tenantID, id string) (Transaction, error) {
	if _, err := s.GetForTenant(ctx, tenantID, id); err != nil {
		return Transaction{}, err
	}
	return s.Confirm(ctx, id)
}

func (s *Service) GetForTenant(ctx context.Context, tenantID, id string) (Transaction, error) {
	t, err := s.get(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if t.TenantID != tenantID {
		return Transaction{}, apperr.NotFound(ErrTransactionNotFound, "payment transaction %s not found", id)
	}
	return t, nil
}

func (s *Service) ListForTenant(ctx context.Context, tenantID string, status PaymentStatus, p utils.Page) (utils.PageResult[Transaction], error) {
	return s.ListAll(ctx, Filter{Status: status, TenantID: tenantID}, p)
}

// ListAll lists transactions across tenants, newest first.
func (s *Service) ListAll(ctx context.Context, f Filter, p utils.Page) (utils.PageResult[Transaction], error) {
	if f.Status != "" && !f.Status.Valid() {
		return utils.PageResult[Transaction]{}, apperr.Validation(ErrInvalidRequest, "unknown payment status %q", f.Status)
	}
	f.TenantID = strings.TrimSpace(f.TenantID)
	p = p.Normalize()
	items, total, err := s.store.ListTransactions(ctx, f, p)
	if err != nil {
		return utils.PageResult[Transaction]{}, err
	}
	return utils.NewPageResult(items, total, p), nil
}

// History sums successful payments per UTC day over the last days days,
// oldest first. Days without payments are omitted.
func (s *Service) History(ctx context.Context, days int) ([]HistoryPoint, error) {
	if days <= 0 {
		return nil, apperr.Validation(ErrInvalidRequest, "days must be greater than zero")
	}
	since := s.clock().UTC().AddDate(0, 0, -days).Truncate(24 * time.Hour)

	txs, err := s.store.SuccessfulSince(ctx, since)
	if err != nil {
		return nil, err
	}

	var out []HistoryPoint
	for _, t := range txs {
		day := t.CreatedAt.UTC().Truncate(24 * time.Hour)
		if n := len(out); n > 0 && out[n-1].Day.Equal(day) {
			out[n-1].TotalAmount = out[n-1].TotalAmount.Add(t.AmountPaid)
			out[n-1].Count++
			continue
		}
		out = append(out, HistoryPoint{Day: day, TotalAmount: t.AmountPaid, Count: 1})
	}
	return out, nil
}

func (s *Service) get(ctx context.Context, id string) (Transaction, error) {
	t, err := s.store.GetTransaction(ctx, id)
	if errors.Is(err, ErrTransactionNotFound) {
		return Transaction{}, apperr.NotFound(err, "payment transaction %s not found", id)
	}
	return t, err
}

func (s *Service) afterCredit(ctx context.Context, t Transaction) {
	s.metrics.FundingConfirmed(ctx, string(t.Status), t.SmsCredited)

	ev := events.FundingEvent{
		PaymentID: t.ID,
		TenantID:  t.TenantID,
		Credits:   t.SmsCredited,
		Amount:    t.AmountPaid.StringFixed(2),
		Currency:  t.Currency,
	}
	if err := events.Emit(ctx, s.publisher, events.SubjectFundingCredited, ev); err != nil {
		logger.From(ctx).Warn("publish funding event", "payment_id", t.ID, "err", err)
	}

	if s.audit != nil {
		msg := fmt.Sprintf("%d SMS credits for %s %s", t.SmsCredited, t.AmountPaid.StringFixed(2), t.Currency)
		if err := s.audit.LogFunding(ctx, t.TenantID, t.ID, msg); err != nil {
			logger.From(ctx).Warn("audit funding", "payment_id", t.ID, "err", err)
		}
	}
	logger.From(ctx).Info("payment credited", "payment_id", t.ID, "tenant_id", t.TenantID, "sms_credits", t.SmsCredited)
}

func failureReason(v VerifyResult) string {
	if m := strings.TrimSpace(v.Message); m != "" {
		return m
	}
	return "gateway reported payment " + strings.ToLower(v.PaymentStatus)
}

func upstream(err error, msg string) error {
	if apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	return apperr.Upstream(err, "%s: %v", msg, err)
}
