// Package reporting aggregates read-only views over the ledger.
package reporting

import (
	"context"
	"errors"
	"time"

	"sms-gateway/internal/apperr"
	"sms-gateway/internal/ledger"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// LedgerReader must only return entries of the given tenant, oldest first.
type LedgerReader interface {
	EntriesSince(ctx context.Context, tenantID string, since time.Time) ([]ledger.Entry, error)
}

type Service struct {
	ledger LedgerReader
	clock  func() time.Time
}

func NewService(l LedgerReader) *Service { return &Service{ledger: l, clock: time.Now} }

// DefaultWindow is used when a summary request carries no range.
const DefaultWindow = 30 * 24 * time.Hour

func (s *Service) CreditSummary(ctx context.Context, req CreditSummaryRequest) (CreditSummary, error) {
	if req.TenantID == "" {
		return CreditSummary{}, apperr.Validation(ErrInvalidRequest, "tenant_id is required")
	}
	if req.Range.To.IsZero() {
		req.Range.To = s.clock().UTC()
	}
	if req.Range.From.IsZero() {
		req.Range.From = req.Range.To.Add(-DefaultWindow)
	}
	if !req.Range.To.After(req.Range.From) {
		return CreditSummary{}, apperr.Validation(ErrInvalidRequest, "range end must be after its start")
	}
	if s.ledger == nil {
		return CreditSummary{}, errors.New("reporting: ledger not configured")
	}

	rows, err := s.ledger.EntriesSince(ctx, req.TenantID, req.Range.From)
	if err != nil {
		return CreditSummary{}, err
	}

	out := CreditSummary{TenantID: req.TenantID, Range: req.Range}
	first := true
	for _, e := range rows {
		if !e.CreatedAt.Before(req.Range.To) {
			break
		}
		if first {
			out.OpeningBalance = e.BalanceAfter - e.Amount
			first = false
		}
		out.ClosingBalance = e.BalanceAfter

		if e.Amount < 0 {
			out.TotalDebited += -e.Amount
		} else {
			out.TotalCredited += e.Amount
		}
		switch e.Reason {
		case ledger.ReasonJob:
			out.SegmentsSent += -e.Amount
			out.JobsCharged++
		case ledger.ReasonFunding:
			out.FundedCredits += e.Amount
			out.FundingsCredited++
		case ledger.ReasonAdminAdjustment:
			out.AdjustedCredits += e.Amount
		}
	}
	out.NetDelta = out.TotalCredited - out.TotalDebited
	return out, nil
}
