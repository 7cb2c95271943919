package funding

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// Gateway is the hosted checkout provider. Transport and protocol failures are
// returned as apperr Upstream errors.
type Gateway interface {
	Initialize(ctx context.Context, req InitRequest) (InitResult, error)
	Verify(ctx context.Context, txRef string) (VerifyResult, error)
}

type InitRequest struct {
	TxRef    string
	Amount   decimal.Decimal
	Currency string
	Email    string
	Phone    string
}

type InitResult struct {
	CheckoutURL string
	Status      string
}

// VerifyResult carries the gateway's envelope status and the payment's own status.
type VerifyResult struct {
	OverallStatus string
	PaymentStatus string
	Message       string
}

// outcome maps a verification to the status the transaction moves to.
// IN_PROGRESS means "not settled yet, try again later".
func (v VerifyResult) outcome() PaymentStatus {
	overall := strings.ToLower(strings.TrimSpace(v.OverallStatus))
	payment := strings.ToLower(strings.TrimSpace(v.PaymentStatus))
	switch {
	case overall == "success" && payment == "success":
		return StatusSuccessful
	case payment == "failed":
		return StatusFailed
	case payment == "cancelled" || payment == "canceled":
		return StatusCanceled
	}
	return StatusInProgress
}
