package funding

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one attempt to buy SMS credits. Its ID doubles as the
// gateway's tx_ref.
type Transaction struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`
	TierID   string `json:"tier_id" db:"tier_id"`

	AmountPaid  decimal.Decimal `json:"amount_paid" db:"amount_paid"`
	Currency    string          `json:"currency" db:"currency"`
	SmsCredited int64           `json:"sms_credited" db:"sms_credited"`

	Status        PaymentStatus `json:"payment_status" db:"payment_status"`
	CheckoutURL   string        `json:"checkout_url,omitempty" db:"checkout_url"`
	FailureReason string        `json:"failure_reason,omitempty" db:"failure_reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type PaymentStatus string

const (
	StatusInProgress PaymentStatus = "IN_PROGRESS"
	StatusSuccessful PaymentStatus = "SUCCESSFUL"
	StatusFailed     PaymentStatus = "FAILED"
	StatusCanceled   PaymentStatus = "CANCELED"
)

// IsTerminal reports whether the status can no longer change.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case StatusSuccessful, StatusFailed, StatusCanceled:
		return true
	case StatusInProgress:
		return false
	}
	return false
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusInProgress, StatusSuccessful, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// InitResponse is returned to the tenant starting a top-up.
type InitResponse struct {
	CheckoutURL   string `json:"checkout_url"`
	TransactionID string `json:"transaction_id"`
	SmsCredits    int64  `json:"sms_credits"`
}

type Filter struct {
	Status   PaymentStatus
	TenantID string
}

// HistoryPoint is the total successfully paid on one UTC day.
type HistoryPoint struct {
	Day         time.Time       `json:"timestamp"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Count       int             `json:"count"`
}

// CallbackPayload is the body the gateway posts after checkout.
type CallbackPayload struct {
	TxRef  string `json:"trx_ref"`
	RefID  string `json:"ref_id"`
	Status string `json:"status"`
}
