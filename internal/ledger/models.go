package ledger

import "time"

// Entry is an immutable append-only record of one balance change.
// Money invariant: the tenant balance never changes without a matching entry.
type Entry struct {
	ID       string    `json:"id" db:"id"`
	TenantID string    `json:"tenant_id" db:"tenant_id"`
	Type     EntryType `json:"type" db:"type"`

	// Amount is signed: credits positive, debits negative.
	Amount       int64 `json:"amount" db:"amount"`
	BalanceAfter int64 `json:"balance_after" db:"balance_after"`

	Reason Reason `json:"reason" db:"reason"`

	// ExternalRef points at the job or payment that caused the change.
	ExternalRef    string `json:"external_ref,omitempty" db:"external_ref"`
	IdempotencyKey string `json:"idempotency_key" db:"idempotency_key"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EntryType string

const (
	EntryTypeCredit EntryType = "credit"
	EntryTypeDebit  EntryType = "debit"
)

type Reason string

const (
	ReasonJob             Reason = "job"
	ReasonFunding         Reason = "funding"
	ReasonAdminAdjustment Reason = "admin_adjustment"
)

// Balance is the current prepaid SMS credit of a tenant.
type Balance struct {
	TenantID  string    `json:"tenant_id"`
	Credits   int64     `json:"credits"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Request describes one ledger mutation. Amount is always positive; the
// operation decides the sign.
type Request struct {
	TenantID       string
	Amount         int64
	Reason         Reason
	ExternalRef    string
	IdempotencyKey string
}

// JobKey is the idempotency key under which a job's segments are debited.
func JobKey(jobID string) string { return "job:" + jobID }

// FundingKey is the idempotency key under which a payment is credited.
func FundingKey(paymentID string) string { return "funding:" + paymentID }
