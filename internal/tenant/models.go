package tenant

import "time"

type Tenant struct {
	ID     string `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	Status Status `json:"status" db:"status"`

	// CreditBalance is owned by the ledger; everything else only reads it.
	CreditBalance int64 `json:"credit_balance" db:"credit_balance"`

	// GROUP and BULK jobs with more recipients than this wait for approval.
	ApprovalThreshold int `json:"approval_threshold" db:"approval_threshold"`

	Email string `json:"email,omitempty" db:"email"`
	Phone string `json:"phone,omitempty" db:"phone"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive:
		return true
	}
	return false
}

// DefaultApprovalThreshold applies to tenants created without an explicit value.
const DefaultApprovalThreshold = 100

type Sender struct {
	ID        string       `json:"id" db:"id"`
	TenantID  string       `json:"tenant_id" db:"tenant_id"`
	Name      string       `json:"name" db:"name"`
	ShortCode string       `json:"short_code,omitempty" db:"short_code"`
	Status    SenderStatus `json:"status" db:"status"`

	// RejectionReason is kept until the tenant edits and resubmits the sender.
	RejectionReason string `json:"rejection_reason,omitempty" db:"rejection_reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type SenderStatus string

const (
	SenderActive              SenderStatus = "ACTIVE"
	SenderInactive            SenderStatus = "INACTIVE"
	SenderPendingVerification SenderStatus = "PENDING_VERIFICATION"
	SenderRejected            SenderStatus = "REJECTED"
)

// Editable reports whether the owning tenant may still change the sender.
// Approved senders are frozen; rejected ones can be fixed and resubmitted.
func (s SenderStatus) Editable() bool {
	switch s {
	case SenderPendingVerification, SenderRejected:
		return true
	case SenderActive, SenderInactive:
		return false
	}
	return false
}

// SenderRequest is the tenant-supplied part of a sender.
type SenderRequest struct {
	Name      string `json:"name"`
	ShortCode string `json:"short_code"`
}

type SenderFilter struct {
	TenantID string
	Status   SenderStatus
}

// APIKey authenticates machine clients sending on behalf of one sender.
// Only the SHA-256 of the secret is stored.
type APIKey struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	SenderID  string    `json:"sender_id" db:"sender_id"`
	Name      string    `json:"name" db:"name"`
	KeyHash   string    `json:"-" db:"key_hash"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IssuedKey is returned once at creation; Secret is never retrievable again.
type IssuedKey struct {
	APIKey
	Secret string `json:"api_key"`
}
