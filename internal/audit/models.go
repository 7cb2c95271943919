package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Events are never updated or deleted. Writes are best-effort; callers never fail
// a committed money operation because auditing failed.
type Event struct {
	ID       string    `json:"id" db:"id"`
	TenantID string    `json:"tenant_id,omitempty" db:"tenant_id"`
	Type     EventType `json:"type" db:"type"`

	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress   string `json:"ip_address,omitempty" db:"ip_address"`

	JobID     string `json:"job_id,omitempty" db:"job_id"`
	PaymentID string `json:"payment_id,omitempty" db:"payment_id"`
	TierID    string `json:"tier_id,omitempty" db:"tier_id"`

	Message  string `json:"message,omitempty" db:"message"`
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeJobSubmitted     EventType = "sms_job_submitted"
	EventTypeJobApproved      EventType = "sms_job_approved"
	EventTypeJobRejected      EventType = "sms_job_rejected"
	EventTypeFundingCredited  EventType = "funding_credited"
	EventTypeCreditAdjusted   EventType = "credit_adjusted"
	EventTypeTierChanged      EventType = "pricing_tier_changed"
	EventTypeThresholdChanged EventType = "approval_threshold_changed"
	EventTypeAPIKeyCreated    EventType = "api_key_created"
	EventTypeSenderApproved   EventType = "sender_approved"
	EventTypeSenderRejected   EventType = "sender_rejected"
	EventTypeTenantStatus     EventType = "tenant_status_changed"
)

// tenantless events concern the platform catalogue rather than one tenant.
func (t EventType) tenantless() bool { return t == EventTypeTierChanged }
