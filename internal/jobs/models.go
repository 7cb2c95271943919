package jobs

import (
	"io"
	"time"

	"sms-gateway/internal/segment"
)

// Job is one send request: a message to a resolved list of recipients.
// TotalSegments is always TotalRecipients times the per-message segment count.
type Job struct {
	ID       string     `json:"id" db:"id"`
	TenantID string     `json:"tenant_id" db:"tenant_id"`
	SenderID string     `json:"sender_id" db:"sender_id"`
	JobType  JobType    `json:"job_type" db:"job_type"`
	Source   SourceType `json:"source_type" db:"source_type"`
	GroupID  string     `json:"group_id,omitempty" db:"group_id"`

	Message  string           `json:"message" db:"message"`
	Encoding segment.Encoding `json:"encoding" db:"encoding"`

	TotalRecipients int   `json:"total_recipients" db:"total_recipients"`
	TotalSegments   int64 `json:"total_segments" db:"total_segments"`

	ApprovalStatus ApprovalStatus `json:"approval_status" db:"approval_status"`
	Status         JobStatus      `json:"status" db:"status"`

	CreatedBy   string    `json:"created_by" db:"created_by"`
	SubmittedAt time.Time `json:"submitted_at" db:"submitted_at"`
	ScheduledAt time.Time `json:"scheduled_at" db:"scheduled_at"`

	ApprovedBy      string     `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	RejectedBy      string     `json:"rejected_by,omitempty" db:"rejected_by"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty" db:"rejected_at"`
	RejectionReason string     `json:"rejection_reason,omitempty" db:"rejection_reason"`
}

type Recipient struct {
	ID          string           `json:"id" db:"id"`
	TenantID    string           `json:"tenant_id" db:"tenant_id"`
	JobID       string           `json:"job_id" db:"job_id"`
	SenderID    string           `json:"sender_id" db:"sender_id"`
	PhoneNumber string           `json:"phone_number" db:"phone_number"`
	Message     string           `json:"message" db:"message"`
	Encoding    segment.Encoding `json:"encoding" db:"encoding"`
	Status      RecipientStatus  `json:"status" db:"status"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	SentAt      *time.Time       `json:"sent_at,omitempty" db:"sent_at"`
}

type JobType string

const (
	JobTypeSingle JobType = "SINGLE"
	JobTypeGroup  JobType = "GROUP"
	JobTypeBulk   JobType = "BULK"
)

type SourceType string

const (
	SourceAPI       SourceType = "API"
	SourceManual    SourceType = "MANUAL"
	SourceCSVUpload SourceType = "CSV_UPLOAD"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// CanTransitionTo reports whether an approval decision may move s to next.
func (s ApprovalStatus) CanTransitionTo(next ApprovalStatus) bool {
	switch s {
	case ApprovalPending:
		return next == ApprovalApproved || next == ApprovalRejected
	case ApprovalApproved, ApprovalRejected:
		return false
	}
	return false
}

type JobStatus string

const (
	StatusPendingApproval JobStatus = "PENDING_APPROVAL"
	StatusScheduled       JobStatus = "SCHEDULED"
	StatusSending         JobStatus = "SENDING"
	StatusCompleted       JobStatus = "COMPLETED"
	StatusFailed          JobStatus = "FAILED"
)

// CanTransitionTo encodes the job lifecycle. SENDING and COMPLETED are set by
// the transport side; rejection moves a parked job straight to FAILED.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case StatusPendingApproval:
		return next == StatusScheduled || next == StatusFailed
	case StatusScheduled:
		return next == StatusSending
	case StatusSending:
		return next == StatusCompleted || next == StatusFailed
	case StatusCompleted, StatusFailed:
		return false
	}
	return false
}

func (s JobStatus) Valid() bool {
	switch s {
	case StatusPendingApproval, StatusScheduled, StatusSending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

type RecipientStatus string

const (
	RecipientPending RecipientStatus = "PENDING"
	RecipientSent    RecipientStatus = "SENT"
	RecipientFailed  RecipientStatus = "FAILED"
)

// SourceRef points the RecipientProvider at the destinations of a job. Exactly
// one field is used, depending on the job type.
type SourceRef struct {
	Phone   string    // SINGLE
	GroupID string    // GROUP
	Upload  io.Reader // BULK: CSV with phone numbers in the first column
}

// Filter narrows tenant job listings.
type Filter struct {
	Status JobStatus
}
