// Package events hands jobs and funding outcomes to the transport side.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const (
	SubjectJobScheduled       = "sms.jobs.scheduled"
	SubjectJobPendingApproval = "sms.jobs.pending_approval"
	SubjectFundingCredited    = "sms.funding.credited"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// JobEvent is published when a job is scheduled or parked for approval.
type JobEvent struct {
	JobID           string    `json:"job_id"`
	TenantID        string    `json:"tenant_id"`
	SenderID        string    `json:"sender_id"`
	JobType         string    `json:"job_type"`
	TotalRecipients int       `json:"total_recipients"`
	TotalSegments   int64     `json:"total_segments"`
	ScheduledAt     time.Time `json:"scheduled_at"`
}

// FundingEvent is published after a payment has been credited.
type FundingEvent struct {
	PaymentID string `json:"payment_id"`
	TenantID  string `json:"tenant_id"`
	Credits   int64  `json:"credits"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
}

// Emit JSON-encodes v and publishes it. A nil publisher drops the event.
func Emit(ctx context.Context, p Publisher, subject string, v any) error {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subject, err)
	}
	return p.Publish(ctx, subject, data)
}

// Noop discards everything; used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, []byte) error { return nil }

type Message struct {
	Subject string
	Data    []byte
}

// Recorder keeps published messages in memory.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
	Err  error
}

func (r *Recorder) Publish(_ context.Context, subject string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.msgs = append(r.msgs, Message{Subject: subject, Data: data})
	return nil
}

func (r *Recorder) Messages(subject string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.msgs {
		if subject == "" || m.Subject == subject {
			out = append(out, m)
		}
	}
	return out
}
