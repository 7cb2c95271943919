package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events. It is append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records internal audit information. Records are not exposed to tenant users.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.TenantID == "" && !e.Type.tenantless() {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Actor identifies who caused an audited change.
type Actor struct {
	UserID string
	Role   string
	IP     string
}

func (s *Service) LogJob(ctx context.Context, typ EventType, tenantID, jobID string, actor Actor, message string) error {
	return s.Append(ctx, Event{
		TenantID:    tenantID,
		Type:        typ,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		IPAddress:   actor.IP,
		JobID:       jobID,
		Message:     message,
	})
}

func (s *Service) LogFunding(ctx context.Context, tenantID, paymentID, message string) error {
	return s.Append(ctx, Event{
		TenantID:  tenantID,
		Type:      EventTypeFundingCredited,
		PaymentID: paymentID,
		Message:   message,
	})
}

// LogAdminAction records an operator change such as a manual credit adjustment
// or threshold update.
func (s *Service) LogAdminAction(ctx context.Context, typ EventType, tenantID string, actor Actor, message, metadata string) error {
	return s.Append(ctx, Event{
		TenantID:    tenantID,
		Type:        typ,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		IPAddress:   actor.IP,
		Message:     message,
		Metadata:    metadata,
	})
}

func (s *Service) LogTierChange(ctx context.Context, tierID string, actor Actor, message string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeTierChanged,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		IPAddress:   actor.IP,
		TierID:      tierID,
		Message:     message,
	})
}
