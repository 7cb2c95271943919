// Package jobs turns send requests into persisted SMS jobs and runs the
// approval workflow for jobs parked above a tenant's threshold.
//
// Every operation is one unit of work: sender and tenant checks, recipient
// resolution, the affordability check under the tenant's balance lock, the job
// and recipient rows and, when the job is approved, the ledger debit either all
// commit or all roll back.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"sms-gateway/internal/apperr"
	"sms-gateway/internal/audit"
	"sms-gateway/internal/events"
	"sms-gateway/internal/ledger"
	"sms-gateway/internal/metrics"
	"sms-gateway/internal/segment"
	"sms-gateway/internal/tenant"
	"sms-gateway/pkg/logger"
	"sms-gateway/pkg/utils"

	"github.com/google/uuid"
)

// MaxMessageLength caps a message at ten concatenated ASCII segments.
const MaxMessageLength = 1600

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrNotPending     = errors.New("job is not pending approval")
	ErrBlankMessage   = errors.New("blank message")
	ErrMessageTooLong = errors.New("message too long")
	ErrInvalidPhone   = errors.New("invalid phone number")
	ErrInvalidRequest = errors.New("invalid request")
)

// RecipientProvider resolves the destinations of a job. Implementations return
// a non-empty list of valid phone numbers or a classified error.
type RecipientProvider interface {
	ResolveRecipients(ctx context.Context, tenantID string, jobType JobType, ref SourceRef) ([]string, error)
}

// Tx is the transaction-scoped view the job builder and approval workflow need.
type Tx interface {
	ledger.Repository

	GetTenant(ctx context.Context, id string) (tenant.Tenant, error)
	GetSender(ctx context.Context, tenantID, senderID string) (tenant.Sender, error)

	InsertJob(ctx context.Context, j Job) error
	InsertRecipients(ctx context.Context, rs []Recipient) error
	// LockJob loads a job and holds a write lock on it for the rest of the unit.
	LockJob(ctx context.Context, jobID string) (Job, error)
	UpdateJobDecision(ctx context.Context, j Job) error
}

type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetJob(ctx context.Context, jobID string) (Job, error)
	ListJobs(ctx context.Context, tenantID string, f Filter, p utils.Page) ([]Job, int, error)
	ListPending(ctx context.Context, p utils.Page) ([]Job, int, error)
	ListRecipients(ctx context.Context, tenantID, jobID string, p utils.Page) ([]Recipient, int, error)
}

type Service struct {
	store      Store
	recipients RecipientProvider
	publisher  events.Publisher
	metrics    *metrics.Metrics
	audit      *audit.Service
	clock      func() time.Time
}

// NewService wires the job service. publisher, m and auditSvc may be nil.
func NewService(store Store, recipients RecipientProvider, publisher events.Publisher, m *metrics.Metrics, auditSvc *audit.Service) *Service {
	return &Service{
		store:      store,
		recipients: recipients,
		publisher:  publisher,
		metrics:    m,
		audit:      auditSvc,
		clock:      time.Now,
	}
}

type SingleRequest struct {
	SenderID    string     `json:"sender_id"`
	Phone       string     `json:"phone_number"`
	Message     string     `json:"message"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

type GroupRequest struct {
	SenderID    string     `json:"sender_id"`
	GroupID     string     `json:"group_id"`
	Message     string     `json:"message"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

type BulkRequest struct {
	SenderID    string
	Message     string
	ScheduledAt *time.Time
	File        io.Reader
}

// draft is what the three send operations have in common.
type draft struct {
	tenantID    string
	createdBy   string
	senderID    string
	message     string
	jobType     JobType
	source      SourceType
	groupID     string
	ref         SourceRef
	scheduledAt *time.Time
}

// SendSingle sends to one phone number. Single jobs never wait for approval.
// source is SourceAPI for API-key callers and SourceManual otherwise.
func (s *Service) SendSingle(ctx context.Context, tenantID, userID string, source SourceType, req SingleRequest) (Job, error) {
	phone := utils.NormalizePhone(req.Phone)
	if !utils.ValidPhone(phone) {
		return Job{}, apperr.Validation(ErrInvalidPhone, "invalid phone number format: %q", req.Phone)
	}
	if source != SourceAPI {
		source = SourceManual
	}
	return s.send(ctx, draft{
		tenantID:    tenantID,
		createdBy:   userID,
		senderID:    req.SenderID,
		message:     req.Message,
		jobType:     JobTypeSingle,
		source:      source,
		ref:         SourceRef{Phone: phone},
		scheduledAt: req.ScheduledAt,
	})
}

func (s *Service) SendToGroup(ctx context.Context, tenantID, userID string, req GroupRequest) (Job, error) {
	groupID := strings.TrimSpace(req.GroupID)
	if groupID == "" {
		return Job{}, apperr.Validation(ErrInvalidRequest, "group id is required")
	}
	return s.send(ctx, draft{
		tenantID:    tenantID,
		createdBy:   userID,
		senderID:    req.SenderID,
		message:     req.Message,
		jobType:     JobTypeGroup,
		source:      SourceManual,
		groupID:     groupID,
		ref:         SourceRef{GroupID: groupID},
		scheduledAt: req.ScheduledAt,
	})
}

func (s *Service) SendBulk(ctx context.Context, tenantID, userID string, req BulkRequest) (Job, error) {
	if req.File == nil {
		return Job{}, apperr.Validation(ErrInvalidRequest, "a CSV file is required")
	}
	return s.send(ctx, draft{
		tenantID:    tenantID,
		createdBy:   userID,
		senderID:    req.SenderID,
		message:     req.Message,
		jobType:     JobTypeBulk,
		source:      SourceCSVUpload,
		ref:         SourceRef{Upload: req.File},
		scheduledAt: req.ScheduledAt,
	})
}

func (s *Service) send(ctx context.Context, d draft) (Job, error) {
	if err := validateDraft(&d); err != nil {
		return Job{}, err
	}

	now := s.clock().UTC()
	scheduledAt := now
	if d.scheduledAt != nil && !d.scheduledAt.IsZero() {
		scheduledAt = d.scheduledAt.UTC()
	}

	var (
		job    Job
		parked bool
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.GetTenant(ctx, d.tenantID)
		if err != nil {
			return classifyDirectoryErr(err)
		}
		if err := tenant.RequireActive(t); err != nil {
			return err
		}
		sender, err := tx.GetSender(ctx, d.tenantID, d.senderID)
		if err != nil {
			return classifyDirectoryErr(err)
		}
		if sender.Status != tenant.SenderActive {
			return apperr.BusinessRule(tenant.ErrSenderInactive, "sender is not active")
		}

		phones, err := s.recipients.ResolveRecipients(ctx, d.tenantID, d.jobType, d.ref)
		if err != nil {
			return err
		}
		if len(phones) == 0 {
			// Providers report empty sources themselves; this guards the invariant.
			return apperr.BusinessRule(ErrInvalidRequest, "no recipients resolved")
		}

		seg := segment.Calculate(d.message)
		total := int64(len(phones)) * int64(seg.Segments)
		parked = requiresApproval(d.jobType, len(phones), t.ApprovalThreshold)

		// A job that will need credit later is never created while already unaffordable.
		if _, err := ledger.Reserve(ctx, tx, d.tenantID, total); err != nil {
			return err
		}

		job = Job{
			ID:              uuid.NewString(),
			TenantID:        d.tenantID,
			SenderID:        sender.ID,
			JobType:         d.jobType,
			Source:          d.source,
			GroupID:         d.groupID,
			Message:         d.message,
			Encoding:        seg.Encoding,
			TotalRecipients: len(phones),
			TotalSegments:   total,
			CreatedBy:       d.createdBy,
			SubmittedAt:     now,
			ScheduledAt:     scheduledAt,
		}
		if parked {
			job.ApprovalStatus, job.Status = ApprovalPending, StatusPendingApproval
		} else {
			job.ApprovalStatus, job.Status = ApprovalApproved, StatusScheduled
			job.ApprovedBy = d.createdBy
			job.ApprovedAt = &now
		}
		if err := tx.InsertJob(ctx, job); err != nil {
			return err
		}

		if !parked {
			if _, err := ledger.Debit(ctx, tx, now, debitFor(job)); err != nil {
				return err
			}
		}

		rs := make([]Recipient, 0, len(phones))
		for _, p := range phones {
			rs = append(rs, Recipient{
				ID:          uuid.NewString(),
				TenantID:    job.TenantID,
				JobID:       job.ID,
				SenderID:    job.SenderID,
				PhoneNumber: p,
				Message:     job.Message,
				Encoding:    job.Encoding,
				Status:      RecipientPending,
				CreatedAt:   now,
			})
		}
		return tx.InsertRecipients(ctx, rs)
	})
	if err != nil {
		return Job{}, err
	}

	s.afterCreate(ctx, job, parked)
	return job, nil
}

// Approve spends the job's credits against the tenant's current balance and
// schedules it. The pending guard makes the debit happen at most once.
func (s *Service) Approve(ctx context.Context, jobID string, actor audit.Actor) (Job, error) {
	var job Job
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		j, err := lockPending(ctx, tx, jobID, ApprovalApproved)
		if err != nil {
			return err
		}

		now := s.clock().UTC()
		if _, err := ledger.Debit(ctx, tx, now, debitFor(j)); err != nil {
			return err
		}

		j.ApprovalStatus = ApprovalApproved
		j.Status = StatusScheduled
		j.ApprovedBy = actor.UserID
		j.ApprovedAt = &now
		job = j
		return tx.UpdateJobDecision(ctx, j)
	})
	if err != nil {
		return Job{}, err
	}

	s.metrics.JobDecided(ctx, "approved", job.TotalSegments)
	s.publish(ctx, events.SubjectJobScheduled, job)
	s.logAudit(ctx, audit.EventTypeJobApproved, job, actor, fmt.Sprintf("approved, %d credits debited", job.TotalSegments))
	return job, nil
}

// Reject fails a parked job without touching credits.
func (s *Service) Reject(ctx context.Context, jobID string, actor audit.Actor, reason string) (Job, error) {
	var job Job
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		j, err := lockPending(ctx, tx, jobID, ApprovalRejected)
		if err != nil {
			return err
		}

		now := s.clock().UTC()
		j.ApprovalStatus = ApprovalRejected
		j.Status = StatusFailed
		j.RejectedBy = actor.UserID
		j.RejectedAt = &now
		j.RejectionReason = strings.TrimSpace(reason)
		job = j
		return tx.UpdateJobDecision(ctx, j)
	})
	if err != nil {
		return Job{}, err
	}

	s.metrics.JobDecided(ctx, "rejected", 0)
	s.logAudit(ctx, audit.EventTypeJobRejected, job, actor, "rejected: "+job.RejectionReason)
	return job, nil
}

// ListPending returns parked jobs across tenants, newest first.
func (s *Service) ListPending(ctx context.Context, p utils.Page) (utils.PageResult[Job], error) {
	p = p.Normalize()
	items, total, err := s.store.ListPending(ctx, p)
	if err != nil {
		return utils.PageResult[Job]{}, err
	}
	return utils.NewPageResult(items, total, p), nil
}

// Get loads any job; operator use only.
func (s *Service) Get(ctx context.Context, jobID string) (Job, error) {
	j, err := s.store.GetJob(ctx, jobID)
	if errors.Is(err, ErrJobNotFound) {
		return Job{}, apperr.NotFound(err, "job %s not found", jobID)
	}
	return j, err
}

// GetForTenant hides other tenants' jobs behind NotFound.
func (s *Service) GetForTenant(ctx context.Context, tenantID, jobID string) (Job, error) {
	j, err := s.Get(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	if j.TenantID != tenantID {
		return Job{}, apperr.NotFound(ErrJobNotFound, "job %s not found", jobID)
	}
	return j, nil
}

func (s *Service) ListForTenant(ctx context.Context, tenantID string, f Filter, p utils.Page) (utils.PageResult[Job], error) {
	if f.Status != "" && !f.Status.Valid() {
		return utils.PageResult[Job]{}, apperr.Validation(ErrInvalidRequest, "unknown job status %q", f.Status)
	}
	p = p.Normalize()
	items, total, err := s.store.ListJobs(ctx, tenantID, f, p)
	if err != nil {
		return utils.PageResult[Job]{}, err
	}
	return utils.NewPageResult(items, total, p), nil
}

func (s *Service) Recipients(ctx context.Context, tenantID, jobID string, p utils.Page) (utils.PageResult[Recipient], error) {
	if _, err := s.GetForTenant(ctx, tenantID, jobID); err != nil {
		return utils.PageResult[Recipient]{}, err
	}
	p = p.Normalize()
	items, total, err := s.store.ListRecipients(ctx, tenantID, jobID, p)
	if err != nil {
		return utils.PageResult[Recipient]{}, err
	}
	return utils.NewPageResult(items, total, p), nil
}

func validateDraft(d *draft) error {
	d.senderID = strings.TrimSpace(d.senderID)
	if d.senderID == "" {
		return apperr.Validation(ErrInvalidRequest, "sender id is required")
	}
	if strings.TrimSpace(d.message) == "" {
		return apperr.Validation(ErrBlankMessage, "message must not be blank")
	}
	if n := segment.Length(d.message); n > MaxMessageLength {
		return apperr.Validation(ErrMessageTooLong, "message is %d characters, maximum is %d", n, MaxMessageLength)
	}
	return nil
}

func requiresApproval(jobType JobType, recipients, threshold int) bool {
	switch jobType {
	case JobTypeSingle:
		return false
	case JobTypeGroup, JobTypeBulk:
		return recipients > threshold
	}
	return true
}

func lockPending(ctx context.Context, tx Tx, jobID string, next ApprovalStatus) (Job, error) {
	j, err := tx.LockJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return Job{}, apperr.NotFound(err, "job %s not found", jobID)
		}
		return Job{}, err
	}
	if !j.ApprovalStatus.CanTransitionTo(next) {
		return Job{}, apperr.BusinessRule(ErrNotPending, "job is not pending approval (status %s)", j.ApprovalStatus)
	}
	return j, nil
}

func debitFor(j Job) ledger.Request {
	return ledger.Request{
		TenantID:       j.TenantID,
		Amount:         j.TotalSegments,
		Reason:         ledger.ReasonJob,
		ExternalRef:    j.ID,
		IdempotencyKey: ledger.JobKey(j.ID),
	}
}

func classifyDirectoryErr(err error) error {
	switch {
	case errors.Is(err, tenant.ErrTenantNotFound):
		return apperr.NotFound(err, "tenant not found")
	case errors.Is(err, tenant.ErrSenderNotFound):
		return apperr.NotFound(err, "sender not found")
	}
	return err
}

func (s *Service) afterCreate(ctx context.Context, job Job, parked bool) {
	var debited int64
	subject := events.SubjectJobPendingApproval
	if !parked {
		debited = job.TotalSegments
		subject = events.SubjectJobScheduled
	}
	s.metrics.JobCreated(ctx, string(job.JobType), parked, debited)
	s.publish(ctx, subject, job)

	msg := fmt.Sprintf("%s job, %d recipients, %d segments", job.JobType, job.TotalRecipients, job.TotalSegments)
	if parked {
		msg += ", pending approval"
	}
	s.logAudit(ctx, audit.EventTypeJobSubmitted, job, audit.Actor{UserID: job.CreatedBy}, msg)
}

func (s *Service) publish(ctx context.Context, subject string, job Job) {
	ev := events.JobEvent{
		JobID:           job.ID,
		TenantID:        job.TenantID,
		SenderID:        job.SenderID,
		JobType:         string(job.JobType),
		TotalRecipients: job.TotalRecipients,
		TotalSegments:   job.TotalSegments,
		ScheduledAt:     job.ScheduledAt,
	}
	if err := events.Emit(ctx, s.publisher, subject, ev); err != nil {
		logger.From(ctx).Warn("publish job event", "job_id", job.ID, "subject", subject, "err", err)
	}
}

func (s *Service) logAudit(ctx context.Context, typ audit.EventType, job Job, actor audit.Actor, msg string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogJob(ctx, typ, job.TenantID, job.ID, actor, msg); err != nil {
		logger.From(ctx).Warn("audit job event", "job_id", job.ID, "err", err)
	}
}
