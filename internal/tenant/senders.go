package tenant

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"sms-gateway/internal/apperr"
	"sms-gateway/internal/audit"
	"sms-gateway/pkg/logger"
	"sms-gateway/pkg/utils"

	"github.com/google/uuid"
)

const (
	maxSenderName      = 255
	maxSenderShortCode = 200
)

func (r SenderRequest) normalize() (SenderRequest, error) {
	r.Name = strings.TrimSpace(r.Name)
	r.ShortCode = strings.TrimSpace(r.ShortCode)
	switch {
	case r.Name == "":
		return r, apperr.Validation(ErrInvalidArgument, "sender name is required")
	case r.ShortCode == "":
		return r, apperr.Validation(ErrInvalidArgument, "short code is required")
	case utf8.RuneCountInString(r.Name) > maxSenderName:
		return r, apperr.Validation(ErrInvalidArgument, "sender name must be at most %d characters", maxSenderName)
	case utf8.RuneCountInString(r.ShortCode) > maxSenderShortCode:
		return r, apperr.Validation(ErrInvalidArgument, "short code must be at most %d characters", maxSenderShortCode)
	}
	return r, nil
}

// CreateSender registers a sender mask. It cannot be used until an operator
// approves it.
func (s *Service) CreateSender(ctx context.Context, tenantID string, req SenderRequest) (Sender, error) {
	req, err := req.normalize()
	if err != nil {
		return Sender{}, err
	}
	t, err := s.Get(ctx, tenantID)
	if err != nil {
		return Sender{}, err
	}
	if err := RequireActive(t); err != nil {
		return Sender{}, err
	}

	now := s.clock().UTC()
	sn := Sender{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      req.Name,
		ShortCode: req.ShortCode,
		Status:    SenderPendingVerification,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.dir.InsertSender(ctx, sn); err != nil {
		return Sender{}, err
	}
	logger.From(ctx).Info("sender submitted", "tenant_id", tenantID, "sender_id", sn.ID)
	return sn, nil
}

func (s *Service) GetSender(ctx context.Context, tenantID, senderID string) (Sender, error) {
	sn, err := s.dir.GetSender(ctx, tenantID, senderID)
	if errors.Is(err, ErrSenderNotFound) {
		return Sender{}, apperr.NotFound(err, "sender %s not found", senderID)
	}
	return sn, err
}

func (s *Service) ListSenders(ctx context.Context, tenantID string, p utils.Page) (utils.PageResult[Sender], error) {
	return s.listSenders(ctx, SenderFilter{TenantID: tenantID}, p)
}

// UpdateSender edits a pending or rejected sender and sends it back for review.
func (s *Service) UpdateSender(ctx context.Context, tenantID, senderID string, req SenderRequest) (Sender, error) {
	req, err := req.normalize()
	if err != nil {
		return Sender{}, err
	}
	sn, err := s.GetSender(ctx, tenantID, senderID)
	if err != nil {
		return Sender{}, err
	}
	if !sn.Status.Editable() {
		return Sender{}, apperr.BusinessRule(ErrSenderLocked, "cannot update sender with status %s", sn.Status)
	}

	prev := sn.Status
	sn.Name, sn.ShortCode = req.Name, req.ShortCode
	sn.Status = SenderPendingVerification
	sn.RejectionReason = ""
	sn.UpdatedAt = s.clock().UTC()
	if err := s.dir.UpdateSender(ctx, sn, prev); err != nil {
		return Sender{}, staleSender(err)
	}
	return sn, nil
}

func (s *Service) DeleteSender(ctx context.Context, tenantID, senderID string) error {
	err := s.dir.DeleteSender(ctx, tenantID, senderID)
	switch {
	case errors.Is(err, ErrSenderNotFound):
		return apperr.NotFound(err, "sender %s not found", senderID)
	case errors.Is(err, ErrSenderInUse):
		return apperr.BusinessRule(err, "sender has sent messages and cannot be deleted")
	}
	return err
}

// ListPendingSenders returns senders awaiting review across all tenants,
// oldest first.
func (s *Service) ListPendingSenders(ctx context.Context, p utils.Page) (utils.PageResult[Sender], error) {
	return s.listSenders(ctx, SenderFilter{Status: SenderPendingVerification}, p)
}

// FindSender is the operator view of a sender, not scoped to a tenant.
func (s *Service) FindSender(ctx context.Context, senderID string) (Sender, error) {
	sn, err := s.dir.FindSender(ctx, senderID)
	if errors.Is(err, ErrSenderNotFound) {
		return Sender{}, apperr.NotFound(err, "sender %s not found", senderID)
	}
	return sn, err
}

func (s *Service) ApproveSender(ctx context.Context, senderID string, actor audit.Actor) (Sender, error) {
	return s.review(ctx, senderID, SenderActive, "", actor)
}

func (s *Service) RejectSender(ctx context.Context, senderID, reason string, actor audit.Actor) (Sender, error) {
	return s.review(ctx, senderID, SenderRejected, strings.TrimSpace(reason), actor)
}

func (s *Service) review(ctx context.Context, senderID string, next SenderStatus, reason string, actor audit.Actor) (Sender, error) {
	sn, err := s.FindSender(ctx, senderID)
	if err != nil {
		return Sender{}, err
	}
	if sn.Status != SenderPendingVerification {
		return Sender{}, apperr.BusinessRule(ErrSenderNotPending, "sender is not pending verification (status %s)", sn.Status)
	}

	sn.Status = next
	sn.RejectionReason = reason
	sn.UpdatedAt = s.clock().UTC()
	if err := s.dir.UpdateSender(ctx, sn, SenderPendingVerification); err != nil {
		return Sender{}, staleSender(err)
	}

	if s.audit != nil {
		typ, msg := audit.EventTypeSenderApproved, "sender "+sn.Name+" approved"
		if next == SenderRejected {
			typ, msg = audit.EventTypeSenderRejected, "sender "+sn.Name+" rejected"
			if reason != "" {
				msg += ": " + reason
			}
		}
		if err := s.audit.LogAdminAction(ctx, typ, sn.TenantID, actor, msg, "sender_id="+sn.ID); err != nil {
			logger.From(ctx).Warn("audit sender review", "sender_id", sn.ID, "err", err)
		}
	}
	return sn, nil
}

func (s *Service) listSenders(ctx context.Context, f SenderFilter, p utils.Page) (utils.PageResult[Sender], error) {
	p = p.Normalize()
	items, total, err := s.dir.ListSenders(ctx, f, p)
	if err != nil {
		return utils.PageResult[Sender]{}, err
	}
	return utils.NewPageResult(items, total, p), nil
}

func staleSender(err error) error {
	if errors.Is(err, ErrSenderStale) {
		return apperr.BusinessRule(err, "sender was changed by another request, reload and retry")
	}
	return err
}
