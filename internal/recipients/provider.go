// Package recipients resolves the destination phone numbers of an SMS job from
// a single number, a contact group or an uploaded CSV file.
package recipients

import (
	"context"
	"errors"

	"sms-gateway/internal/apperr"
	"sms-gateway/internal/jobs"
	"sms-gateway/pkg/utils"
)

var (
	ErrGroupNotFound  = errors.New("contact group not found")
	ErrEmptyGroup     = errors.New("empty contact group")
	ErrNoValidPhones  = errors.New("no valid phone numbers")
	ErrUnreadableFile = errors.New("unreadable csv")
)

// GroupRepository reads contact groups. Lookups are tenant-scoped: a group owned
// by another tenant is reported as ErrGroupNotFound.
type GroupRepository interface {
	GetGroup(ctx context.Context, tenantID, groupID string) (Group, error)
	MemberPhones(ctx context.Context, tenantID, groupID string) ([]string, error)
}

// Provider implements jobs.RecipientProvider.
type Provider struct {
	groups GroupRepository
}

func NewProvider(groups GroupRepository) *Provider { return &Provider{groups: groups} }

var _ jobs.RecipientProvider = (*Provider)(nil)

func (p *Provider) ResolveRecipients(ctx context.Context, tenantID string, jobType jobs.JobType, ref jobs.SourceRef) ([]string, error) {
	switch jobType {
	case jobs.JobTypeSingle:
		phone := utils.NormalizePhone(ref.Phone)
		if !utils.ValidPhone(phone) {
			return nil, apperr.Validation(jobs.ErrInvalidPhone, "invalid phone number format: %q", ref.Phone)
		}
		return []string{phone}, nil

	case jobs.JobTypeGroup:
		return p.groupPhones(ctx, tenantID, ref.GroupID)

	case jobs.JobTypeBulk:
		if ref.Upload == nil {
			return nil, apperr.Validation(ErrUnreadableFile, "a CSV file is required")
		}
		phones, err := ParseCSV(ref.Upload)
		if err != nil {
			return nil, apperr.Validation(ErrUnreadableFile, "failed to parse CSV file: %v", err)
		}
		if len(phones) == 0 {
			return nil, apperr.BusinessRule(ErrNoValidPhones, "CSV file contains no valid phone numbers")
		}
		return phones, nil
	}
	return nil, apperr.Validation(jobs.ErrInvalidRequest, "unknown job type %q", jobType)
}

// groupPhones returns each valid member number once, in membership order. The
// job's recipient count, its cost and the approval decision all use this list,
// so a number listed twice is neither messaged nor billed twice.
func (p *Provider) groupPhones(ctx context.Context, tenantID, groupID string) ([]string, error) {
	if _, err := p.groups.GetGroup(ctx, tenantID, groupID); err != nil {
		if errors.Is(err, ErrGroupNotFound) {
			return nil, apperr.NotFound(err, "contact group %s not found", groupID)
		}
		return nil, err
	}

	raw, err := p.groups.MemberPhones(ctx, tenantID, groupID)
	if err != nil {
		return nil, err
	}

	var (
		out  []string
		seen = make(map[string]struct{}, len(raw))
	)
	for _, ph := range raw {
		ph = utils.NormalizePhone(ph)
		if !utils.ValidPhone(ph) {
			continue
		}
		if _, dup := seen[ph]; dup {
			continue
		}
		seen[ph] = struct{}{}
		out = append(out, ph)
	}
	if len(out) == 0 {
		return nil, apperr.BusinessRule(ErrEmptyGroup, "contact group %s has no members with valid phone numbers", groupID)
	}
	return out, nil
}
