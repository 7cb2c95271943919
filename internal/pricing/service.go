// Package pricing holds the SMS package tier catalogue and selects the tier a
// funding payment is credited under.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"sms-gateway/internal/apperr"
	"sms-gateway/internal/audit"
	"sms-gateway/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var (
	ErrTierNotFound = errors.New("tier not found")
	ErrInvalidTier  = errors.New("invalid tier")
)

// Repository persists the tier catalogue.
type Repository interface {
	// ActiveTiers returns active tiers ordered by price ascending.
	ActiveTiers(ctx context.Context) ([]Tier, error)
	ListTiers(ctx context.Context) ([]Tier, error)
	GetTier(ctx context.Context, id string) (Tier, error)
	InsertTier(ctx context.Context, t Tier) error
	UpdateTier(ctx context.Context, t Tier) error
}

type Service struct {
	repo     Repository
	audit    *audit.Service
	currency string
	clock    func() time.Time
}

// NewService builds the catalogue service. auditSvc may be nil.
func NewService(repo Repository, auditSvc *audit.Service, currency string) *Service {
	if currency == "" {
		currency = "ETB"
	}
	return &Service{repo: repo, audit: auditSvc, currency: currency, clock: time.Now}
}

func (s *Service) Currency() string { return s.currency }

// Select chooses the tier for a funding amount from the active catalogue.
func (s *Service) Select(ctx context.Context, amount decimal.Decimal) (Selection, error) {
	tiers, err := s.repo.ActiveTiers(ctx)
	if err != nil {
		return Selection{}, err
	}
	return Select(tiers, amount, s.currency)
}

// Quote prices count credits using the cheapest active tier whose bracket
// contains count.
func (s *Service) Quote(ctx context.Context, count int64) (Quote, error) {
	if count <= 0 {
		return Quote{}, apperr.Validation(ErrInvalidTier, "sms count must be greater than zero")
	}
	tiers, err := s.repo.ActiveTiers(ctx)
	if err != nil {
		return Quote{}, err
	}
	for _, t := range tiers {
		if t.Contains(count) {
			return Quote{
				TierID:   t.ID,
				SmsCount: count,
				Price:    t.PricePerSms.Mul(decimal.NewFromInt(count)),
				Currency: s.currency,
			}, nil
		}
	}
	return Quote{}, apperr.BusinessRule(ErrNoActiveTier, "no pricing tier available for %d SMS", count)
}

// ListActive is the public catalogue.
func (s *Service) ListActive(ctx context.Context) ([]Tier, error) {
	return s.repo.ActiveTiers(ctx)
}

func (s *Service) List(ctx context.Context) ([]Tier, error) {
	return s.repo.ListTiers(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (Tier, error) {
	t, err := s.repo.GetTier(ctx, id)
	if errors.Is(err, ErrTierNotFound) {
		return Tier{}, apperr.NotFound(err, "pricing tier %s not found", id)
	}
	return t, err
}

func (s *Service) Create(ctx context.Context, actor audit.Actor, in TierInput) (Tier, error) {
	if err := validateInput(in); err != nil {
		return Tier{}, err
	}
	now := s.clock().UTC()
	t := Tier{
		ID:          uuid.NewString(),
		MinSmsCount: in.MinSmsCount,
		MaxSmsCount: in.MaxSmsCount,
		PricePerSms: in.PricePerSms,
		Description: strings.TrimSpace(in.Description),
		Active:      in.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.InsertTier(ctx, t); err != nil {
		return Tier{}, err
	}
	s.logChange(ctx, t, actor, "created")
	return t, nil
}

// Update replaces every editable field of a tier.
func (s *Service) Update(ctx context.Context, actor audit.Actor, id string, in TierInput) (Tier, error) {
	if err := validateInput(in); err != nil {
		return Tier{}, err
	}
	t, err := s.Get(ctx, id)
	if err != nil {
		return Tier{}, err
	}
	t.MinSmsCount = in.MinSmsCount
	t.MaxSmsCount = in.MaxSmsCount
	t.PricePerSms = in.PricePerSms
	t.Description = strings.TrimSpace(in.Description)
	t.Active = in.Active
	t.UpdatedAt = s.clock().UTC()

	if err := s.repo.UpdateTier(ctx, t); err != nil {
		if errors.Is(err, ErrTierNotFound) {
			return Tier{}, apperr.NotFound(err, "pricing tier %s not found", id)
		}
		return Tier{}, err
	}
	s.logChange(ctx, t, actor, "updated")
	return t, nil
}

type seedFile struct {
	Tiers []struct {
		MinSmsCount int    `yaml:"min_sms_count"`
		MaxSmsCount *int   `yaml:"max_sms_count"`
		PricePerSms string `yaml:"price_per_sms"`
		Description string `yaml:"description"`
		Active      *bool  `yaml:"active"`
	} `yaml:"tiers"`
}

// SeedFromYAML inserts the tiers listed in r when the catalogue is empty and
// returns how many were inserted. A non-empty catalogue is left alone.
func (s *Service) SeedFromYAML(ctx context.Context, r io.Reader) (int, error) {
	existing, err := s.repo.ListTiers(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	var f seedFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("decode tier seed: %w", err)
	}

	system := audit.Actor{UserID: "system", Role: "seed"}
	for i, row := range f.Tiers {
		price, err := decimal.NewFromString(strings.TrimSpace(row.PricePerSms))
		if err != nil {
			return i, fmt.Errorf("tier %d: price_per_sms: %w", i, err)
		}
		active := true
		if row.Active != nil {
			active = *row.Active
		}
		if _, err := s.Create(ctx, system, TierInput{
			MinSmsCount: row.MinSmsCount,
			MaxSmsCount: row.MaxSmsCount,
			PricePerSms: price,
			Description: row.Description,
			Active:      active,
		}); err != nil {
			return i, fmt.Errorf("tier %d: %w", i, err)
		}
	}
	return len(f.Tiers), nil
}

func validateInput(in TierInput) error {
	if in.MinSmsCount < 1 {
		return apperr.Validation(ErrInvalidTier, "min_sms_count must be at least 1")
	}
	if in.MaxSmsCount != nil && *in.MaxSmsCount < in.MinSmsCount {
		return apperr.Validation(ErrInvalidTier, "max_sms_count must not be below min_sms_count")
	}
	if !in.PricePerSms.IsPositive() {
		return apperr.Validation(ErrInvalidTier, "price_per_sms must be greater than zero")
	}
	return nil
}

func (s *Service) logChange(ctx context.Context, t Tier, actor audit.Actor, verb string) {
	if s.audit == nil {
		return
	}
	bracket := fmt.Sprintf("%d+", t.MinSmsCount)
	if t.MaxSmsCount != nil {
		bracket = fmt.Sprintf("%d-%d", t.MinSmsCount, *t.MaxSmsCount)
	}
	msg := fmt.Sprintf("tier %s: %s SMS at %s %s, active=%t", verb, bracket, t.PricePerSms.String(), s.currency, t.Active)
	if err := s.audit.LogTierChange(ctx, t.ID, actor, msg); err != nil {
		logger.From(ctx).Warn("audit tier change", "tier_id", t.ID, "err", err)
	}
}
