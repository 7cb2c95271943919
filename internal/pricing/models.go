package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier is one bracket of the SMS package catalogue. A funding amount buys
// floor(amount / PricePerSms) credits if that count falls inside the bracket.
type Tier struct {
	ID          string `json:"id" db:"id"`
	MinSmsCount int    `json:"min_sms_count" db:"min_sms_count"`

	// MaxSmsCount is nil for an unbounded bracket.
	MaxSmsCount *int `json:"max_sms_count,omitempty" db:"max_sms_count"`

	PricePerSms decimal.Decimal `json:"price_per_sms" db:"price_per_sms"`
	Description string          `json:"description,omitempty" db:"description"`
	Active      bool            `json:"active" db:"is_active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Contains reports whether count falls inside the tier's bracket.
func (t Tier) Contains(count int64) bool {
	if count < int64(t.MinSmsCount) {
		return false
	}
	return t.MaxSmsCount == nil || count <= int64(*t.MaxSmsCount)
}

// TierInput is the admin payload for creating or replacing a tier.
type TierInput struct {
	MinSmsCount int             `json:"min_sms_count"`
	MaxSmsCount *int            `json:"max_sms_count,omitempty"`
	PricePerSms decimal.Decimal `json:"price_per_sms"`
	Description string          `json:"description,omitempty"`
	Active      bool            `json:"active"`
}

// Selection is the outcome of choosing a tier for a funding amount.
type Selection struct {
	Tier    Tier            `json:"tier"`
	Amount  decimal.Decimal `json:"amount"`
	Credits int64           `json:"sms_credits"`
}

// Quote is the price of a requested number of SMS credits.
type Quote struct {
	TierID   string          `json:"tier_id"`
	SmsCount int64           `json:"sms_count"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}
