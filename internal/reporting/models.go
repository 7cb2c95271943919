package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CreditSummaryRequest asks for a tenant's credit movement over a window.
// Tenant isolation: TenantID is required.
type CreditSummaryRequest struct {
	TenantID string    `json:"tenant_id"`
	Range    TimeRange `json:"range"`
}

// CreditSummary is derived from immutable ledger entries only.
type CreditSummary struct {
	TenantID string    `json:"tenant_id"`
	Range    TimeRange `json:"range"`

	TotalDebited  int64 `json:"total_debited"`
	TotalCredited int64 `json:"total_credited"`
	NetDelta      int64 `json:"net_delta"`

	SegmentsSent     int64 `json:"segments_sent"`
	FundedCredits    int64 `json:"funded_credits"`
	AdjustedCredits  int64 `json:"adjusted_credits"`
	JobsCharged      int   `json:"jobs_charged"`
	FundingsCredited int   `json:"fundings_credited"`

	OpeningBalance int64 `json:"opening_balance"`
	ClosingBalance int64 `json:"closing_balance"`
}
