// Package snapshots persists the daily valuation record per account plus a
// global aggregate, and runs the scheduled "today" refresh that writes them.
package snapshots

import (
	"time"

	"github.com/jmercier/folio/internal/modules/valuation"
)

// Snapshot is the valuation record for one calendar day. AccountID nil
// denotes the global aggregate across all accounts. At most one snapshot
// exists per (date, account) pair; same-day recomputation overwrites in
// place.
type Snapshot struct {
	ID          int64                      `json:"id"`
	Date        time.Time                  `json:"date"`
	AccountID   *string                    `json:"account_id,omitempty"`
	TotalValue  float64                    `json:"total_value"`
	TotalCost   float64                    `json:"total_cost"`
	DailyPnL    float64                    `json:"daily_pnl"`
	DailyPnLPct float64                    `json:"daily_pnl_pct"`
	TotalPnL    float64                    `json:"total_pnl"`
	Currency    string                     `json:"currency"`
	Breakdown   []valuation.AssetBreakdown `json:"breakdown"`
	Movers      []valuation.HoldingMover   `json:"movers"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}

// FromAggregate builds a snapshot for the given day from an aggregation
// result. accountID nil produces the global record.
func FromAggregate(agg valuation.AccountAggregate, date time.Time, accountID *string) Snapshot {
	return Snapshot{
		Date:        date,
		AccountID:   accountID,
		TotalValue:  agg.TotalValue,
		TotalCost:   agg.TotalCost,
		DailyPnL:    agg.DailyPnL,
		DailyPnLPct: agg.DailyPnLPct,
		TotalPnL:    agg.TotalPnL,
		Currency:    agg.Currency,
		Breakdown:   agg.Breakdown,
		Movers:      agg.Movers,
	}
}
