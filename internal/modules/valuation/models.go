// Package valuation computes market values and P&L for holdings and
// aggregates them across accounts.
package valuation

import "github.com/jmercier/folio/internal/domain"

// HoldingValuation is the result of valuing one holding against one quote.
// All monetary fields are expressed in the target currency of the fx rate
// the valuation was computed with.
type HoldingValuation struct {
	Symbol           string           `json:"symbol"`
	Name             string           `json:"name"`
	AssetType        domain.AssetType `json:"asset_type"`
	Currency         string           `json:"currency"`
	Quantity         float64          `json:"quantity"`
	EffectivePrice   float64          `json:"effective_price"`
	MarketValue      float64          `json:"market_value"`
	CostBasis        float64          `json:"cost_basis"`
	UnrealizedPnL    float64          `json:"unrealized_pnl"`
	UnrealizedPnLPct float64          `json:"unrealized_pnl_pct"`
	DailyPnL         float64          `json:"daily_pnl"`
	DailyPnLPct      float64          `json:"daily_pnl_pct"`
}

// AssetBreakdown is the per-asset-type decomposition of an aggregate
type AssetBreakdown struct {
	AssetType domain.AssetType `json:"asset_type"`
	Value     float64          `json:"value"`
	Cost      float64          `json:"cost"`
	PnL       float64          `json:"pnl"`
	Currency  string           `json:"currency"`
}

// HoldingMover is one entry of the per-holding daily P&L ranking list
type HoldingMover struct {
	Symbol      string  `json:"symbol"`
	Name        string  `json:"name"`
	DailyPnL    float64 `json:"daily_pnl"`
	DailyPnLPct float64 `json:"daily_pnl_pct"`
	MarketValue float64 `json:"market_value"`
}

// AccountAggregate is the summed valuation of one account (or, for the
// global aggregate, of all accounts composed into the global base currency)
type AccountAggregate struct {
	AccountID   string           `json:"account_id,omitempty"` // Empty for the global aggregate
	Currency    string           `json:"currency"`
	TotalValue  float64          `json:"total_value"`
	TotalCost   float64          `json:"total_cost"`
	TotalPnL    float64          `json:"total_pnl"`
	DailyPnL    float64          `json:"daily_pnl"`
	DailyPnLPct float64          `json:"daily_pnl_pct"`
	Breakdown   []AssetBreakdown `json:"breakdown"`
	Movers      []HoldingMover   `json:"movers"`
}
