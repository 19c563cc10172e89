package domain

import (
	"context"
	"time"
)

// MarketDataProvider defines the market-data collaborator the valuation core
// depends on. Implementations must tolerate partial failure: a symbol or
// pair that cannot be fetched is omitted (or returns an empty series), and
// only a wholesale transport failure surfaces as an error.
type MarketDataProvider interface {
	// FetchQuotes returns current quotes for the given symbols. The result
	// may contain fewer entries than requested.
	FetchQuotes(ctx context.Context, symbols []string) (map[string]Quote, error)

	// FetchDailyCloses returns the daily close series for one symbol within
	// [from, to]. Symbols with no data return an empty series, not an error.
	FetchDailyCloses(ctx context.Context, symbol string, from, to time.Time) ([]PricePoint, error)

	// FetchLiveRate returns the current rate for a currency pair such as "USDJPY".
	FetchLiveRate(ctx context.Context, pair string) (float64, error)

	// FetchHistoricalRateSeries returns the daily rate series for a currency
	// pair within [from, to]. Pairs with no data return an empty series.
	FetchHistoricalRateSeries(ctx context.Context, pair string, from, to time.Time) ([]PricePoint, error)
}

// ChangeNotifier receives fire-and-forget signals after snapshot writes.
// Failures are swallowed by implementations; callers never check them.
type ChangeNotifier interface {
	NotifyDataChanged()
	RefreshWidgets()
}

// NopNotifier is a ChangeNotifier that does nothing.
type NopNotifier struct{}

func (NopNotifier) NotifyDataChanged() {}
func (NopNotifier) RefreshWidgets()    {}
