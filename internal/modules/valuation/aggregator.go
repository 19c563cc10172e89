package valuation

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"github.com/jmercier/folio/internal/domain"
)

// RateSource provides live currency conversion rates
type RateSource interface {
	GetRate(ctx context.Context, fromCurrency, toCurrency string) (float64, error)
}

// Aggregator sums holding valuations into account-level and global
// aggregates. It is stateless apart from the rate source and safe for
// concurrent use across accounts.
type Aggregator struct {
	rates RateSource
	log   zerolog.Logger
}

// NewAggregator creates a new aggregator
func NewAggregator(rates RateSource, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		rates: rates,
		log:   log.With().Str("service", "aggregator").Logger(),
	}
}

// rate resolves a conversion rate, substituting 1.0 when no rate is
// available anywhere. A reasonable rate beats failing the computation.
func (a *Aggregator) rate(ctx context.Context, from, to string) float64 {
	rate, err := a.rates.GetRate(ctx, from, to)
	if err != nil || rate <= 0 {
		a.log.Warn().
			Err(err).
			Str("from", from).
			Str("to", to).
			Msg("No conversion rate available, using 1.0")
		return 1.0
	}
	return rate
}

// AggregateAccount values every holding of one account against the quote
// map and sums the results in the account's base currency. The asset-type
// breakdown and the per-holding movers list are accumulated in the same
// pass as the sums.
func (a *Aggregator) AggregateAccount(ctx context.Context, account *domain.Account, quotes map[string]domain.Quote) AccountAggregate {
	agg := AccountAggregate{
		AccountID: account.ID,
		Currency:  account.BaseCurrency,
	}

	byType := make(map[domain.AssetType]*AssetBreakdown)
	now := time.Now()

	for i := range account.Holdings {
		h := &account.Holdings[i]

		pos := h.PositionAsOf(now)
		if pos.Quantity == 0 {
			continue
		}

		var quote *domain.Quote
		if q, ok := quotes[h.Symbol]; ok {
			quote = &q
		}

		fx := 1.0
		if h.Currency != account.BaseCurrency {
			fx = a.rate(ctx, h.Currency, account.BaseCurrency)
		}

		v := Valuate(h, pos, quote, fx)

		agg.TotalValue += v.MarketValue
		agg.TotalCost += v.CostBasis
		agg.DailyPnL += v.DailyPnL

		entry, ok := byType[h.AssetType]
		if !ok {
			entry = &AssetBreakdown{AssetType: h.AssetType, Currency: account.BaseCurrency}
			byType[h.AssetType] = entry
		}
		entry.Value += v.MarketValue
		entry.Cost += v.CostBasis
		entry.PnL += v.UnrealizedPnL

		if v.MarketValue != 0 {
			agg.Movers = append(agg.Movers, HoldingMover{
				Symbol:      v.Symbol,
				Name:        v.Name,
				DailyPnL:    v.DailyPnL,
				DailyPnLPct: v.DailyPnLPct,
				MarketValue: v.MarketValue,
			})
		}
	}

	agg.TotalPnL = agg.TotalValue - agg.TotalCost
	if base := agg.TotalValue - agg.DailyPnL; base > 0 {
		agg.DailyPnLPct = agg.DailyPnL / base * 100
	}
	agg.Breakdown = sortedBreakdown(byType)
	sortMovers(agg.Movers)

	return agg
}

// AggregateGlobal composes account aggregates into one global aggregate in
// the global base currency. Each account's sums are converted with the
// account-to-global rate on top of the account-level conversion already
// applied.
func (a *Aggregator) AggregateGlobal(ctx context.Context, accounts []AccountAggregate, baseCurrency string) AccountAggregate {
	return ComposeGlobal(accounts, baseCurrency, func(accountCurrency string) float64 {
		return a.rate(ctx, accountCurrency, baseCurrency)
	})
}

// ComposeGlobal merges account aggregates into one global aggregate using
// the supplied conversion lookup. The backfill path passes a historical
// rate closure; the live path composes current rates.
func ComposeGlobal(accounts []AccountAggregate, baseCurrency string, rateFor func(accountCurrency string) float64) AccountAggregate {
	global := AccountAggregate{Currency: baseCurrency}

	byType := make(map[domain.AssetType]*AssetBreakdown)
	values := make([]float64, 0, len(accounts))
	costs := make([]float64, 0, len(accounts))
	daily := make([]float64, 0, len(accounts))

	for _, acct := range accounts {
		fx := 1.0
		if acct.Currency != baseCurrency {
			fx = rateFor(acct.Currency)
		}

		values = append(values, acct.TotalValue*fx)
		costs = append(costs, acct.TotalCost*fx)
		daily = append(daily, acct.DailyPnL*fx)

		for _, b := range acct.Breakdown {
			entry, ok := byType[b.AssetType]
			if !ok {
				entry = &AssetBreakdown{AssetType: b.AssetType, Currency: baseCurrency}
				byType[b.AssetType] = entry
			}
			entry.Value += b.Value * fx
			entry.Cost += b.Cost * fx
			entry.PnL += b.PnL * fx
		}

		for _, m := range acct.Movers {
			global.Movers = append(global.Movers, HoldingMover{
				Symbol:      m.Symbol,
				Name:        m.Name,
				DailyPnL:    m.DailyPnL * fx,
				DailyPnLPct: m.DailyPnLPct,
				MarketValue: m.MarketValue * fx,
			})
		}
	}

	global.TotalValue = floats.Sum(values)
	global.TotalCost = floats.Sum(costs)
	global.DailyPnL = floats.Sum(daily)
	global.TotalPnL = global.TotalValue - global.TotalCost
	if base := global.TotalValue - global.DailyPnL; base > 0 {
		global.DailyPnLPct = global.DailyPnL / base * 100
	}
	global.Breakdown = sortedBreakdown(byType)
	sortMovers(global.Movers)

	return global
}

// Accumulator assembles an account aggregate from individually computed
// holding valuations. The backfill path uses it with historical prices,
// keeping the single-pass breakdown and movers accumulation identical to
// the live path.
type Accumulator struct {
	agg    AccountAggregate
	byType map[domain.AssetType]*AssetBreakdown
}

// NewAccumulator starts an empty aggregate for one account. An empty
// accountID produces a global aggregate.
func NewAccumulator(accountID, currency string) *Accumulator {
	return &Accumulator{
		agg:    AccountAggregate{AccountID: accountID, Currency: currency},
		byType: make(map[domain.AssetType]*AssetBreakdown),
	}
}

// Add folds one holding valuation into the running sums.
func (c *Accumulator) Add(v HoldingValuation) {
	c.agg.TotalValue += v.MarketValue
	c.agg.TotalCost += v.CostBasis
	c.agg.DailyPnL += v.DailyPnL

	entry, ok := c.byType[v.AssetType]
	if !ok {
		entry = &AssetBreakdown{AssetType: v.AssetType, Currency: c.agg.Currency}
		c.byType[v.AssetType] = entry
	}
	entry.Value += v.MarketValue
	entry.Cost += v.CostBasis
	entry.PnL += v.UnrealizedPnL

	if v.MarketValue != 0 {
		c.agg.Movers = append(c.agg.Movers, HoldingMover{
			Symbol:      v.Symbol,
			Name:        v.Name,
			DailyPnL:    v.DailyPnL,
			DailyPnLPct: v.DailyPnLPct,
			MarketValue: v.MarketValue,
		})
	}
}

// Empty reports whether nothing has been accumulated.
func (c *Accumulator) Empty() bool {
	return len(c.byType) == 0
}

// Result finalizes derived fields and returns the aggregate.
func (c *Accumulator) Result() AccountAggregate {
	agg := c.agg
	agg.TotalPnL = agg.TotalValue - agg.TotalCost
	if base := agg.TotalValue - agg.DailyPnL; base > 0 {
		agg.DailyPnLPct = agg.DailyPnL / base * 100
	}
	agg.Breakdown = sortedBreakdown(c.byType)
	sortMovers(agg.Movers)
	return agg
}

// sortedBreakdown flattens the accumulation map into a deterministic slice
func sortedBreakdown(byType map[domain.AssetType]*AssetBreakdown) []AssetBreakdown {
	breakdown := make([]AssetBreakdown, 0, len(byType))
	for _, entry := range byType {
		breakdown = append(breakdown, *entry)
	}
	sort.Slice(breakdown, func(i, j int) bool {
		return breakdown[i].AssetType < breakdown[j].AssetType
	})
	return breakdown
}

// sortMovers ranks movers by absolute daily P&L, largest first
func sortMovers(movers []HoldingMover) {
	sort.Slice(movers, func(i, j int) bool {
		li, lj := movers[i].DailyPnL, movers[j].DailyPnL
		if li < 0 {
			li = -li
		}
		if lj < 0 {
			lj = -lj
		}
		return li > lj
	})
}
