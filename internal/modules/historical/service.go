// Package historical reconstructs missing daily snapshots from time-series
// price and FX data.
package historical

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jmercier/folio/internal/domain"
	"github.com/jmercier/folio/internal/modules/history"
	"github.com/jmercier/folio/internal/modules/snapshots"
	"github.com/jmercier/folio/internal/modules/valuation"
)

const (
	// priceLookbackDays bounds how far a valuation date may reach back for
	// the nearest close, mirroring the FX rate lookback.
	priceLookbackDays = 5

	// maxConcurrentFetches caps the price series fan-out.
	maxConcurrentFetches = 4

	// cacheFreshnessDays decides whether a cached series still covers the
	// requested range or needs a refetch.
	cacheFreshnessDays = 5
)

// BookSource supplies the full account graph to backfill over.
type BookSource interface {
	GetFullGraph() ([]domain.Account, error)
}

// HistoricalRateSource resolves point-in-time FX rates with lookback.
type HistoricalRateSource interface {
	GetRateOnOrBefore(ctx context.Context, fromCurrency, toCurrency string, date time.Time) (float64, error)
	PreloadSeries(ctx context.Context, fromCurrency, toCurrency string, from, to time.Time) error
}

// Service fills in snapshots for past trading days that have none, using a
// year of daily closes per symbol and historical FX series. Symbols whose
// history cannot be fetched are excluded rather than aborting the run.
type Service struct {
	book     BookSource
	snaps    *snapshots.Repository
	prices   *history.Repository
	rates    HistoricalRateSource
	provider domain.MarketDataProvider
	notifier domain.ChangeNotifier

	baseCurrency string
	log          zerolog.Logger
}

// NewService creates a new backfill service.
func NewService(
	book BookSource,
	snaps *snapshots.Repository,
	prices *history.Repository,
	rates HistoricalRateSource,
	provider domain.MarketDataProvider,
	baseCurrency string,
	notifier domain.ChangeNotifier,
	log zerolog.Logger,
) *Service {
	if notifier == nil {
		notifier = domain.NopNotifier{}
	}
	return &Service{
		book:         book,
		snaps:        snaps,
		prices:       prices,
		rates:        rates,
		provider:     provider,
		notifier:     notifier,
		baseCurrency: baseCurrency,
		log:          log.With().Str("service", "backfill").Logger(),
	}
}

// Result summarizes one backfill run.
type Result struct {
	From            time.Time
	To              time.Time
	TradingDays     int
	SnapshotsAdded  int
	SymbolsExcluded []string
}

// Backfill reconstructs up to one year of missing snapshots ending today.
func (s *Service) Backfill(ctx context.Context) (*Result, error) {
	to := domain.Day(time.Now())
	return s.BackfillRange(ctx, to.AddDate(-1, 0, 0), to)
}

// BackfillRange reconstructs missing snapshots for trading days in
// [from, to]. All newly computed snapshots are committed in one batch at
// the end of the run.
func (s *Service) BackfillRange(ctx context.Context, from, to time.Time) (*Result, error) {
	from, to = domain.Day(from), domain.Day(to)

	accounts, err := s.book.GetFullGraph()
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	if earliest := earliestTrade(accounts); earliest == nil {
		s.log.Debug().Msg("No transactions, nothing to backfill")
		return &Result{From: from, To: to}, nil
	} else if earliest.After(from) {
		from = *earliest
	}

	series, excluded, err := s.loadPriceSeries(ctx, accounts, from, to)
	if err != nil {
		return nil, err
	}

	dates := validDates(series, from, to)
	if len(dates) == 0 {
		s.log.Info().Msg("No trading dates in any price series, nothing to backfill")
		return &Result{From: from, To: to, SymbolsExcluded: excluded}, nil
	}

	s.preloadRates(ctx, accounts, from, to)

	var batch []snapshots.Snapshot

	// Account phase: every account's missing dates are computed before the
	// global pass so global records always see complete per-account sums.
	globalParts := make(map[string][]valuation.AccountAggregate)
	for i := range accounts {
		account := &accounts[i]
		if len(account.Holdings) == 0 {
			continue
		}

		covered, err := s.snaps.CoveredDates(&account.ID, from, to)
		if err != nil {
			return nil, err
		}

		for _, date := range dates {
			agg, ok := s.valuateAccountAt(ctx, account, series, date)
			if !ok {
				continue
			}
			globalParts[domain.DayKey(date)] = append(globalParts[domain.DayKey(date)], agg)

			if covered[domain.DayKey(date)] {
				continue
			}
			accountID := account.ID
			batch = append(batch, snapshots.FromAggregate(agg, date, &accountID))
		}
	}

	// Global phase.
	coveredGlobal, err := s.snaps.CoveredDates(nil, from, to)
	if err != nil {
		return nil, err
	}
	for _, date := range dates {
		if coveredGlobal[domain.DayKey(date)] {
			continue
		}
		parts := globalParts[domain.DayKey(date)]
		if len(parts) == 0 {
			continue
		}

		date := date
		global := valuation.ComposeGlobal(parts, s.baseCurrency, func(accountCurrency string) float64 {
			rate, rateErr := s.rates.GetRateOnOrBefore(ctx, accountCurrency, s.baseCurrency, date)
			if rateErr != nil || rate <= 0 {
				return 1.0
			}
			return rate
		})
		if global.TotalValue == 0 {
			continue
		}
		batch = append(batch, snapshots.FromAggregate(global, date, nil))
	}

	if err := s.snaps.BatchUpsert(batch); err != nil {
		return nil, fmt.Errorf("failed to commit backfill batch: %w", err)
	}

	result := &Result{
		From:            from,
		To:              to,
		TradingDays:     len(dates),
		SnapshotsAdded:  len(batch),
		SymbolsExcluded: excluded,
	}
	s.log.Info().
		Str("from", domain.DayKey(from)).
		Str("to", domain.DayKey(to)).
		Int("trading_days", result.TradingDays).
		Int("snapshots", result.SnapshotsAdded).
		Strs("excluded", excluded).
		Msg("Backfill completed")

	if len(batch) > 0 {
		s.notifier.NotifyDataChanged()
		s.notifier.RefreshWidgets()
	}
	return result, nil
}

// loadPriceSeries fetches a close series per symbol with bounded fan-out.
// Cached series fresh enough for the range are reused; fetch failures
// exclude the symbol from the run.
func (s *Service) loadPriceSeries(ctx context.Context, accounts []domain.Account, from, to time.Time) (map[string]map[string]float64, []string, error) {
	type holdingRef struct {
		symbol    string
		assetType domain.AssetType
	}

	seen := make(map[string]bool)
	var refs []holdingRef
	for i := range accounts {
		for _, h := range accounts[i].Holdings {
			if seen[h.Symbol] {
				continue
			}
			seen[h.Symbol] = true
			refs = append(refs, holdingRef{symbol: h.Symbol, assetType: h.AssetType})
		}
	}

	var mu sync.Mutex
	series := make(map[string]map[string]float64)
	var excluded []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)

	for _, ref := range refs {
		ref := ref
		if !ref.assetType.HasDailySeries() {
			s.log.Debug().Str("symbol", ref.symbol).Msg("No daily series for asset type, skipping")
			continue
		}

		g.Go(func() error {
			points, err := s.seriesFor(gctx, ref.symbol, from, to)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.Warn().Err(err).Str("symbol", ref.symbol).Msg("Price history fetch failed, excluding symbol")
				excluded = append(excluded, ref.symbol)
				return nil
			}
			byDay := make(map[string]float64, len(points))
			for _, p := range points {
				byDay[domain.DayKey(p.Date)] = p.Close
			}
			series[ref.symbol] = byDay
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	sort.Strings(excluded)
	return series, excluded, nil
}

func (s *Service) seriesFor(ctx context.Context, symbol string, from, to time.Time) ([]domain.PricePoint, error) {
	cached, err := s.prices.GetDailyCloses(symbol, from, to)
	if err != nil {
		return nil, err
	}
	if len(cached) > 0 {
		newest := cached[len(cached)-1].Date
		if !newest.Before(to.AddDate(0, 0, -cacheFreshnessDays)) {
			return cached, nil
		}
	}

	points, err := s.provider.FetchDailyCloses(ctx, symbol, from, to)
	if err != nil {
		// A stale cached series still beats excluding the symbol.
		if len(cached) > 0 {
			return cached, nil
		}
		return nil, err
	}
	if err := s.prices.UpsertDailyCloses(symbol, points); err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache price series")
	}
	return points, nil
}

func (s *Service) preloadRates(ctx context.Context, accounts []domain.Account, from, to time.Time) {
	type pair struct{ from, to string }
	seen := make(map[pair]bool)

	preload := func(fromCur, toCur string) {
		if fromCur == toCur || seen[pair{fromCur, toCur}] {
			return
		}
		seen[pair{fromCur, toCur}] = true
		if err := s.rates.PreloadSeries(ctx, fromCur, toCur, from, to); err != nil {
			s.log.Warn().Err(err).Str("from", fromCur).Str("to", toCur).Msg("Failed to preload FX series")
		}
	}

	for i := range accounts {
		preload(accounts[i].BaseCurrency, s.baseCurrency)
		for _, h := range accounts[i].Holdings {
			preload(h.Currency, accounts[i].BaseCurrency)
		}
	}
}

// valuateAccountAt reconstructs one account's aggregate for a historical
// date. Holdings with no position, no price, or an excluded symbol are
// skipped; a date where nothing values is reported as not ok.
func (s *Service) valuateAccountAt(ctx context.Context, account *domain.Account, series map[string]map[string]float64, date time.Time) (valuation.AccountAggregate, bool) {
	acc := valuation.NewAccumulator(account.ID, account.BaseCurrency)

	for i := range account.Holdings {
		h := &account.Holdings[i]

		closes, ok := series[h.Symbol]
		if !ok {
			continue
		}

		pos := h.PositionAsOf(date)
		if pos.Quantity <= 0 {
			continue
		}

		price, priceDay := lookbackPrice(closes, date)
		if price == 0 {
			continue
		}
		prevClose, _ := lookbackPrice(closes, priceDay.AddDate(0, 0, -1))
		if prevClose == 0 {
			prevClose = price
		}

		fx := 1.0
		if h.Currency != account.BaseCurrency {
			rate, err := s.rates.GetRateOnOrBefore(ctx, h.Currency, account.BaseCurrency, date)
			if err == nil && rate > 0 {
				fx = rate
			}
		}

		acc.Add(valuation.ValuateAt(h, pos, price, prevClose, fx))
	}

	agg := acc.Result()
	if agg.TotalValue == 0 {
		return agg, false
	}
	return agg, true
}

// lookbackPrice finds the close for the date or the nearest of the five
// preceding calendar days. Returns the day the price was found on so the
// previous-close lookup starts before it.
func lookbackPrice(closes map[string]float64, date time.Time) (float64, time.Time) {
	for i := 0; i <= priceLookbackDays; i++ {
		day := date.AddDate(0, 0, -i)
		if price, ok := closes[domain.DayKey(day)]; ok && price > 0 {
			return price, day
		}
	}
	return 0, date
}

// validDates is the union of dates present in any price series, weekends
// excluded, clamped to [from, to], ascending.
func validDates(series map[string]map[string]float64, from, to time.Time) []time.Time {
	keys := make(map[string]bool)
	for _, closes := range series {
		for day := range closes {
			keys[day] = true
		}
	}

	var dates []time.Time
	for key := range keys {
		d, err := domain.ParseDay(key)
		if err != nil {
			continue
		}
		if d.Before(from) || d.After(to) || domain.IsWeekend(d) {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

func earliestTrade(accounts []domain.Account) *time.Time {
	var earliest *time.Time
	for i := range accounts {
		for _, h := range accounts[i].Holdings {
			for _, tx := range h.Transactions {
				d := domain.Day(tx.Date)
				if earliest == nil || d.Before(*earliest) {
					earliest = &d
				}
			}
		}
	}
	return earliest
}
