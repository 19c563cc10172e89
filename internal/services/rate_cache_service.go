package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jmercier/folio/internal/domain"
	"github.com/jmercier/folio/internal/modules/history"
)

const (
	// liveRateTTL bounds how long a fetched live rate is served from memory.
	liveRateTTL = time.Hour

	// rateLookbackDays bounds the historical walk-back for dates with no
	// stored rate. Markets close over weekends and holidays, so a requested
	// date is allowed to resolve to a rate up to five calendar days earlier.
	rateLookbackDays = 5
)

type liveRate struct {
	rate      float64
	fetchedAt time.Time
}

// RateCacheService provides cached currency conversion rates with tiered
// fallback. Live rates come from the market data provider and are held in
// memory for an hour; historical rates are loaded lazily per pair and year
// and persisted in history.db.
type RateCacheService struct {
	provider          domain.MarketDataProvider
	repo              *history.Repository
	allowPairFallback bool
	log               zerolog.Logger

	mu          sync.Mutex
	live        map[string]liveRate
	series      map[string]map[string]float64
	loadedYears map[string]map[int]bool
}

// NewRateCacheService creates a new rate cache service.
func NewRateCacheService(
	provider domain.MarketDataProvider,
	repo *history.Repository,
	allowPairFallback bool,
	log zerolog.Logger,
) *RateCacheService {
	return &RateCacheService{
		provider:          provider,
		repo:              repo,
		allowPairFallback: allowPairFallback,
		log:               log.With().Str("service", "rate_cache").Logger(),
		live:              make(map[string]liveRate),
		series:            make(map[string]map[string]float64),
		loadedYears:       make(map[string]map[int]bool),
	}
}

func pairKey(fromCurrency, toCurrency string) string {
	return fromCurrency + toCurrency
}

// GetRate returns the current conversion rate with tiered fallback:
// 1. Identity pairs are always 1.0 and never hit the provider.
// 2. In-memory rate fetched less than an hour ago.
// 3. Live fetch from the market data provider, persisted on success.
// 4. Latest persisted rate, however old.
func (s *RateCacheService) GetRate(ctx context.Context, fromCurrency, toCurrency string) (float64, error) {
	if fromCurrency == toCurrency {
		return 1.0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pair := pairKey(fromCurrency, toCurrency)

	if cached, ok := s.live[pair]; ok && time.Since(cached.fetchedAt) < liveRateTTL {
		return cached.rate, nil
	}

	rate, err := s.provider.FetchLiveRate(ctx, pair)
	if err == nil && rate > 0 {
		s.live[pair] = liveRate{rate: rate, fetchedAt: time.Now()}
		if upsertErr := s.repo.UpsertRate(pair, domain.Day(time.Now()), rate); upsertErr != nil {
			s.log.Warn().Err(upsertErr).Str("pair", pair).Msg("Failed to persist live rate")
		}
		return rate, nil
	}
	s.log.Warn().Err(err).Str("pair", pair).Msg("Live rate fetch failed, trying cache")

	latest, cacheErr := s.repo.GetLatestRate(pair)
	if cacheErr == nil && latest != nil && latest.Rate > 0 {
		s.log.Warn().
			Str("pair", pair).
			Str("as_of", domain.DayKey(latest.Date)).
			Float64("rate", latest.Rate).
			Msg("Using cached rate (live fetch failed)")
		return latest.Rate, nil
	}

	return 0, fmt.Errorf("no rate available for %s/%s", fromCurrency, toCurrency)
}

// GetRateOnOrBefore returns the conversion rate effective on the given date.
// The historical series for the pair is loaded lazily. When the exact date
// has no entry the lookup walks back up to five calendar days, then falls
// back to the nearest cached entry for the pair (when enabled), then 1.0.
func (s *RateCacheService) GetRateOnOrBefore(ctx context.Context, fromCurrency, toCurrency string, date time.Time) (float64, error) {
	if fromCurrency == toCurrency {
		return 1.0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pair := pairKey(fromCurrency, toCurrency)
	day := domain.Day(date)

	// The walk-back window can cross a year boundary in early January.
	if err := s.ensureYearLocked(ctx, pair, day.Year()); err != nil {
		s.log.Warn().Err(err).Str("pair", pair).Int("year", day.Year()).Msg("Failed to load rate series")
	}
	earliest := day.AddDate(0, 0, -rateLookbackDays)
	if earliest.Year() != day.Year() {
		if err := s.ensureYearLocked(ctx, pair, earliest.Year()); err != nil {
			s.log.Warn().Err(err).Str("pair", pair).Int("year", earliest.Year()).Msg("Failed to load rate series")
		}
	}

	rates := s.series[pair]
	for i := 0; i <= rateLookbackDays; i++ {
		key := domain.DayKey(day.AddDate(0, 0, -i))
		if rate, ok := rates[key]; ok && rate > 0 {
			return rate, nil
		}
	}

	if s.allowPairFallback {
		if rate, asOf, ok := nearestRate(rates, day); ok {
			s.log.Warn().
				Str("pair", pair).
				Str("date", domain.DayKey(day)).
				Str("as_of", asOf).
				Float64("rate", rate).
				Msg("Using nearest cached rate outside lookback window")
			return rate, nil
		}
	}

	s.log.Warn().
		Str("pair", pair).
		Str("date", domain.DayKey(day)).
		Msg("No historical rate available, using 1.0")
	return 1.0, nil
}

// PreloadSeries loads the historical series covering [from, to] for a pair
// so subsequent GetRateOnOrBefore calls in that range stay in memory.
func (s *RateCacheService) PreloadSeries(ctx context.Context, fromCurrency, toCurrency string, from, to time.Time) error {
	if fromCurrency == toCurrency {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pair := pairKey(fromCurrency, toCurrency)
	for year := from.Year() - 1; year <= to.Year(); year++ {
		if err := s.ensureYearLocked(ctx, pair, year); err != nil {
			return err
		}
	}
	return nil
}

// ensureYearLocked loads one calendar year of the pair's series into memory,
// from history.db when present and from the provider otherwise.
// Caller must hold s.mu.
func (s *RateCacheService) ensureYearLocked(ctx context.Context, pair string, year int) error {
	if s.loadedYears[pair][year] {
		return nil
	}

	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.Local)
	end := time.Date(year, 12, 31, 0, 0, 0, 0, time.Local)

	points, err := s.repo.GetRateSeries(pair, start, end)
	if err != nil {
		return fmt.Errorf("failed to load cached rate series for %s: %w", pair, err)
	}

	if len(points) == 0 {
		points, err = s.provider.FetchHistoricalRateSeries(ctx, pair, start, end)
		if err != nil {
			return fmt.Errorf("failed to fetch rate series for %s: %w", pair, err)
		}
		if upsertErr := s.repo.UpsertRateSeries(pair, points); upsertErr != nil {
			s.log.Warn().Err(upsertErr).Str("pair", pair).Msg("Failed to persist rate series")
		}
	}

	rates := s.series[pair]
	if rates == nil {
		rates = make(map[string]float64)
		s.series[pair] = rates
	}
	for _, p := range points {
		rates[domain.DayKey(p.Date)] = p.Close
	}

	if s.loadedYears[pair] == nil {
		s.loadedYears[pair] = make(map[int]bool)
	}
	s.loadedYears[pair][year] = true

	s.log.Debug().
		Str("pair", pair).
		Int("year", year).
		Int("points", len(points)).
		Msg("Loaded historical rate series")
	return nil
}

// nearestRate picks the entry closest to day, preferring entries on or
// before it. Returns false when the series is empty.
func nearestRate(rates map[string]float64, day time.Time) (float64, string, bool) {
	var (
		bestBefore, bestAfter   string
		rateBefore, rateAfter   float64
		foundBefore, foundAfter bool
	)
	dayKey := domain.DayKey(day)
	for key, rate := range rates {
		if rate <= 0 {
			continue
		}
		if key <= dayKey {
			if !foundBefore || key > bestBefore {
				bestBefore, rateBefore, foundBefore = key, rate, true
			}
		} else {
			if !foundAfter || key < bestAfter {
				bestAfter, rateAfter, foundAfter = key, rate, true
			}
		}
	}
	if foundBefore {
		return rateBefore, bestBefore, true
	}
	if foundAfter {
		return rateAfter, bestAfter, true
	}
	return 0, "", false
}
