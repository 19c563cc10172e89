package snapshots

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jmercier/folio/internal/domain"
	"github.com/jmercier/folio/internal/modules/valuation"
)

// BookSource supplies the full account graph the refresh values.
type BookSource interface {
	GetFullGraph() ([]domain.Account, error)
}

// Service runs the "today" snapshot refresh: current quotes in, one
// account-scoped snapshot per non-empty account plus the global aggregate
// out. Re-running the same day overwrites with the latest intraday figures.
type Service struct {
	book         BookSource
	repo         *Repository
	aggregator   *valuation.Aggregator
	provider     domain.MarketDataProvider
	baseCurrency string
	notifier     domain.ChangeNotifier
	log          zerolog.Logger
}

// NewService creates a new snapshot refresh service.
func NewService(
	book BookSource,
	repo *Repository,
	aggregator *valuation.Aggregator,
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
		repo:         repo,
		aggregator:   aggregator,
		provider:     provider,
		baseCurrency: baseCurrency,
		notifier:     notifier,
		log:          log.With().Str("service", "snapshots").Logger(),
	}
}

// RefreshToday recomputes and upserts today's snapshots from current quotes.
// Weekends and empty books are skipped before any computation.
func (s *Service) RefreshToday(ctx context.Context) error {
	return s.RefreshFor(ctx, time.Now())
}

// RefreshFor is RefreshToday with an explicit clock, for tests.
func (s *Service) RefreshFor(ctx context.Context, now time.Time) error {
	if domain.IsWeekend(now) {
		s.log.Debug().Str("date", domain.DayKey(now)).Msg("Weekend, skipping snapshot refresh")
		return nil
	}

	accounts, err := s.book.GetFullGraph()
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}

	symbols := collectSymbols(accounts)
	if len(symbols) == 0 {
		s.log.Debug().Msg("No holdings, skipping snapshot refresh")
		return nil
	}

	quotes, err := s.provider.FetchQuotes(ctx, symbols)
	if err != nil {
		return fmt.Errorf("failed to fetch quotes: %w", err)
	}

	day := domain.Day(now)
	var aggregates []valuation.AccountAggregate
	written := 0

	for i := range accounts {
		if len(accounts[i].Holdings) == 0 {
			continue
		}

		agg := s.aggregator.AggregateAccount(ctx, &accounts[i], quotes)
		aggregates = append(aggregates, agg)

		accountID := accounts[i].ID
		snap := FromAggregate(agg, day, &accountID)
		if err := s.repo.Upsert(&snap); err != nil {
			// One failed account write doesn't abort the cycle.
			s.log.Error().Err(err).Str("account", accountID).Msg("Failed to write account snapshot")
			continue
		}
		written++
	}

	if len(aggregates) == 0 {
		s.log.Debug().Msg("No non-empty accounts, skipping snapshot refresh")
		return nil
	}

	global := s.aggregator.AggregateGlobal(ctx, aggregates, s.baseCurrency)
	snap := FromAggregate(global, day, nil)
	if err := s.repo.Upsert(&snap); err != nil {
		return fmt.Errorf("failed to write global snapshot: %w", err)
	}
	written++

	s.log.Info().
		Str("date", domain.DayKey(day)).
		Int("snapshots", written).
		Float64("total_value", global.TotalValue).
		Msg("Snapshot refresh completed")

	s.notifier.NotifyDataChanged()
	s.notifier.RefreshWidgets()
	return nil
}

func collectSymbols(accounts []domain.Account) []string {
	seen := make(map[string]bool)
	var symbols []string
	for i := range accounts {
		for _, h := range accounts[i].Holdings {
			if !seen[h.Symbol] {
				seen[h.Symbol] = true
				symbols = append(symbols, h.Symbol)
			}
		}
	}
	return symbols
}
