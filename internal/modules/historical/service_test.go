package historical

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/jmercier/folio/internal/domain"
	"github.com/jmercier/folio/internal/modules/history"
	"github.com/jmercier/folio/internal/modules/snapshots"
)

func openWithSchema(t *testing.T, schemaFile string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "..", "database", "schemas", schemaFile))
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)
	return db
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := domain.ParseDay(s)
	require.NoError(t, err)
	return d
}

type stubBook struct {
	accounts []domain.Account
}

func (b *stubBook) GetFullGraph() ([]domain.Account, error) { return b.accounts, nil }

type stubProvider struct {
	closes     map[string][]domain.PricePoint
	failures   map[string]bool
	closeCalls int
}

func (p *stubProvider) FetchQuotes(_ context.Context, _ []string) (map[string]domain.Quote, error) {
	return nil, fmt.Errorf("not implemented")
}

func (p *stubProvider) FetchDailyCloses(_ context.Context, symbol string, _, _ time.Time) ([]domain.PricePoint, error) {
	p.closeCalls++
	if p.failures[symbol] {
		return nil, fmt.Errorf("fetch failed for %s", symbol)
	}
	return p.closes[symbol], nil
}

func (p *stubProvider) FetchLiveRate(_ context.Context, _ string) (float64, error) {
	return 0, fmt.Errorf("not implemented")
}

func (p *stubProvider) FetchHistoricalRateSeries(_ context.Context, _ string, _, _ time.Time) ([]domain.PricePoint, error) {
	return nil, fmt.Errorf("not implemented")
}

type stubRates struct {
	usdJPY float64
}

func (r *stubRates) GetRateOnOrBefore(_ context.Context, from, to string, _ time.Time) (float64, error) {
	if from == to {
		return 1.0, nil
	}
	if from == "USD" && to == "JPY" {
		return r.usdJPY, nil
	}
	return 0, fmt.Errorf("no rate for %s/%s", from, to)
}

func (r *stubRates) PreloadSeries(_ context.Context, _, _ string, _, _ time.Time) error {
	return nil
}

func holdingX() domain.Holding {
	return domain.Holding{
		ID: "h1", AccountID: "acct-1", Symbol: "X", Name: "X Corp",
		AssetType: domain.AssetTypeStock, Market: domain.MarketUS, Currency: "USD",
		Transactions: []domain.Transaction{
			{
				HoldingID: "h1", Type: domain.TransactionBuy,
				Date:     time.Date(2024, 1, 2, 0, 0, 0, 0, time.Local),
				Quantity: 10, Price: 100, Currency: "USD",
			},
		},
	}
}

func newTestService(t *testing.T, book BookSource, provider domain.MarketDataProvider) (*Service, *snapshots.Repository, *history.Repository) {
	t.Helper()

	snapRepo := snapshots.NewRepository(openWithSchema(t, "snapshots_schema.sql"), zerolog.Nop())
	priceRepo := history.NewRepository(openWithSchema(t, "history_schema.sql"), zerolog.Nop())
	rates := &stubRates{usdJPY: 150.0}
	svc := NewService(book, snapRepo, priceRepo, rates, provider, "JPY", domain.NopNotifier{}, zerolog.Nop())
	return svc, snapRepo, priceRepo
}

// Price history covers 2024-01-02 through 2024-01-05 with no data on
// 01-03 (market holiday). An account snapshot already exists for 01-02.
func holidayWeek(t *testing.T) *stubProvider {
	return &stubProvider{closes: map[string][]domain.PricePoint{
		"X": {
			{Date: day(t, "2024-01-02"), Close: 100},
			{Date: day(t, "2024-01-04"), Close: 101},
			{Date: day(t, "2024-01-05"), Close: 103},
		},
	}}
}

func TestBackfill_FillsMissingDays(t *testing.T) {
	book := &stubBook{accounts: []domain.Account{
		{ID: "acct-1", Name: "Brokerage", AccountType: domain.AccountTypeStandard, BaseCurrency: "JPY", Holdings: []domain.Holding{holdingX()}},
	}}
	svc, snapRepo, _ := newTestService(t, book, holidayWeek(t))

	accountID := "acct-1"
	existing := snapshots.Snapshot{
		Date: day(t, "2024-01-02"), AccountID: &accountID,
		TotalValue: 150000, TotalCost: 150000, Currency: "JPY",
	}
	require.NoError(t, snapRepo.Upsert(&existing))

	result, err := svc.BackfillRange(context.Background(), day(t, "2024-01-02"), day(t, "2024-01-05"))
	require.NoError(t, err)

	// 01-02, 01-04, 01-05 trade; 01-03 never appears in any series.
	assert.Equal(t, 3, result.TradingDays)
	assert.Empty(t, result.SymbolsExcluded)

	snaps, err := snapRepo.GetRange(&accountID, day(t, "2024-01-01"), day(t, "2024-01-31"))
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, "2024-01-02", domain.DayKey(snaps[0].Date))
	assert.Equal(t, "2024-01-04", domain.DayKey(snaps[1].Date))
	assert.Equal(t, "2024-01-05", domain.DayKey(snaps[2].Date))

	// The pre-existing 01-02 record is left untouched.
	assert.Equal(t, 150000.0, snaps[0].TotalValue)

	// 01-04 uses 01-02's close as previous close across the holiday gap.
	jan4 := snaps[1]
	assert.InDelta(t, 101*10*150.0, jan4.TotalValue, 1e-9)
	assert.InDelta(t, (101-100)*10*150.0, jan4.DailyPnL, 1e-9)

	jan5 := snaps[2]
	assert.InDelta(t, (103-101)*10*150.0, jan5.DailyPnL, 1e-9)
}

func TestBackfill_GlobalSnapshotsComposed(t *testing.T) {
	book := &stubBook{accounts: []domain.Account{
		{ID: "acct-1", Name: "Brokerage", AccountType: domain.AccountTypeStandard, BaseCurrency: "JPY", Holdings: []domain.Holding{holdingX()}},
	}}
	svc, snapRepo, _ := newTestService(t, book, holidayWeek(t))

	_, err := svc.BackfillRange(context.Background(), day(t, "2024-01-02"), day(t, "2024-01-05"))
	require.NoError(t, err)

	globals, err := snapRepo.GetRange(nil, day(t, "2024-01-01"), day(t, "2024-01-31"))
	require.NoError(t, err)
	require.Len(t, globals, 3)

	accountID := "acct-1"
	accountSnaps, err := snapRepo.GetRange(&accountID, day(t, "2024-01-01"), day(t, "2024-01-31"))
	require.NoError(t, err)
	require.Len(t, accountSnaps, 3)

	for i := range globals {
		assert.InDelta(t, accountSnaps[i].TotalValue, globals[i].TotalValue, 1e-6)
		assert.Len(t, globals[i].Movers, 1)
	}
}

func TestBackfill_WeekendDatesExcluded(t *testing.T) {
	provider := holidayWeek(t)
	// 2024-01-06 is a Saturday; a stray weekend price must not create a day.
	provider.closes["X"] = append(provider.closes["X"], domain.PricePoint{Date: day(t, "2024-01-06"), Close: 104})

	book := &stubBook{accounts: []domain.Account{
		{ID: "acct-1", BaseCurrency: "JPY", Holdings: []domain.Holding{holdingX()}},
	}}
	svc, snapRepo, _ := newTestService(t, book, provider)

	_, err := svc.BackfillRange(context.Background(), day(t, "2024-01-02"), day(t, "2024-01-06"))
	require.NoError(t, err)

	exists, err := snapRepo.ExistsForDate(day(t, "2024-01-06"), nil)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBackfill_FailedSymbolExcludedSilently(t *testing.T) {
	provider := holidayWeek(t)
	provider.failures = map[string]bool{"FAIL": true}

	failing := domain.Holding{
		ID: "h2", AccountID: "acct-1", Symbol: "FAIL",
		AssetType: domain.AssetTypeStock, Market: domain.MarketUS, Currency: "USD",
		Transactions: []domain.Transaction{
			{HoldingID: "h2", Type: domain.TransactionBuy, Date: day(t, "2024-01-02"), Quantity: 5, Price: 50, Currency: "USD"},
		},
	}
	book := &stubBook{accounts: []domain.Account{
		{ID: "acct-1", BaseCurrency: "JPY", Holdings: []domain.Holding{holdingX(), failing}},
	}}
	svc, snapRepo, _ := newTestService(t, book, provider)

	result, err := svc.BackfillRange(context.Background(), day(t, "2024-01-02"), day(t, "2024-01-05"))
	require.NoError(t, err)
	assert.Equal(t, []string{"FAIL"}, result.SymbolsExcluded)

	// The healthy symbol still produced snapshots.
	accountID := "acct-1"
	snaps, err := snapRepo.GetRange(&accountID, day(t, "2024-01-01"), day(t, "2024-01-31"))
	require.NoError(t, err)
	assert.Len(t, snaps, 3)
	for _, s := range snaps {
		require.Len(t, s.Movers, 1)
		assert.Equal(t, "X", s.Movers[0].Symbol)
	}
}

func TestBackfill_StructuredFundSkipped(t *testing.T) {
	provider := holidayWeek(t)
	structured := domain.Holding{
		ID: "h3", AccountID: "acct-1", Symbol: "SF1",
		AssetType: domain.AssetTypeStructuredFund, Market: domain.MarketJapan, Currency: "JPY",
		Transactions: []domain.Transaction{
			{HoldingID: "h3", Type: domain.TransactionBuy, Date: day(t, "2024-01-02"), Quantity: 1, Price: 10000, Currency: "JPY"},
		},
	}
	book := &stubBook{accounts: []domain.Account{
		{ID: "acct-1", BaseCurrency: "JPY", Holdings: []domain.Holding{holdingX(), structured}},
	}}
	svc, _, _ := newTestService(t, book, provider)

	result, err := svc.BackfillRange(context.Background(), day(t, "2024-01-02"), day(t, "2024-01-05"))
	require.NoError(t, err)

	// No fetch attempted, no exclusion reported.
	assert.Empty(t, result.SymbolsExcluded)
	assert.Equal(t, 1, provider.closeCalls)
}

func TestBackfill_EmptyBookNoop(t *testing.T) {
	book := &stubBook{accounts: []domain.Account{{ID: "acct-1", BaseCurrency: "JPY"}}}
	svc, snapRepo, _ := newTestService(t, book, &stubProvider{})

	result, err := svc.BackfillRange(context.Background(), day(t, "2024-01-02"), day(t, "2024-01-05"))
	require.NoError(t, err)
	assert.Zero(t, result.SnapshotsAdded)

	latest, err := snapRepo.GetLatest(nil)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestBackfill_UsesCachedSeries(t *testing.T) {
	provider := holidayWeek(t)
	book := &stubBook{accounts: []domain.Account{
		{ID: "acct-1", BaseCurrency: "JPY", Holdings: []domain.Holding{holdingX()}},
	}}
	svc, _, priceRepo := newTestService(t, book, provider)

	require.NoError(t, priceRepo.UpsertDailyCloses("X", []domain.PricePoint{
		{Date: day(t, "2024-01-02"), Close: 100},
		{Date: day(t, "2024-01-04"), Close: 101},
		{Date: day(t, "2024-01-05"), Close: 103},
	}))

	_, err := svc.BackfillRange(context.Background(), day(t, "2024-01-02"), day(t, "2024-01-05"))
	require.NoError(t, err)
	assert.Equal(t, 0, provider.closeCalls)
}
