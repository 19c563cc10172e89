package valuation

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats/scalar"

	"github.com/jmercier/folio/internal/domain"
)

// mockRateSource returns rates from a fixed map keyed "FROM:TO"
type mockRateSource struct {
	rates map[string]float64
	calls int
}

func (m *mockRateSource) GetRate(_ context.Context, from, to string) (float64, error) {
	m.calls++
	if from == to {
		return 1.0, nil
	}
	if rate, ok := m.rates[from+":"+to]; ok {
		return rate, nil
	}
	return 0, fmt.Errorf("rate not found for %s:%s", from, to)
}

func buyTx(date string, qty, price float64) domain.Transaction {
	d, _ := domain.ParseDay(date)
	return domain.Transaction{Type: domain.TransactionBuy, Date: d, Quantity: qty, Price: price}
}

func testAccount() *domain.Account {
	return &domain.Account{
		ID:           "acc-1",
		Name:         "Brokerage",
		AccountType:  domain.AccountTypeStandard,
		BaseCurrency: "JPY",
		Holdings: []domain.Holding{
			{
				Symbol:       "X",
				Name:         "X Corp",
				AssetType:    domain.AssetTypeStock,
				Currency:     "USD",
				Transactions: []domain.Transaction{buyTx("2024-01-10", 10, 100)},
			},
			{
				Symbol:       "Y",
				Name:         "Y Fund",
				AssetType:    domain.AssetTypeETF,
				Currency:     "JPY",
				Transactions: []domain.Transaction{buyTx("2024-01-10", 100, 1500)},
			},
		},
	}
}

func TestAggregateAccount(t *testing.T) {
	rates := &mockRateSource{rates: map[string]float64{"USD:JPY": 150}}
	agg := NewAggregator(rates, zerolog.Nop())

	quotes := map[string]domain.Quote{
		"X": {Symbol: "X", Price: 110, PreviousClose: fptr(100)},
		"Y": {Symbol: "Y", Price: 1600, PreviousClose: fptr(1550)},
	}

	result := agg.AggregateAccount(context.Background(), testAccount(), quotes)

	// X: value 110*10*150=165000, cost 150000, daily 15000
	// Y: value 1600*100=160000, cost 150000, daily 5000
	assert.InDelta(t, 325000, result.TotalValue, 1e-6)
	assert.InDelta(t, 300000, result.TotalCost, 1e-6)
	assert.InDelta(t, 25000, result.TotalPnL, 1e-6)
	assert.InDelta(t, 20000, result.DailyPnL, 1e-6)

	// Breakdown accumulated in the same pass
	require.Len(t, result.Breakdown, 2)
	for _, b := range result.Breakdown {
		assert.Equal(t, "JPY", b.Currency)
	}

	// Movers ranked by absolute daily P&L
	require.Len(t, result.Movers, 2)
	assert.Equal(t, "X", result.Movers[0].Symbol)
	assert.InDelta(t, 15000, result.Movers[0].DailyPnL, 1e-6)
}

func TestAggregateAccountMissingQuote(t *testing.T) {
	rates := &mockRateSource{rates: map[string]float64{"USD:JPY": 150}}
	agg := NewAggregator(rates, zerolog.Nop())

	// Quote for X entirely missing
	quotes := map[string]domain.Quote{
		"Y": {Symbol: "Y", Price: 1600, PreviousClose: fptr(1550)},
	}

	result := agg.AggregateAccount(context.Background(), testAccount(), quotes)

	// X contributes zero value and zero daily P&L, and is absent from movers
	assert.InDelta(t, 160000, result.TotalValue, 1e-6)
	assert.InDelta(t, 5000, result.DailyPnL, 1e-6)
	require.Len(t, result.Movers, 1)
	assert.Equal(t, "Y", result.Movers[0].Symbol)
}

func TestAggregateAccountEmpty(t *testing.T) {
	agg := NewAggregator(&mockRateSource{}, zerolog.Nop())

	result := agg.AggregateAccount(context.Background(), &domain.Account{ID: "empty", BaseCurrency: "JPY"}, nil)

	assert.Equal(t, 0.0, result.TotalValue)
	assert.Equal(t, 0.0, result.TotalCost)
	assert.Empty(t, result.Breakdown)
	assert.Empty(t, result.Movers)
	assert.Equal(t, 0, agg.rates.(*mockRateSource).calls)
}

func TestAggregateAccountZeroQuantityHoldingSkipped(t *testing.T) {
	d1, _ := domain.ParseDay("2024-01-10")
	d2, _ := domain.ParseDay("2024-02-10")
	account := &domain.Account{
		ID:           "acc-1",
		BaseCurrency: "USD",
		Holdings: []domain.Holding{
			{
				Symbol:    "Z",
				AssetType: domain.AssetTypeStock,
				Currency:  "USD",
				Transactions: []domain.Transaction{
					{Type: domain.TransactionBuy, Date: d1, Quantity: 10, Price: 50},
					{Type: domain.TransactionSell, Date: d2, Quantity: 10, Price: 60},
				},
			},
		},
	}

	agg := NewAggregator(&mockRateSource{}, zerolog.Nop())
	result := agg.AggregateAccount(context.Background(), account, map[string]domain.Quote{"Z": {Symbol: "Z", Price: 70}})

	assert.Equal(t, 0.0, result.TotalValue)
	assert.Empty(t, result.Movers)
}

func TestAggregateGlobalConsistency(t *testing.T) {
	rates := &mockRateSource{rates: map[string]float64{"USD:JPY": 150, "EUR:JPY": 160}}
	agg := NewAggregator(rates, zerolog.Nop())

	accounts := []AccountAggregate{
		{
			AccountID:  "a",
			Currency:   "JPY",
			TotalValue: 325000,
			TotalCost:  300000,
			DailyPnL:   20000,
			Breakdown:  []AssetBreakdown{{AssetType: domain.AssetTypeStock, Value: 325000, Cost: 300000, PnL: 25000, Currency: "JPY"}},
			Movers:     []HoldingMover{{Symbol: "X", DailyPnL: 20000, MarketValue: 325000}},
		},
		{
			AccountID:  "b",
			Currency:   "USD",
			TotalValue: 1000,
			TotalCost:  900,
			DailyPnL:   50,
			Breakdown:  []AssetBreakdown{{AssetType: domain.AssetTypeETF, Value: 1000, Cost: 900, PnL: 100, Currency: "USD"}},
			Movers:     []HoldingMover{{Symbol: "Y", DailyPnL: 50, MarketValue: 1000}},
		},
	}

	global := agg.AggregateGlobal(context.Background(), accounts, "JPY")

	// sum(account totals converted) == global totals within 1e-6 relative
	wantValue := 325000 + 1000*150.0
	wantCost := 300000 + 900*150.0
	wantDaily := 20000 + 50*150.0
	assert.True(t, scalar.EqualWithinRel(wantValue, global.TotalValue, 1e-6))
	assert.True(t, scalar.EqualWithinRel(wantCost, global.TotalCost, 1e-6))
	assert.True(t, scalar.EqualWithinRel(wantDaily, global.DailyPnL, 1e-6))

	assert.Equal(t, "JPY", global.Currency)
	require.Len(t, global.Breakdown, 2)
	require.Len(t, global.Movers, 2)

	// Movers converted into the global currency
	assert.Equal(t, "X", global.Movers[0].Symbol)
	assert.InDelta(t, 20000, global.Movers[0].DailyPnL, 1e-6)
	assert.InDelta(t, 7500, global.Movers[1].DailyPnL, 1e-6)
}

func TestAggregatorSubstitutesIdentityRateWhenUnavailable(t *testing.T) {
	agg := NewAggregator(&mockRateSource{}, zerolog.Nop())

	d, _ := domain.ParseDay("2024-01-10")
	account := &domain.Account{
		ID:           "acc-1",
		BaseCurrency: "JPY",
		Holdings: []domain.Holding{
			{
				Symbol:       "X",
				Currency:     "GBP",
				AssetType:    domain.AssetTypeStock,
				Transactions: []domain.Transaction{{Type: domain.TransactionBuy, Date: d, Quantity: 1, Price: 100}},
			},
		},
	}

	result := agg.AggregateAccount(context.Background(), account, map[string]domain.Quote{"X": {Symbol: "X", Price: 100}})

	// No GBP:JPY rate anywhere: valued at rate 1.0 rather than dropped
	assert.InDelta(t, 100, result.TotalValue, 1e-6)
}
