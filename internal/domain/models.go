// Package domain provides core domain models and types.
package domain

import (
	"sort"
	"time"
)

// AssetType classifies a tradable instrument
type AssetType string

const (
	AssetTypeStock          AssetType = "stock"
	AssetTypeETF            AssetType = "etf"
	AssetTypeFund           AssetType = "fund"
	AssetTypeStructuredFund AssetType = "structured_fund"
	AssetTypeBond           AssetType = "bond"
	AssetTypeCrypto         AssetType = "crypto"
)

// assetTypeInfo captures the behaviors that vary by asset type.
// Structured funds publish NAV on their own schedule and have no standard
// daily close series, so backfill skips them.
type assetTypeInfo struct {
	DisplayName    string
	HasDailySeries bool
}

var assetTypes = map[AssetType]assetTypeInfo{
	AssetTypeStock:          {DisplayName: "Stock", HasDailySeries: true},
	AssetTypeETF:            {DisplayName: "ETF", HasDailySeries: true},
	AssetTypeFund:           {DisplayName: "Fund", HasDailySeries: true},
	AssetTypeStructuredFund: {DisplayName: "Structured Fund", HasDailySeries: false},
	AssetTypeBond:           {DisplayName: "Bond", HasDailySeries: true},
	AssetTypeCrypto:         {DisplayName: "Crypto", HasDailySeries: true},
}

// Valid reports whether the asset type is a known enumeration value
func (a AssetType) Valid() bool {
	_, ok := assetTypes[a]
	return ok
}

// DisplayName returns the human-readable name for the asset type
func (a AssetType) DisplayName() string {
	if info, ok := assetTypes[a]; ok {
		return info.DisplayName
	}
	return string(a)
}

// HasDailySeries reports whether instruments of this type have a standard
// daily close series that can be fetched for backfill
func (a AssetType) HasDailySeries() bool {
	if info, ok := assetTypes[a]; ok {
		return info.HasDailySeries
	}
	return true
}

// Market identifies the exchange region a holding trades on
type Market string

const (
	MarketUS     Market = "us"
	MarketJapan  Market = "jp"
	MarketHK     Market = "hk"
	MarketEurope Market = "eu"
	MarketCrypto Market = "crypto"
)

type marketInfo struct {
	DisplayName     string
	DefaultCurrency string
	CurrencySymbol  string
}

var markets = map[Market]marketInfo{
	MarketUS:     {DisplayName: "US", DefaultCurrency: "USD", CurrencySymbol: "$"},
	MarketJapan:  {DisplayName: "Japan", DefaultCurrency: "JPY", CurrencySymbol: "¥"},
	MarketHK:     {DisplayName: "Hong Kong", DefaultCurrency: "HKD", CurrencySymbol: "HK$"},
	MarketEurope: {DisplayName: "Europe", DefaultCurrency: "EUR", CurrencySymbol: "€"},
	MarketCrypto: {DisplayName: "Crypto", DefaultCurrency: "USD", CurrencySymbol: "$"},
}

// Valid reports whether the market is a known enumeration value
func (m Market) Valid() bool {
	_, ok := markets[m]
	return ok
}

// DisplayName returns the human-readable name for the market
func (m Market) DisplayName() string {
	if info, ok := markets[m]; ok {
		return info.DisplayName
	}
	return string(m)
}

// DefaultCurrency returns the currency instruments on this market trade in
func (m Market) DefaultCurrency() string {
	if info, ok := markets[m]; ok {
		return info.DefaultCurrency
	}
	return "USD"
}

// CurrencySymbol returns the display symbol for the market's currency
func (m Market) CurrencySymbol() string {
	if info, ok := markets[m]; ok {
		return info.CurrencySymbol
	}
	return "$"
}

// AccountType tags an account with the product rules that apply to it
type AccountType string

const (
	AccountTypeStandard   AccountType = "standard"
	AccountTypeNISA       AccountType = "nisa"
	AccountTypeRetirement AccountType = "retirement"
)

type accountTypeInfo struct {
	DisplayName    string
	AllowedMarkets []Market
}

var accountTypes = map[AccountType]accountTypeInfo{
	AccountTypeStandard:   {DisplayName: "Standard", AllowedMarkets: []Market{MarketUS, MarketJapan, MarketHK, MarketEurope, MarketCrypto}},
	AccountTypeNISA:       {DisplayName: "NISA", AllowedMarkets: []Market{MarketUS, MarketJapan}},
	AccountTypeRetirement: {DisplayName: "Retirement", AllowedMarkets: []Market{MarketJapan}},
}

// Valid reports whether the account type is a known enumeration value
func (a AccountType) Valid() bool {
	_, ok := accountTypes[a]
	return ok
}

// AllowsMarket reports whether instruments on the given market may be held
// in accounts of this type
func (a AccountType) AllowsMarket(m Market) bool {
	info, ok := accountTypes[a]
	if !ok {
		return true
	}
	for _, allowed := range info.AllowedMarkets {
		if allowed == m {
			return true
		}
	}
	return false
}

// TransactionType represents the economic direction of a transaction
type TransactionType string

const (
	TransactionBuy      TransactionType = "buy"
	TransactionSell     TransactionType = "sell"
	TransactionDividend TransactionType = "dividend"
)

// Valid reports whether the transaction type is a known enumeration value
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionBuy, TransactionSell, TransactionDividend:
		return true
	}
	return false
}

// Transaction represents an immutable economic event on a holding
type Transaction struct {
	ID        string          `json:"id"`
	HoldingID string          `json:"holding_id"`
	Type      TransactionType `json:"type"`
	Date      time.Time       `json:"date"` // Day granularity
	Quantity  float64         `json:"quantity"`
	Price     float64         `json:"price"`
	Fee       float64         `json:"fee"`
	Currency  string          `json:"currency"`
	Note      string          `json:"note,omitempty"`
}

// SignedQuantity returns the quantity with sells negated.
// Dividends carry no position change.
func (t Transaction) SignedQuantity() float64 {
	switch t.Type {
	case TransactionSell:
		return -t.Quantity
	case TransactionDividend:
		return 0
	}
	return t.Quantity
}

// Position is a point-in-time projection of a holding's size and cost
type Position struct {
	Quantity    float64 `json:"quantity"`
	CostBasis   float64 `json:"cost_basis"` // Total cost of the open position
	AverageCost float64 `json:"average_cost"`
}

// Holding represents a tracked position in one instrument within one account
type Holding struct {
	ID           string        `json:"id"`
	AccountID    string        `json:"account_id"`
	Symbol       string        `json:"symbol"`
	Name         string        `json:"name"`
	AssetType    AssetType     `json:"asset_type"`
	Market       Market        `json:"market"`
	Currency     string        `json:"currency"`
	Transactions []Transaction `json:"transactions,omitempty"` // Ordered by date
}

// farFuture is used by derived accessors that want the full history.
var farFuture = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// PositionAsOf replays the transaction history up to and including the given
// date and returns the open position at that point. Sells reduce cost basis
// at the running average cost (moving-average method).
func (h *Holding) PositionAsOf(date time.Time) Position {
	day := Day(date)

	var qty, cost float64
	for _, tx := range h.sortedTransactions() {
		if Day(tx.Date).After(day) {
			break
		}
		switch tx.Type {
		case TransactionBuy:
			qty += tx.Quantity
			cost += tx.Quantity*tx.Price + tx.Fee
		case TransactionSell:
			if qty > 0 {
				avg := cost / qty
				cost -= avg * tx.Quantity
			}
			qty -= tx.Quantity
			if qty <= 0 {
				qty = 0
				cost = 0
			}
		}
	}

	pos := Position{Quantity: qty, CostBasis: cost}
	if qty > 0 {
		pos.AverageCost = cost / qty
	}
	return pos
}

// Quantity returns the current net quantity of the holding
func (h *Holding) Quantity() float64 {
	return h.PositionAsOf(farFuture).Quantity
}

// AverageCost returns the moving-average cost of the open position
func (h *Holding) AverageCost() float64 {
	return h.PositionAsOf(farFuture).AverageCost
}

// TotalCost returns the total cost basis of the open position
func (h *Holding) TotalCost() float64 {
	return h.PositionAsOf(farFuture).CostBasis
}

// RealizedPnL returns the profit realized by sells, net of fees
func (h *Holding) RealizedPnL() float64 {
	var qty, cost, realized float64
	for _, tx := range h.sortedTransactions() {
		switch tx.Type {
		case TransactionBuy:
			qty += tx.Quantity
			cost += tx.Quantity*tx.Price + tx.Fee
		case TransactionSell:
			if qty > 0 {
				avg := cost / qty
				realized += (tx.Price-avg)*tx.Quantity - tx.Fee
				cost -= avg * tx.Quantity
			}
			qty -= tx.Quantity
			if qty <= 0 {
				qty = 0
				cost = 0
			}
		}
	}
	return realized
}

// TotalDividends returns the sum of dividend payouts, net of fees
func (h *Holding) TotalDividends() float64 {
	var total float64
	for _, tx := range h.Transactions {
		if tx.Type == TransactionDividend {
			total += tx.Quantity*tx.Price - tx.Fee
		}
	}
	return total
}

// sortedTransactions returns transactions in date order without mutating the
// stored slice. Repositories load them ordered already; this guards callers
// that assemble holdings by hand.
func (h *Holding) sortedTransactions() []Transaction {
	if sort.SliceIsSorted(h.Transactions, func(i, j int) bool {
		return h.Transactions[i].Date.Before(h.Transactions[j].Date)
	}) {
		return h.Transactions
	}
	txs := make([]Transaction, len(h.Transactions))
	copy(txs, h.Transactions)
	sort.Slice(txs, func(i, j int) bool {
		return txs[i].Date.Before(txs[j].Date)
	})
	return txs
}

// Account represents a named container of holdings with a base currency
type Account struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	AccountType  AccountType `json:"account_type"`
	BaseCurrency string      `json:"base_currency"`
	Holdings     []Holding   `json:"holdings,omitempty"`
}

// Symbols returns the distinct symbols across the account's holdings
func (a *Account) Symbols() []string {
	seen := make(map[string]bool, len(a.Holdings))
	symbols := make([]string, 0, len(a.Holdings))
	for _, h := range a.Holdings {
		if !seen[h.Symbol] {
			seen[h.Symbol] = true
			symbols = append(symbols, h.Symbol)
		}
	}
	return symbols
}

// MarketState represents the trading session a quote was observed in
type MarketState string

const (
	MarketStateRegular  MarketState = "REGULAR"
	MarketStatePre      MarketState = "PRE"
	MarketStatePrePre   MarketState = "PREPRE"
	MarketStatePost     MarketState = "POST"
	MarketStatePostPost MarketState = "POSTPOST"
	MarketStateClosed   MarketState = "CLOSED"
)

// Quote is a read-only market data input borrowed for one computation
type Quote struct {
	Symbol        string      `json:"symbol"`
	Price         float64     `json:"price"`
	PreviousClose *float64    `json:"previous_close,omitempty"`
	PreMarket     *float64    `json:"pre_market,omitempty"`
	PostMarket    *float64    `json:"post_market,omitempty"`
	MarketState   MarketState `json:"market_state,omitempty"`
	Currency      string      `json:"currency,omitempty"`
}

// PricePoint is one entry of a daily close or FX rate series
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}
