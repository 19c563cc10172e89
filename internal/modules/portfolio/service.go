package portfolio

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jmercier/folio/internal/domain"
)

// Service orchestrates portfolio book-keeping. It validates writes before
// they reach the repository and notifies listeners when the book changes.
type Service struct {
	repo     *Repository
	notifier domain.ChangeNotifier
	log      zerolog.Logger
}

// NewService creates a new portfolio service.
func NewService(repo *Repository, notifier domain.ChangeNotifier, log zerolog.Logger) *Service {
	if notifier == nil {
		notifier = domain.NopNotifier{}
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		log:      log.With().Str("service", "portfolio").Logger(),
	}
}

// CreateAccount validates and stores a new account.
func (s *Service) CreateAccount(name string, accountType domain.AccountType, baseCurrency string) (*domain.Account, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("account name is required")
	}
	if !accountType.Valid() {
		return nil, fmt.Errorf("invalid account type: %s", accountType)
	}
	if len(baseCurrency) != 3 {
		return nil, fmt.Errorf("invalid base currency: %s", baseCurrency)
	}

	account := &domain.Account{
		Name:         name,
		AccountType:  accountType,
		BaseCurrency: strings.ToUpper(baseCurrency),
	}
	if err := s.repo.CreateAccount(account); err != nil {
		return nil, err
	}

	s.log.Info().Str("account", account.ID).Str("name", name).Msg("Account created")
	s.notifier.NotifyDataChanged()
	return account, nil
}

// AddHolding validates and stores a new holding under an account.
// The account type restricts which markets the holding may trade on.
func (s *Service) AddHolding(accountID, symbol, name string, assetType domain.AssetType, market domain.Market, currency string) (*domain.Holding, error) {
	account, err := s.repo.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("account %s not found", accountID)
	}

	if strings.TrimSpace(symbol) == "" {
		return nil, fmt.Errorf("holding symbol is required")
	}
	if !assetType.Valid() {
		return nil, fmt.Errorf("invalid asset type: %s", assetType)
	}
	if !market.Valid() {
		return nil, fmt.Errorf("invalid market: %s", market)
	}
	if !account.AccountType.AllowsMarket(market) {
		return nil, fmt.Errorf("account type %s does not allow market %s", account.AccountType, market)
	}
	if currency == "" {
		currency = market.DefaultCurrency()
	}

	holding := &domain.Holding{
		AccountID: accountID,
		Symbol:    strings.ToUpper(symbol),
		Name:      name,
		AssetType: assetType,
		Market:    market,
		Currency:  strings.ToUpper(currency),
	}
	if err := s.repo.CreateHolding(holding); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("account", accountID).
		Str("symbol", holding.Symbol).
		Msg("Holding added")
	s.notifier.NotifyDataChanged()
	return holding, nil
}

// RecordTransaction validates and stores a trade against a holding.
// Sells exceeding the held quantity are accepted but logged; derived
// positions clamp at zero rather than going negative.
func (s *Service) RecordTransaction(holdingID string, txType domain.TransactionType, date time.Time, quantity, price, fee float64, note string) (*domain.Transaction, error) {
	holding, err := s.repo.GetHolding(holdingID)
	if err != nil {
		return nil, err
	}
	if holding == nil {
		return nil, fmt.Errorf("holding %s not found", holdingID)
	}

	if !txType.Valid() {
		return nil, fmt.Errorf("invalid transaction type: %s", txType)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}
	if price < 0 || fee < 0 {
		return nil, fmt.Errorf("price and fee must not be negative")
	}
	if date.After(time.Now()) {
		return nil, fmt.Errorf("trade date %s is in the future", domain.DayKey(date))
	}

	if txType == domain.TransactionSell {
		pos := holding.PositionAsOf(date)
		if quantity > pos.Quantity {
			s.log.Warn().
				Str("holding", holdingID).
				Float64("sell_quantity", quantity).
				Float64("held", pos.Quantity).
				Msg("Sell exceeds held quantity")
		}
	}

	tx := &domain.Transaction{
		HoldingID: holdingID,
		Type:      txType,
		Date:      domain.Day(date),
		Quantity:  quantity,
		Price:     price,
		Fee:       fee,
		Currency:  holding.Currency,
		Note:      note,
	}
	if err := s.repo.CreateTransaction(tx); err != nil {
		return nil, err
	}

	s.notifier.NotifyDataChanged()
	return tx, nil
}

// DeleteAccount removes an account with all its holdings and transactions.
func (s *Service) DeleteAccount(id string) error {
	if err := s.repo.DeleteAccount(id); err != nil {
		return err
	}
	s.notifier.NotifyDataChanged()
	return nil
}

// DeleteHolding removes a holding with all its transactions.
func (s *Service) DeleteHolding(id string) error {
	if err := s.repo.DeleteHolding(id); err != nil {
		return err
	}
	s.notifier.NotifyDataChanged()
	return nil
}

// DeleteTransaction removes a single transaction.
func (s *Service) DeleteTransaction(id string) error {
	if err := s.repo.DeleteTransaction(id); err != nil {
		return err
	}
	s.notifier.NotifyDataChanged()
	return nil
}

// ImportTransactions bulk-loads transactions in a single write.
// All rows are validated up front; either every row lands or none do.
func (s *Service) ImportTransactions(txs []domain.Transaction) (int, error) {
	for i := range txs {
		if txs[i].HoldingID == "" {
			return 0, fmt.Errorf("transaction %d: holding id is required", i)
		}
		if !txs[i].Type.Valid() {
			return 0, fmt.Errorf("transaction %d: invalid type %s", i, txs[i].Type)
		}
		if txs[i].Quantity <= 0 {
			return 0, fmt.Errorf("transaction %d: quantity must be positive", i)
		}
		txs[i].Date = domain.Day(txs[i].Date)
	}

	if err := s.repo.ImportTransactions(txs); err != nil {
		return 0, err
	}

	s.log.Info().Int("count", len(txs)).Msg("Transactions imported")
	s.notifier.NotifyDataChanged()
	return len(txs), nil
}

// GetAccounts returns all accounts without holdings.
func (s *Service) GetAccounts() ([]domain.Account, error) {
	return s.repo.GetAllAccounts()
}

// GetBook returns the full account graph with holdings and transactions.
func (s *Service) GetBook() ([]domain.Account, error) {
	return s.repo.GetFullGraph()
}

// GetHolding returns a holding with its transactions.
func (s *Service) GetHolding(id string) (*domain.Holding, error) {
	return s.repo.GetHolding(id)
}
