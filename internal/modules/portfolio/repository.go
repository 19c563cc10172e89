// Package portfolio manages accounts, holdings, and transactions in
// portfolio.db. It is the source of record that valuation and snapshot
// generation read from.
package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jmercier/folio/internal/database"
	"github.com/jmercier/folio/internal/domain"
)

// Repository handles account, holding, and transaction database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new portfolio repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// CreateAccount inserts an account, assigning an ID when one isn't provided.
func (r *Repository) CreateAccount(account *domain.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}

	_, err := r.db.Exec(
		`INSERT INTO accounts (id, name, account_type, base_currency, created_at) VALUES (?, ?, ?, ?, ?)`,
		account.ID, account.Name, string(account.AccountType), account.BaseCurrency, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create account %s: %w", account.Name, err)
	}
	return nil
}

// GetAccount returns a single account without its holdings.
// Returns nil, nil when the account doesn't exist.
func (r *Repository) GetAccount(id string) (*domain.Account, error) {
	row := r.db.QueryRow(
		`SELECT id, name, account_type, base_currency FROM accounts WHERE id = ?`, id,
	)

	var a domain.Account
	var accountType string
	err := row.Scan(&a.ID, &a.Name, &accountType, &a.BaseCurrency)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", id, err)
	}
	a.AccountType = domain.AccountType(accountType)
	return &a, nil
}

// GetAllAccounts returns all accounts without holdings, in display order.
func (r *Repository) GetAllAccounts() ([]domain.Account, error) {
	rows, err := r.db.Query(
		`SELECT id, name, account_type, base_currency FROM accounts ORDER BY sort_order, name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		var accountType string
		if err := rows.Scan(&a.ID, &a.Name, &accountType, &a.BaseCurrency); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.AccountType = domain.AccountType(accountType)
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// DeleteAccount removes an account. Holdings and transactions cascade.
func (r *Repository) DeleteAccount(id string) error {
	result, err := r.db.Exec(`DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account %s: %w", id, err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("account %s not found", id)
	}
	return nil
}

// CreateHolding inserts a holding, assigning an ID when one isn't provided.
func (r *Repository) CreateHolding(h *domain.Holding) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}

	_, err := r.db.Exec(
		`INSERT INTO holdings (id, account_id, symbol, name, asset_type, market, currency, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.AccountID, h.Symbol, h.Name, string(h.AssetType), string(h.Market), h.Currency, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create holding %s: %w", h.Symbol, err)
	}
	return nil
}

// GetHolding returns a holding with its transactions loaded.
// Returns nil, nil when the holding doesn't exist.
func (r *Repository) GetHolding(id string) (*domain.Holding, error) {
	row := r.db.QueryRow(
		`SELECT id, account_id, symbol, name, asset_type, market, currency
		 FROM holdings WHERE id = ?`, id,
	)
	h, err := scanHolding(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get holding %s: %w", id, err)
	}

	txs, err := r.GetTransactions(h.ID)
	if err != nil {
		return nil, err
	}
	h.Transactions = txs
	return h, nil
}

// DeleteHolding removes a holding. Transactions cascade.
func (r *Repository) DeleteHolding(id string) error {
	result, err := r.db.Exec(`DELETE FROM holdings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete holding %s: %w", id, err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("holding %s not found", id)
	}
	return nil
}

// CreateTransaction inserts a transaction, assigning an ID when one isn't
// provided.
func (r *Repository) CreateTransaction(tx *domain.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	_, err := r.db.Exec(
		`INSERT INTO transactions (id, holding_id, tx_type, trade_date, quantity, price, fee, currency, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.HoldingID, string(tx.Type), domain.DayKey(tx.Date),
		tx.Quantity, tx.Price, tx.Fee, tx.Currency, tx.Note, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// DeleteTransaction removes a single transaction.
func (r *Repository) DeleteTransaction(id string) error {
	result, err := r.db.Exec(`DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction %s: %w", id, err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("transaction %s not found", id)
	}
	return nil
}

// GetTransactions returns a holding's transactions ordered by trade date.
func (r *Repository) GetTransactions(holdingID string) ([]domain.Transaction, error) {
	rows, err := r.db.Query(
		`SELECT id, holding_id, tx_type, trade_date, quantity, price, fee, currency, note
		 FROM transactions WHERE holding_id = ? ORDER BY trade_date, created_at`, holdingID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var txType, tradeDate string
		err := rows.Scan(&tx.ID, &tx.HoldingID, &txType, &tradeDate,
			&tx.Quantity, &tx.Price, &tx.Fee, &tx.Currency, &tx.Note)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Type = domain.TransactionType(txType)
		tx.Date, err = domain.ParseDay(tradeDate)
		if err != nil {
			return nil, fmt.Errorf("invalid trade date %q: %w", tradeDate, err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txs, nil
}

// GetFullGraph returns all accounts with holdings and transactions attached.
// Valuation and backfill runs start from this snapshot of the book.
func (r *Repository) GetFullGraph() ([]domain.Account, error) {
	accounts, err := r.GetAllAccounts()
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return accounts, nil
	}

	holdingsByAccount, err := r.getAllHoldings()
	if err != nil {
		return nil, err
	}

	txsByHolding, err := r.getAllTransactions()
	if err != nil {
		return nil, err
	}

	for i := range accounts {
		holdings := holdingsByAccount[accounts[i].ID]
		for j := range holdings {
			holdings[j].Transactions = txsByHolding[holdings[j].ID]
		}
		accounts[i].Holdings = holdings
	}
	return accounts, nil
}

// EarliestTransactionDate returns the oldest trade date across the book.
// Returns nil, nil when no transactions exist.
func (r *Repository) EarliestTransactionDate() (*time.Time, error) {
	var tradeDate sql.NullString
	err := r.db.QueryRow(`SELECT MIN(trade_date) FROM transactions`).Scan(&tradeDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query earliest transaction: %w", err)
	}
	if !tradeDate.Valid {
		return nil, nil
	}
	d, err := domain.ParseDay(tradeDate.String)
	if err != nil {
		return nil, fmt.Errorf("invalid trade date %q: %w", tradeDate.String, err)
	}
	return &d, nil
}

// ImportTransactions inserts a batch of transactions in one write
// transaction. Used by bulk import; all rows land or none do.
func (r *Repository) ImportTransactions(txs []domain.Transaction) error {
	return database.WithTransaction(r.db, func(dbTx *sql.Tx) error {
		stmt, err := dbTx.Prepare(
			`INSERT INTO transactions (id, holding_id, tx_type, trade_date, quantity, price, fee, currency, note, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		)
		if err != nil {
			return fmt.Errorf("failed to prepare transaction insert: %w", err)
		}
		defer stmt.Close()

		// Monotonic within the batch so trade-date ties keep import order
		now := time.Now().Unix()
		for i := range txs {
			if txs[i].ID == "" {
				txs[i].ID = uuid.NewString()
			}
			_, err := stmt.Exec(txs[i].ID, txs[i].HoldingID, string(txs[i].Type),
				domain.DayKey(txs[i].Date), txs[i].Quantity, txs[i].Price,
				txs[i].Fee, txs[i].Currency, txs[i].Note, now+int64(i))
			if err != nil {
				return fmt.Errorf("failed to insert transaction: %w", err)
			}
		}
		return nil
	})
}

func (r *Repository) getAllHoldings() (map[string][]domain.Holding, error) {
	rows, err := r.db.Query(
		`SELECT id, account_id, symbol, name, asset_type, market, currency
		 FROM holdings ORDER BY sort_order, symbol`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	byAccount := make(map[string][]domain.Holding)
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		byAccount[h.AccountID] = append(byAccount[h.AccountID], *h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}
	return byAccount, nil
}

func (r *Repository) getAllTransactions() (map[string][]domain.Transaction, error) {
	rows, err := r.db.Query(
		`SELECT id, holding_id, tx_type, trade_date, quantity, price, fee, currency, note
		 FROM transactions ORDER BY trade_date, created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	byHolding := make(map[string][]domain.Transaction)
	for rows.Next() {
		var tx domain.Transaction
		var txType, tradeDate string
		err := rows.Scan(&tx.ID, &tx.HoldingID, &txType, &tradeDate,
			&tx.Quantity, &tx.Price, &tx.Fee, &tx.Currency, &tx.Note)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Type = domain.TransactionType(txType)
		tx.Date, err = domain.ParseDay(tradeDate)
		if err != nil {
			return nil, fmt.Errorf("invalid trade date %q: %w", tradeDate, err)
		}
		byHolding[tx.HoldingID] = append(byHolding[tx.HoldingID], tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return byHolding, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHolding(row rowScanner) (*domain.Holding, error) {
	var h domain.Holding
	var assetType, market string
	err := row.Scan(&h.ID, &h.AccountID, &h.Symbol, &h.Name, &assetType, &market, &h.Currency)
	if err != nil {
		return nil, err
	}
	h.AssetType = domain.AssetType(assetType)
	h.Market = domain.Market(market)
	return &h, nil
}
