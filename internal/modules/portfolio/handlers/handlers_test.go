package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/jmercier/folio/internal/domain"
	"github.com/jmercier/folio/internal/modules/portfolio"
)

func setupRouter(t *testing.T) (*chi.Mux, *portfolio.Service) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	require.NoError(t, err)

	schemaPath := filepath.Join("..", "..", "..", "database", "schemas", "portfolio_schema.sql")
	schema, err := os.ReadFile(schemaPath)
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	repo := portfolio.NewRepository(db, zerolog.Nop())
	service := portfolio.NewService(repo, nil, zerolog.Nop())

	router := chi.NewRouter()
	NewHandler(service, zerolog.Nop()).RegisterRoutes(router)
	return router, service
}

func doJSON(t *testing.T, router *chi.Mux, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest))
}

func TestCreateAndListAccounts(t *testing.T) {
	router, _ := setupRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/accounts/", map[string]string{
		"name":          "Brokerage",
		"account_type":  "standard",
		"base_currency": "jpy",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var account domain.Account
	decodeBody(t, rec, &account)
	assert.NotEmpty(t, account.ID)
	assert.Equal(t, "JPY", account.BaseCurrency)

	rec = doJSON(t, router, http.MethodGet, "/accounts/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var accounts []domain.Account
	decodeBody(t, rec, &accounts)
	require.Len(t, accounts, 1)
	assert.Equal(t, "Brokerage", accounts[0].Name)
}

func TestCreateAccountValidation(t *testing.T) {
	router, _ := setupRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/accounts/", map[string]string{
		"name":          "",
		"account_type":  "standard",
		"base_currency": "JPY",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/accounts/", map[string]string{
		"name":          "Bad type",
		"account_type":  "margin",
		"base_currency": "JPY",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHoldingAndTransactionFlow(t *testing.T) {
	router, service := setupRouter(t)

	account, err := service.CreateAccount("Brokerage", domain.AccountTypeStandard, "JPY")
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/accounts/"+account.ID+"/holdings", map[string]string{
		"symbol":     "aapl",
		"name":       "Apple Inc.",
		"asset_type": "stock",
		"market":     "us",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var holding domain.Holding
	decodeBody(t, rec, &holding)
	assert.Equal(t, "AAPL", holding.Symbol)
	assert.Equal(t, "USD", holding.Currency) // defaulted from market

	rec = doJSON(t, router, http.MethodPost, "/holdings/"+holding.ID+"/transactions", map[string]interface{}{
		"type":     "buy",
		"date":     "2024-01-10",
		"quantity": 10.0,
		"price":    185.5,
		"fee":      1.0,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/holdings/"+holding.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var loaded domain.Holding
	decodeBody(t, rec, &loaded)
	require.Len(t, loaded.Transactions, 1)
	assert.Equal(t, 10.0, loaded.Transactions[0].Quantity)

	rec = doJSON(t, router, http.MethodDelete, "/transactions/"+loaded.Transactions[0].ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/holdings/"+holding.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/holdings/"+holding.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordTransactionInvalidDate(t *testing.T) {
	router, service := setupRouter(t)

	account, err := service.CreateAccount("Brokerage", domain.AccountTypeStandard, "JPY")
	require.NoError(t, err)
	holding, err := service.AddHolding(account.ID, "AAPL", "Apple", domain.AssetTypeStock, domain.MarketUS, "")
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/holdings/"+holding.ID+"/transactions", map[string]interface{}{
		"type":     "buy",
		"date":     "10/01/2024",
		"quantity": 1.0,
		"price":    100.0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportTransactions(t *testing.T) {
	router, service := setupRouter(t)

	account, err := service.CreateAccount("Brokerage", domain.AccountTypeStandard, "JPY")
	require.NoError(t, err)
	holding, err := service.AddHolding(account.ID, "AAPL", "Apple", domain.AssetTypeStock, domain.MarketUS, "")
	require.NoError(t, err)

	rows := []map[string]interface{}{
		{"holding_id": holding.ID, "type": "buy", "date": "2024-01-10", "quantity": 10.0, "price": 180.0},
		{"holding_id": holding.ID, "type": "sell", "date": "2024-02-15", "quantity": 4.0, "price": 190.0},
	}

	rec := doJSON(t, router, http.MethodPost, "/transactions/import", rows)
	require.Equal(t, http.StatusOK, rec.Code)

	var result map[string]int
	decodeBody(t, rec, &result)
	assert.Equal(t, 2, result["imported"])

	loaded, err := service.GetHolding(holding.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Transactions, 2)
}

func TestImportTransactionsRejectsUnknownHolding(t *testing.T) {
	router, _ := setupRouter(t)

	rows := []map[string]interface{}{
		{"holding_id": "missing", "type": "buy", "date": "2024-01-10", "quantity": 1.0, "price": 100.0},
	}

	rec := doJSON(t, router, http.MethodPost, "/transactions/import", rows)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBook(t *testing.T) {
	router, service := setupRouter(t)

	account, err := service.CreateAccount("Brokerage", domain.AccountTypeStandard, "JPY")
	require.NoError(t, err)
	_, err = service.AddHolding(account.ID, "AAPL", "Apple", domain.AssetTypeStock, domain.MarketUS, "")
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodGet, "/accounts/book", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var book []domain.Account
	decodeBody(t, rec, &book)
	require.Len(t, book, 1)
	require.Len(t, book[0].Holdings, 1)
	assert.Equal(t, "AAPL", book[0].Holdings[0].Symbol)
}
