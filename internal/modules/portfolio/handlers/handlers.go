// Package handlers provides HTTP handlers for portfolio book-keeping.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/jmercier/folio/internal/domain"
	"github.com/jmercier/folio/internal/modules/portfolio"
)

// Handler handles portfolio HTTP requests
type Handler struct {
	service *portfolio.Service
	log     zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(service *portfolio.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

type createAccountRequest struct {
	Name         string `json:"name"`
	AccountType  string `json:"account_type"`
	BaseCurrency string `json:"base_currency"`
}

type createHoldingRequest struct {
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	AssetType string `json:"asset_type"`
	Market    string `json:"market"`
	Currency  string `json:"currency"`
}

type recordTransactionRequest struct {
	Type     string  `json:"type"`
	Date     string  `json:"date"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Fee      float64 `json:"fee"`
	Note     string  `json:"note"`
}

type importTransactionRequest struct {
	HoldingID string  `json:"holding_id"`
	Type      string  `json:"type"`
	Date      string  `json:"date"`
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price"`
	Fee       float64 `json:"fee"`
	Currency  string  `json:"currency"`
	Note      string  `json:"note"`
}

// HandleListAccounts handles GET /api/accounts
func (h *Handler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.GetAccounts()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

// HandleGetBook handles GET /api/accounts/book
func (h *Handler) HandleGetBook(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.GetBook()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

// HandleCreateAccount handles POST /api/accounts
func (h *Handler) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := h.service.CreateAccount(req.Name, domain.AccountType(req.AccountType), req.BaseCurrency)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusCreated, account)
}

// HandleDeleteAccount handles DELETE /api/accounts/{id}
func (h *Handler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.service.DeleteAccount(id); err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandleCreateHolding handles POST /api/accounts/{id}/holdings
func (h *Handler) HandleCreateHolding(w http.ResponseWriter, r *http.Request, accountID string) {
	var req createHoldingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	holding, err := h.service.AddHolding(
		accountID,
		req.Symbol,
		req.Name,
		domain.AssetType(req.AssetType),
		domain.Market(req.Market),
		req.Currency,
	)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusCreated, holding)
}

// HandleGetHolding handles GET /api/holdings/{id}
func (h *Handler) HandleGetHolding(w http.ResponseWriter, r *http.Request, id string) {
	holding, err := h.service.GetHolding(id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if holding == nil {
		h.writeError(w, http.StatusNotFound, "holding not found")
		return
	}
	h.writeJSON(w, http.StatusOK, holding)
}

// HandleDeleteHolding handles DELETE /api/holdings/{id}
func (h *Handler) HandleDeleteHolding(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.service.DeleteHolding(id); err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandleRecordTransaction handles POST /api/holdings/{id}/transactions
func (h *Handler) HandleRecordTransaction(w http.ResponseWriter, r *http.Request, holdingID string) {
	var req recordTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	date, err := domain.ParseDay(req.Date)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
		return
	}

	tx, err := h.service.RecordTransaction(
		holdingID,
		domain.TransactionType(req.Type),
		date,
		req.Quantity,
		req.Price,
		req.Fee,
		req.Note,
	)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusCreated, tx)
}

// HandleDeleteTransaction handles DELETE /api/transactions/{id}
func (h *Handler) HandleDeleteTransaction(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.service.DeleteTransaction(id); err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandleImportTransactions handles POST /api/transactions/import
func (h *Handler) HandleImportTransactions(w http.ResponseWriter, r *http.Request) {
	var reqs []importTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	txs := make([]domain.Transaction, 0, len(reqs))
	for _, req := range reqs {
		date, err := domain.ParseDay(req.Date)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid date "+req.Date+", expected YYYY-MM-DD")
			return
		}
		txs = append(txs, domain.Transaction{
			HoldingID: req.HoldingID,
			Type:      domain.TransactionType(req.Type),
			Date:      date,
			Quantity:  req.Quantity,
			Price:     req.Price,
			Fee:       req.Fee,
			Currency:  req.Currency,
			Note:      req.Note,
		})
	}

	count, err := h.service.ImportTransactions(txs)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"imported": count})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
