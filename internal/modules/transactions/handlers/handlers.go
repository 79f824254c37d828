// Package handlers provides HTTP handlers for the transaction ledger.
package handlers

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/midtierhuman/PortVault-sub000/internal/domain"
	"github.com/midtierhuman/PortVault-sub000/internal/httpapi"
	portfoliohandlers "github.com/midtierhuman/PortVault-sub000/internal/modules/portfolios/handlers"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/transactions"
)

// Handler handles transaction HTTP requests
type Handler struct {
	service *transactions.Service
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewHandler creates a new transaction handler. limiter throttles imports; nil disables it.
func NewHandler(service *transactions.Service, limiter *rate.Limiter, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		limiter: limiter,
		log:     log.With().Str("handler", "transactions").Logger(),
	}
}

type correctionRequest struct {
	InstrumentID int64           `json:"instrument_id"`
	Symbol       string          `json:"symbol,omitempty"`
	TradeDate    string          `json:"trade_date"`
	Segment      string          `json:"segment,omitempty"`
	Series       string          `json:"series,omitempty"`
	TradeType    string          `json:"trade_type"`
	Quantity     decimal.Decimal `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	TradeID      string          `json:"trade_id,omitempty"`
	OrderID      string          `json:"order_id,omitempty"`
}

// HandleList returns the ledger of a portfolio
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := httpapi.IDParam(r, portfoliohandlers.PortfolioIDParam)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	list, err := h.service.List(r.Context(), httpapi.UserID(r.Context()), portfolioID)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	httpapi.WriteNegotiated(w, r, h.log, http.StatusOK, list)
}

// HandleImport imports a batch of statement records
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := httpapi.IDParam(r, portfoliohandlers.PortfolioIDParam)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	// Statement exports carry extra columns; rows that fail to decode are reported per row
	var req transactions.ImportRequest
	if err := httpapi.DecodeJSONLenient(r, &req); err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	req.PortfolioID = portfolioID
	req.UserID = httpapi.UserID(r.Context())

	result, err := h.service.ImportTransactions(r.Context(), req)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, result)
}

// HandleCorrect rewrites one transaction
func (h *Handler) HandleCorrect(w http.ResponseWriter, r *http.Request) {
	portfolioID, transactionID, err := h.ids(r)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	var req correctionRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	tradeType, err := transactions.ParseTradeType(req.TradeType)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	tradeDate, err := domain.ParseDate(req.TradeDate)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	corrected, err := h.service.Correct(r.Context(), httpapi.UserID(r.Context()), portfolioID, transactionID, transactions.Transaction{
		InstrumentID: req.InstrumentID,
		Symbol:       req.Symbol,
		TradeDate:    tradeDate,
		Segment:      req.Segment,
		Series:       req.Series,
		TradeType:    tradeType,
		Quantity:     req.Quantity,
		Price:        req.Price,
		TradeID:      req.TradeID,
		OrderID:      req.OrderID,
	})
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, corrected)
}

// HandleDelete removes one transaction
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	portfolioID, transactionID, err := h.ids(r)
	if err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}

	if err := h.service.Delete(r.Context(), httpapi.UserID(r.Context()), portfolioID, transactionID); err != nil {
		httpapi.WriteDomainError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ids(r *http.Request) (int64, int64, error) {
	portfolioID, err := httpapi.IDParam(r, portfoliohandlers.PortfolioIDParam)
	if err != nil {
		return 0, 0, err
	}
	transactionID, err := httpapi.IDParam(r, "txID")
	if err != nil {
		return 0, 0, err
	}
	return portfolioID, transactionID, nil
}

// rateLimit rejects imports above the configured rate
func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter != nil && !h.limiter.Allow() {
			h.log.Warn().Str("path", r.URL.Path).Msg("Import rate limit exceeded")
			httpapi.WriteError(w, h.log, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests))
			return
		}
		next.ServeHTTP(w, r)
	})
}
