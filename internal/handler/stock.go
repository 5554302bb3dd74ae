package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/boursechain/boursechain/internal/service"
)

// StockHandler handles stock listing and market-data endpoints.
type StockHandler struct {
	svc *service.StockService
}

// NewStockHandler creates a StockHandler.
func NewStockHandler(svc *service.StockService) *StockHandler {
	return &StockHandler{svc: svc}
}

type registerStockRequest struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	NameLocalized string  `json:"name_localized,omitempty"`
	InitialPrice  float64 `json:"initial_price"`
}

// Register handles POST /stocks.
func (h *StockHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerStockRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	stock, err := h.svc.Register(r.Context(), req.Symbol, req.Name, req.NameLocalized, req.InitialPrice)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, toStockResponse(stock))
}

// List handles GET /stocks.
func (h *StockHandler) List(w http.ResponseWriter, r *http.Request) {
	stocks, err := h.svc.List(r.Context())
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	out := make([]stockResponse, 0, len(stocks))
	for _, s := range stocks {
		out = append(out, toStockResponse(s))
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"stocks": out,
		"count":  len(out),
	})
}

// GetPrice handles GET /stocks/{symbol}/price.
func (h *StockHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	stock, err := h.svc.Get(r.Context(), symbol)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, toStockResponse(stock))
}

// GetBook handles GET /stocks/{symbol}/book with an optional ?depth=
// parameter.
func (h *StockHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	depth := 0
	if raw := r.URL.Query().Get("depth"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_request", "depth must be an integer")
			return
		}
		depth = n
	}

	book, err := h.svc.Book(r.Context(), symbol, depth)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, toBookResponse(book))
}

// GetTrades handles GET /stocks/{symbol}/trades with an optional ?limit=
// parameter.
func (h *StockHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_request", "limit must be an integer")
			return
		}
		limit = n
	}

	trades, err := h.svc.Trades(r.Context(), symbol, limit)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"symbol": symbol,
		"trades": toTradeResponses(trades),
		"count":  len(trades),
	})
}
