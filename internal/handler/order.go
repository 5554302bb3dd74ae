package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/boursechain/boursechain/internal/domain"
	"github.com/boursechain/boursechain/internal/service"
)

// accountHeader carries the caller's account identity. Stands in for the
// authenticated user of a full deployment.
const accountHeader = "X-Account-ID"

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc *service.OrderService
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(svc *service.OrderService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

type submitOrderRequest struct {
	AccountID    string   `json:"account_id"`
	Symbol       string   `json:"symbol"`
	Side         string   `json:"side"`
	Style        string   `json:"style"`
	Price        *float64 `json:"price,omitempty"`
	TriggerPrice *float64 `json:"trigger_price,omitempty"`
	Quantity     int64    `json:"quantity"`
}

type submitOrderResponse struct {
	Order  orderResponse   `json:"order"`
	Trades []tradeResponse `json:"trades"`
}

// SubmitOrder handles POST /orders.
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	order, trades, err := h.svc.SubmitOrder(r.Context(), service.SubmitOrderRequest{
		AccountID:    req.AccountID,
		Symbol:       req.Symbol,
		Side:         domain.Side(req.Side),
		Style:        domain.ExecStyle(req.Style),
		Price:        req.Price,
		TriggerPrice: req.TriggerPrice,
		Quantity:     req.Quantity,
	})
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, submitOrderResponse{
		Order:  toOrderResponse(order),
		Trades: toTradeResponses(trades),
	})
}

// GetOrder handles GET /orders/{order_id}. The caller proves ownership
// via the X-Account-ID header.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	accountID := r.Header.Get(accountHeader)
	if accountID == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", accountHeader+" header is required")
		return
	}

	orderID := chi.URLParam(r, "order_id")
	order, err := h.svc.GetOrder(r.Context(), orderID, accountID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, toOrderResponse(order))
}

// CancelOrder handles DELETE /orders/{order_id}. Cancellation refunds the
// collateral behind the unfilled remainder.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	accountID := r.Header.Get(accountHeader)
	if accountID == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", accountHeader+" header is required")
		return
	}

	orderID := chi.URLParam(r, "order_id")
	order, err := h.svc.CancelOrder(r.Context(), orderID, accountID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, toOrderResponse(order))
}
