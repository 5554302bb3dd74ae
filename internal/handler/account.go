package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/boursechain/boursechain/internal/domain"
	"github.com/boursechain/boursechain/internal/service"
)

// AccountHandler handles account endpoints.
type AccountHandler struct {
	svc      *service.AccountService
	orderSvc *service.OrderService
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(svc *service.AccountService, orderSvc *service.OrderService) *AccountHandler {
	return &AccountHandler{svc: svc, orderSvc: orderSvc}
}

type registerAccountRequest struct {
	Name        string  `json:"name"`
	InitialCash float64 `json:"initial_cash"`
}

// Register handles POST /accounts.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerAccountRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	account, err := h.svc.Register(r.Context(), req.Name, req.InitialCash)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, toAccountResponse(account))
}

// Get handles GET /accounts/{account_id}.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")
	account, err := h.svc.Get(r.Context(), accountID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, toAccountResponse(account))
}

type depositRequest struct {
	Amount float64 `json:"amount"`
}

// Deposit handles POST /accounts/{account_id}/deposit.
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	accountID := chi.URLParam(r, "account_id")
	account, err := h.svc.Deposit(r.Context(), accountID, req.Amount)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, toAccountResponse(account))
}

// Portfolio handles GET /accounts/{account_id}/portfolio.
func (h *AccountHandler) Portfolio(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")
	portfolio, err := h.svc.Portfolio(r.Context(), accountID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, toPortfolioResponse(portfolio))
}

// ListOrders handles GET /accounts/{account_id}/orders with an optional
// ?status= filter.
func (h *AccountHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")

	var status *domain.OrderStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := domain.OrderStatus(raw)
		status = &st
	}

	orders, err := h.orderSvc.ListOrders(r.Context(), accountID, status)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"orders": toOrderResponses(orders),
		"count":  len(orders),
	})
}
