package handler

import (
	"net/http"

	"github.com/boursechain/boursechain/internal/engine"
	"github.com/boursechain/boursechain/internal/service"
)

// AdminHandler exposes operational triggers: a manual sweep of
// conditional orders and a catch-up matching pass.
type AdminHandler struct {
	orderSvc *service.OrderService
	sweeper  *engine.Sweeper
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(orderSvc *service.OrderService, sweeper *engine.Sweeper) *AdminHandler {
	return &AdminHandler{orderSvc: orderSvc, sweeper: sweeper}
}

// Sweep handles POST /admin/sweep.
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	triggered, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]int{"triggered": triggered})
}

// MatchAllPending handles POST /admin/match.
func (h *AdminHandler) MatchAllPending(w http.ResponseWriter, r *http.Request) {
	executed, err := h.orderSvc.MatchAllPending(r.Context())
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]int{"trades_executed": executed})
}
