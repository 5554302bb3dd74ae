package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/boursechain/boursechain/internal/engine"
	"github.com/boursechain/boursechain/internal/service"
)

// NewRouter creates a chi router with all routes registered, request
// logging, and Content-Type validation middleware.
func NewRouter(
	accountSvc *service.AccountService,
	orderSvc *service.OrderService,
	stockSvc *service.StockService,
	sweeper *engine.Sweeper,
	logger *slog.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	accountH := NewAccountHandler(accountSvc, orderSvc)
	orderH := NewOrderHandler(orderSvc)
	stockH := NewStockHandler(stockSvc)
	adminH := NewAdminHandler(orderSvc, sweeper)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Account routes.
	r.Post("/accounts", accountH.Register)
	r.Get("/accounts/{account_id}", accountH.Get)
	r.Post("/accounts/{account_id}/deposit", accountH.Deposit)
	r.Get("/accounts/{account_id}/portfolio", accountH.Portfolio)
	r.Get("/accounts/{account_id}/orders", accountH.ListOrders)

	// Order routes.
	r.Post("/orders", orderH.SubmitOrder)
	r.Get("/orders/{order_id}", orderH.GetOrder)
	r.Delete("/orders/{order_id}", orderH.CancelOrder)

	// Stock routes.
	r.Post("/stocks", stockH.Register)
	r.Get("/stocks", stockH.List)
	r.Get("/stocks/{symbol}/price", stockH.GetPrice)
	r.Get("/stocks/{symbol}/book", stockH.GetBook)
	r.Get("/stocks/{symbol}/trades", stockH.GetTrades)

	// Admin routes: manual sweep and catch-up matching triggers.
	r.Post("/admin/sweep", adminH.Sweep)
	r.Post("/admin/match", adminH.MatchAllPending)

	return r
}

// requestLogging returns middleware that logs each request's method,
// path, status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// contentTypeJSON is middleware that validates Content-Type for POST,
// PUT, and PATCH requests before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
