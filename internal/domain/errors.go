package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrAccountAlreadyExists = errors.New("account_already_exists")
	ErrAccountNotFound      = errors.New("account_not_found")
	ErrStockAlreadyExists   = errors.New("stock_already_exists")
	ErrStockNotFound        = errors.New("stock_not_found")
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrOrderNotCancellable  = errors.New("order_not_cancellable")
	ErrTradeNotFound        = errors.New("trade_not_found")
	ErrInsufficientFunds    = errors.New("insufficient_funds")
	ErrInsufficientHoldings = errors.New("insufficient_holdings")
	ErrNoLiquidity          = errors.New("no_liquidity")
)

// ErrConcurrentModification signals that a settlement re-read found one of
// the paired orders already fully consumed by a concurrent settlement. The
// matching core recovers from it locally; it is never returned to callers.
var ErrConcurrentModification = errors.New("concurrent_modification")

// ErrStoreFailure wraps transaction commit failures from the ledger store.
// Callers may retry the whole operation; no partial mutation is visible.
var ErrStoreFailure = errors.New("store_failure")

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
