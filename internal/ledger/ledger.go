// Package ledger defines the transactional storage contract the engine
// runs against. Every mutation of an Order, Account, Holding, or Stock
// happens inside a single Update scope, which provides exclusive locking
// over the touched rows and an atomic commit: either every write in the
// scope becomes visible or none does.
package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/boursechain/boursechain/internal/domain"
)

// CounterpartyQuery selects resting counter-orders for a matching pass.
type CounterpartyQuery struct {
	Symbol string
	// Side of the resting orders wanted (the counter side of the
	// incoming order).
	Side domain.Side
	// Inclusive price bound: asks at or below it for Side == sell,
	// bids at or above it for Side == buy. Ignored when Unbounded.
	PriceBound decimal.Decimal
	Unbounded  bool
	// Self-trade prevention: orders owned by this account never match.
	ExcludeAccount string
	// Orders already tried (and aborted) within the current match
	// invocation.
	ExcludeOrders []string
	// Maximum number of orders to return; 0 means no limit.
	Limit int
}

// BookLevel is one aggregated price level of the resting book.
type BookLevel struct {
	Price    decimal.Decimal
	Quantity int64
	Orders   int
}

// Tx is the set of row operations available inside a transaction scope.
// Rows returned by reads are private copies; a mutation becomes durable
// only when passed back through the corresponding update call and the
// scope commits.
type Tx interface {
	// Orders.
	Order(id string) (*domain.Order, error)
	CreateOrder(o *domain.Order) error
	UpdateOrder(o *domain.Order) error
	// RestingCounterparties returns matchable counter-orders sorted by
	// price-time priority: price ascending for asks, descending for
	// bids, creation time ascending within a level. Conditional orders
	// never appear. Remaining quantities change after each settlement,
	// so callers must re-query rather than iterate a stale result.
	RestingCounterparties(q CounterpartyQuery) ([]*domain.Order, error)
	// ConditionalOrders returns all resting stop-loss/take-profit
	// orders, for the sweeper.
	ConditionalOrders() ([]*domain.Order, error)
	// RestingOrderIDs returns the ids of all pending/partial
	// non-conditional orders.
	RestingOrderIDs() ([]string, error)
	OrdersByAccount(accountID string, status *domain.OrderStatus) ([]*domain.Order, error)

	// Accounts.
	Account(id string) (*domain.Account, error)
	CreateAccount(a *domain.Account) error
	UpdateAccount(a *domain.Account) error

	// Holdings.
	Holding(accountID, symbol string) (*domain.Holding, error)
	UpsertHolding(h *domain.Holding) error
	HoldingsByAccount(accountID string) ([]*domain.Holding, error)

	// Trades.
	CreateTrade(t *domain.Trade) error
	Trade(id string) (*domain.Trade, error)
	TradesBySymbol(symbol string, limit int) ([]*domain.Trade, error)
	AttachAnchorRef(tradeID, ref string) error

	// Stocks.
	Stock(symbol string) (*domain.Stock, error)
	CreateStock(s *domain.Stock) error
	UpdateStock(s *domain.Stock) error
	Stocks() ([]*domain.Stock, error)

	// BookLevels aggregates resting quantity into at most depth price
	// levels, best first.
	BookLevels(symbol string, side domain.Side, depth int) ([]BookLevel, error)
}

// Store is the transactional ledger. Update runs fn under an exclusive
// writer scope and commits atomically when fn returns nil; any error from
// fn discards every staged write. Commit failures are reported wrapped in
// domain.ErrStoreFailure. View runs fn read-only.
type Store interface {
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
	Close() error
}
