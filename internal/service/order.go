package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/boursechain/boursechain/internal/domain"
	"github.com/boursechain/boursechain/internal/engine"
	"github.com/boursechain/boursechain/internal/ledger"
)

var (
	accountIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	symbolRegex    = regexp.MustCompile(`^[A-Z]{1,10}$`)
)

// ValidOrderStatuses lists all valid order status values for filtering.
var ValidOrderStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusPending:   true,
	domain.OrderStatusPartial:   true,
	domain.OrderStatusMatched:   true,
	domain.OrderStatusCancelled: true,
	domain.OrderStatusExpired:   true,
}

// SubmitOrderRequest represents the input for order submission.
type SubmitOrderRequest struct {
	AccountID    string
	Symbol       string
	Side         domain.Side
	Style        domain.ExecStyle
	Price        *float64 // required for limit; absent otherwise
	TriggerPrice *float64 // required for conditional styles
	Quantity     int64
}

// OrderService handles order submission, retrieval, cancellation, and
// matching entrypoints.
type OrderService struct {
	store    ledger.Store
	reserver *engine.Reserver
	matcher  *engine.Matcher
	logger   *slog.Logger
}

// NewOrderService creates an OrderService.
func NewOrderService(store ledger.Store, reserver *engine.Reserver, matcher *engine.Matcher, logger *slog.Logger) *OrderService {
	return &OrderService{store: store, reserver: reserver, matcher: matcher, logger: logger}
}

// SubmitOrder validates the request, reserves collateral, persists the
// order, and runs the matching engine. It returns the order in its
// post-matching state together with the trades executed.
func (s *OrderService) SubmitOrder(ctx context.Context, req SubmitOrderRequest) (*domain.Order, []*domain.Trade, error) {
	order, err := s.buildOrder(req)
	if err != nil {
		return nil, nil, err
	}

	if err := s.reserver.Place(ctx, order); err != nil {
		return nil, nil, err
	}

	// Matching failures after a successful admission leave the order
	// resting; the periodic catch-up pass will retry it.
	trades, err := s.matcher.Match(ctx, order.ID)
	if err != nil {
		s.logger.Warn("matching failed after admission",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	fresh, err := s.GetOrder(ctx, order.ID, req.AccountID)
	if err != nil {
		return order, trades, nil
	}
	return fresh, trades, nil
}

// buildOrder validates the request and assembles the order record.
func (s *OrderService) buildOrder(req SubmitOrderRequest) (*domain.Order, error) {
	if !accountIDRegex.MatchString(req.AccountID) {
		return nil, &domain.ValidationError{Message: "account_id must match ^[a-zA-Z0-9_-]{1,64}$"}
	}
	if !symbolRegex.MatchString(req.Symbol) {
		return nil, &domain.ValidationError{Message: "symbol must match ^[A-Z]{1,10}$"}
	}
	if req.Side != domain.SideBuy && req.Side != domain.SideSell {
		return nil, &domain.ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	if req.Quantity <= 0 {
		return nil, &domain.ValidationError{Message: "quantity must be a positive integer"}
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:        uuid.New().String(),
		AccountID: req.AccountID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Style:     req.Style,
		Quantity:  req.Quantity,
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	switch req.Style {
	case domain.StyleLimit:
		if req.TriggerPrice != nil {
			return nil, &domain.ValidationError{Message: "trigger_price is only valid for stop_loss and take_profit orders"}
		}
		price, err := parsePrice(req.Price, "price")
		if err != nil {
			return nil, err
		}
		order.Price = price

	case domain.StyleMarket:
		if req.Price != nil {
			return nil, &domain.ValidationError{Message: "market orders must not include price"}
		}
		if req.TriggerPrice != nil {
			return nil, &domain.ValidationError{Message: "market orders must not include trigger_price"}
		}

	case domain.StyleStopLoss, domain.StyleTakeProfit:
		if req.Price != nil {
			return nil, &domain.ValidationError{Message: "conditional orders must not include price; they execute as market orders when triggered"}
		}
		trigger, err := parsePrice(req.TriggerPrice, "trigger_price")
		if err != nil {
			return nil, err
		}
		order.TriggerPrice = trigger

	default:
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("Unknown order style: %s. Must be one of: limit, market, stop_loss, take_profit", req.Style),
		}
	}
	return order, nil
}

// parsePrice validates a monetary input: required, positive, at most 2
// decimal places.
func parsePrice(v *float64, field string) (decimal.Decimal, error) {
	if v == nil {
		return decimal.Zero, &domain.ValidationError{Message: field + " is required"}
	}
	d := decimal.NewFromFloat(*v)
	if !d.IsPositive() {
		return decimal.Zero, &domain.ValidationError{Message: field + " must be greater than 0"}
	}
	if !d.Equal(d.Round(2)) {
		return decimal.Zero, &domain.ValidationError{Message: field + " must have at most 2 decimal places"}
	}
	return d, nil
}

// GetOrder retrieves an order owned by the given account.
func (s *OrderService) GetOrder(ctx context.Context, orderID, accountID string) (*domain.Order, error) {
	var order *domain.Order
	err := s.store.View(ctx, func(tx ledger.Tx) error {
		o, err := tx.Order(orderID)
		if err != nil {
			return err
		}
		if o.AccountID != accountID {
			return domain.ErrOrderNotFound
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders returns an account's orders, newest first, optionally
// filtered by status.
func (s *OrderService) ListOrders(ctx context.Context, accountID string, status *domain.OrderStatus) ([]*domain.Order, error) {
	if status != nil && !ValidOrderStatuses[*status] {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("Invalid status filter: '%s'. Must be one of: pending, partial, matched, cancelled, expired", *status),
		}
	}
	var orders []*domain.Order
	err := s.store.View(ctx, func(tx ledger.Tx) error {
		var err error
		orders, err = tx.OrdersByAccount(accountID, status)
		return err
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// CancelOrder cancels a pending or partially filled order and refunds the
// collateral behind its unfilled remainder.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, accountID string) (*domain.Order, error) {
	return s.reserver.Release(ctx, orderID, accountID)
}

// Match runs the matching engine for one order. Exposed for callers that
// admit orders out of band.
func (s *OrderService) Match(ctx context.Context, orderID string) ([]*domain.Trade, error) {
	return s.matcher.Match(ctx, orderID)
}

// MatchAllPending runs a catch-up matching pass over all resting orders
// and returns the number of trades executed.
func (s *OrderService) MatchAllPending(ctx context.Context) (int, error) {
	return s.matcher.MatchAll(ctx)
}
