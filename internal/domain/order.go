package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side indicates whether an order buys or sells shares.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Counter returns the opposite side.
func (s Side) Counter() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// ExecStyle distinguishes how an order executes. Limit and market orders
// are live immediately; stop-loss and take-profit orders are inert until
// the sweeper converts them to market orders.
type ExecStyle string

const (
	StyleLimit      ExecStyle = "limit"
	StyleMarket     ExecStyle = "market"
	StyleStopLoss   ExecStyle = "stop_loss"
	StyleTakeProfit ExecStyle = "take_profit"
)

// Conditional reports whether the style is trigger-driven.
func (s ExecStyle) Conditional() bool {
	return s == StyleStopLoss || s == StyleTakeProfit
}

// OrderStatus represents the lifecycle state of an order.
// Transitions: pending → {partial, matched, cancelled, expired};
// partial → {partial, matched, cancelled}. matched, cancelled, and
// expired are terminal.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusMatched   OrderStatus = "matched"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusExpired   OrderStatus = "expired"
)

// Order represents a standing intent to trade a single stock.
//
// Price is the limit price for limit orders. For market orders it is the
// best-counterparty snapshot price resolved at reservation time, and for
// untriggered conditional orders it is zero until the sweeper converts
// them. TriggerPrice is set only for conditional styles.
type Order struct {
	ID             string
	AccountID      string
	Symbol         string
	Side           Side
	Style          ExecStyle
	Price          decimal.Decimal
	TriggerPrice   decimal.Decimal
	Quantity       int64
	FilledQuantity int64
	Status         OrderStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() int64 {
	return o.Quantity - o.FilledQuantity
}

// Resting reports whether the order is eligible to sit on the book
// (pending or partially filled).
func (o *Order) Resting() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusPartial
}

// RecalcStatus updates the status from the filled quantity. It never
// leaves a terminal state.
func (o *Order) RecalcStatus() {
	if !o.Resting() {
		return
	}
	if o.FilledQuantity >= o.Quantity {
		o.Status = OrderStatusMatched
	} else if o.FilledQuantity > 0 {
		o.Status = OrderStatusPartial
	}
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	c := *o
	return &c
}
