package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds a participant's cash balance. Cash is debited when a buy
// order reserves collateral and credited by settlement (seller proceeds,
// buyer price-improvement refunds) or cancellation refunds.
type Account struct {
	ID          string
	Name        string
	CashBalance decimal.Decimal
	CreatedAt   time.Time
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	c := *a
	return &c
}

// Holding is a per (account, stock) position. Quantity is never negative:
// sell orders debit it at reservation time, so the book only contains
// collateralized sells.
type Holding struct {
	AccountID       string
	Symbol          string
	Quantity        int64
	AverageBuyPrice decimal.Decimal
}

// ApplyAcquisition adds qty shares bought at price and recomputes the
// weighted-average cost basis:
//
//	new_avg = (old_qty·old_avg + qty·price) / (old_qty + qty)
//
// rounded to 2 decimal places.
func (h *Holding) ApplyAcquisition(qty int64, price decimal.Decimal) {
	oldCost := decimal.NewFromInt(h.Quantity).Mul(h.AverageBuyPrice)
	newCost := decimal.NewFromInt(qty).Mul(price)
	newQty := h.Quantity + qty
	if newQty > 0 {
		h.AverageBuyPrice = oldCost.Add(newCost).DivRound(decimal.NewFromInt(newQty), 2)
	}
	h.Quantity = newQty
}

// TotalInvested returns quantity × average buy price.
func (h *Holding) TotalInvested() decimal.Decimal {
	return decimal.NewFromInt(h.Quantity).Mul(h.AverageBuyPrice)
}

// Clone returns a deep copy of the holding.
func (h *Holding) Clone() *Holding {
	c := *h
	return &c
}
