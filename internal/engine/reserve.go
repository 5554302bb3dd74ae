package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/boursechain/boursechain/internal/domain"
	"github.com/boursechain/boursechain/internal/ledger"
)

// Reserver admits orders into the book. Collateral is set aside in the
// same transaction that creates the order, so the book only ever holds
// fully funded orders: buys debit cash at the order price, sells debit
// shares from the holding. Conditional orders reserve nothing until the
// sweeper triggers them.
type Reserver struct {
	store  ledger.Store
	logger *slog.Logger
}

// NewReserver creates a Reserver.
func NewReserver(store ledger.Store, logger *slog.Logger) *Reserver {
	return &Reserver{store: store, logger: logger}
}

// Place reserves collateral for the order and persists it atomically.
// Market orders resolve their price from the best resting counterparty
// at this moment; with no liquidity the reservation fails and the order
// is never created.
func (r *Reserver) Place(ctx context.Context, o *domain.Order) error {
	return r.store.Update(ctx, func(tx ledger.Tx) error {
		stock, err := tx.Stock(o.Symbol)
		if err != nil {
			return err
		}
		if !stock.IsActive {
			return domain.ErrStockNotFound
		}

		if !o.Style.Conditional() {
			if err := r.reserve(tx, o); err != nil {
				return err
			}
		}
		return tx.CreateOrder(o)
	})
}

// reserve prices the order if needed and debits its collateral. Called
// both at admission and when the sweeper converts a triggered conditional
// order; the caller supplies the transaction.
func (r *Reserver) reserve(tx ledger.Tx, o *domain.Order) error {
	if o.Style == domain.StyleMarket {
		best, err := tx.RestingCounterparties(ledger.CounterpartyQuery{
			Symbol:         o.Symbol,
			Side:           o.Side.Counter(),
			Unbounded:      true,
			ExcludeAccount: o.AccountID,
			Limit:          1,
		})
		if err != nil {
			return err
		}
		if len(best) == 0 {
			return domain.ErrNoLiquidity
		}
		o.Price = best[0].Price
	}

	if o.Side == domain.SideBuy {
		cost := o.Price.Mul(decimal.NewFromInt(o.Quantity))
		account, err := tx.Account(o.AccountID)
		if err != nil {
			return err
		}
		if account.CashBalance.LessThan(cost) {
			return domain.ErrInsufficientFunds
		}
		account.CashBalance = account.CashBalance.Sub(cost)
		return tx.UpdateAccount(account)
	}

	holding, err := tx.Holding(o.AccountID, o.Symbol)
	if err != nil {
		return err
	}
	if holding.Quantity < o.Quantity {
		return domain.ErrInsufficientHoldings
	}
	holding.Quantity -= o.Quantity
	return tx.UpsertHolding(holding)
}

// Release cancels the order and refunds the collateral still backing its
// unfilled remainder. It takes the same lock as settlement, so a cancel
// racing a fill either wholly precedes it (full remainder refunded) or
// wholly follows it (only the then-remaining quantity refunded). Filled
// trades are kept.
func (r *Reserver) Release(ctx context.Context, orderID, accountID string) (*domain.Order, error) {
	var cancelled *domain.Order
	err := r.store.Update(ctx, func(tx ledger.Tx) error {
		o, err := tx.Order(orderID)
		if err != nil {
			return err
		}
		if o.AccountID != accountID {
			return domain.ErrOrderNotFound
		}
		if !o.Resting() {
			return domain.ErrOrderNotCancellable
		}

		remaining := o.Remaining()
		if remaining > 0 && !o.Style.Conditional() {
			if o.Side == domain.SideBuy {
				account, err := tx.Account(o.AccountID)
				if err != nil {
					return err
				}
				refund := o.Price.Mul(decimal.NewFromInt(remaining))
				account.CashBalance = account.CashBalance.Add(refund)
				if err := tx.UpdateAccount(account); err != nil {
					return err
				}
			} else {
				holding, err := tx.Holding(o.AccountID, o.Symbol)
				if errors.Is(err, domain.ErrInsufficientHoldings) {
					holding = &domain.Holding{AccountID: o.AccountID, Symbol: o.Symbol}
				} else if err != nil {
					return err
				}
				holding.Quantity += remaining
				if err := tx.UpsertHolding(holding); err != nil {
					return err
				}
			}
		}

		o.Status = domain.OrderStatusCancelled
		o.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateOrder(o); err != nil {
			return err
		}
		cancelled = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("order cancelled",
		slog.String("order_id", cancelled.ID),
		slog.String("account_id", cancelled.AccountID),
		slog.Int64("released_quantity", cancelled.Remaining()),
	)
	return cancelled, nil
}
