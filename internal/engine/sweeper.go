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

// Sweeper periodically promotes stop-loss and take-profit orders into
// live market orders once their trigger condition is met, then hands them
// to the matching core. Orders are evaluated independently; one failure
// never blocks the sweep.
type Sweeper struct {
	store    ledger.Store
	matcher  *Matcher
	reserver *Reserver
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a Sweeper ticking at the given interval.
func NewSweeper(store ledger.Store, matcher *Matcher, reserver *Reserver, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		matcher:  matcher,
		reserver: reserver,
		interval: interval,
		logger:   logger,
	}
}

// Start launches a background goroutine that sweeps at the configured
// interval until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					s.logger.Error("sweep failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// Sweep evaluates every resting conditional order once and returns how
// many were triggered.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	var ids []string
	err := s.store.View(ctx, func(tx ledger.Tx) error {
		orders, err := tx.ConditionalOrders()
		if err != nil {
			return err
		}
		for _, o := range orders {
			ids = append(ids, o.ID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	triggered := 0
	for _, id := range ids {
		fired, err := s.sweepOne(ctx, id)
		if err != nil {
			s.logger.Warn("conditional order sweep failed",
				slog.String("order_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		if fired {
			triggered++
		}
	}
	return triggered, nil
}

// sweepOne re-checks the trigger under the store lock, converts the order
// to a market order with a fresh reservation, and runs matching. An order
// whose collateral no longer suffices is cancelled.
func (s *Sweeper) sweepOne(ctx context.Context, orderID string) (bool, error) {
	converted := false
	err := s.store.Update(ctx, func(tx ledger.Tx) error {
		o, err := tx.Order(orderID)
		if err != nil {
			return err
		}
		if !o.Resting() || !o.Style.Conditional() {
			return nil
		}
		stock, err := tx.Stock(o.Symbol)
		if err != nil {
			return err
		}
		if !triggerFired(o, stock.CurrentPrice) {
			return nil
		}

		style, price := o.Style, o.Price
		o.Style = domain.StyleMarket
		o.UpdatedAt = time.Now().UTC()

		if err := s.reserver.reserve(tx, o); err != nil {
			if errors.Is(err, domain.ErrNoLiquidity) ||
				errors.Is(err, domain.ErrInsufficientFunds) ||
				errors.Is(err, domain.ErrInsufficientHoldings) {
				// Collateral no longer covers the triggered order. The
				// stored record keeps its original execution style.
				o.Style, o.Price = style, price
				o.Status = domain.OrderStatusCancelled
				if uerr := tx.UpdateOrder(o); uerr != nil {
					return uerr
				}
				s.logger.Info("triggered order cancelled",
					slog.String("order_id", o.ID),
					slog.String("reason", err.Error()),
				)
				return nil
			}
			return err
		}

		if err := tx.UpdateOrder(o); err != nil {
			return err
		}
		converted = true
		return nil
	})
	if err != nil || !converted {
		return false, err
	}

	if _, err := s.matcher.Match(ctx, orderID); err != nil {
		s.logger.Warn("matching triggered order failed",
			slog.String("order_id", orderID),
			slog.String("error", err.Error()),
		)
	}
	return true, nil
}

// triggerFired evaluates the conditional trigger predicate against the
// current market price.
//
//	stop-loss sell:   current ≤ trigger
//	stop-loss buy:    current ≥ trigger
//	take-profit sell: current ≥ trigger
//	take-profit buy:  current ≤ trigger
func triggerFired(o *domain.Order, current decimal.Decimal) bool {
	switch o.Style {
	case domain.StyleStopLoss:
		if o.Side == domain.SideSell {
			return current.LessThanOrEqual(o.TriggerPrice)
		}
		return current.GreaterThanOrEqual(o.TriggerPrice)
	case domain.StyleTakeProfit:
		if o.Side == domain.SideSell {
			return current.GreaterThanOrEqual(o.TriggerPrice)
		}
		return current.LessThanOrEqual(o.TriggerPrice)
	}
	return false
}
