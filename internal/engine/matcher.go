// Package engine implements the continuous matching and settlement core:
// price-time priority matching, atomic per-pairing settlement, collateral
// reservation, and the conditional-order sweeper.
package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/boursechain/boursechain/internal/domain"
	"github.com/boursechain/boursechain/internal/ledger"
)

// Matcher runs the price-time priority algorithm for one incoming order
// at a time. Matching is pure computation between store reads; all
// mutation happens inside the Settler's transaction, so concurrent Match
// calls against the same resting order serialize on the store lock.
type Matcher struct {
	store   ledger.Store
	settler *Settler
	logger  *slog.Logger
}

// NewMatcher creates a Matcher.
func NewMatcher(store ledger.Store, settler *Settler, logger *slog.Logger) *Matcher {
	return &Matcher{store: store, settler: settler, logger: logger}
}

// Match repeatedly pairs the order against the best resting counter-order
// until it is fully filled or the book is exhausted, settling each
// pairing atomically. It returns every trade produced, possibly none.
//
// Orders that are not pending/partial produce zero trades, as do
// conditional orders — the sweeper converts those to market orders first.
// A pairing aborted by a concurrent settlement is skipped and matching
// continues with the next counterparty.
func (m *Matcher) Match(ctx context.Context, orderID string) ([]*domain.Trade, error) {
	var trades []*domain.Trade
	var tried []string

	for {
		var buyID, sellID, counterID string
		found := false

		err := m.store.View(ctx, func(tx ledger.Tx) error {
			o, err := tx.Order(orderID)
			if err != nil {
				return err
			}
			if !o.Resting() || o.Remaining() <= 0 || o.Style.Conditional() {
				return nil
			}

			candidates, err := tx.RestingCounterparties(ledger.CounterpartyQuery{
				Symbol:         o.Symbol,
				Side:           o.Side.Counter(),
				PriceBound:     o.Price,
				Unbounded:      o.Style == domain.StyleMarket,
				ExcludeAccount: o.AccountID,
				ExcludeOrders:  tried,
				Limit:          1,
			})
			if err != nil {
				return err
			}
			if len(candidates) == 0 {
				return nil
			}

			counter := candidates[0]
			counterID = counter.ID
			if o.Side == domain.SideBuy {
				buyID, sellID = o.ID, counter.ID
			} else {
				buyID, sellID = counter.ID, o.ID
			}
			found = true
			return nil
		})
		if err != nil {
			return trades, err
		}
		if !found {
			return trades, nil
		}

		trade, err := m.settler.Settle(ctx, buyID, sellID)
		if errors.Is(err, domain.ErrConcurrentModification) {
			// That pairing lost a race; move on to the next counterparty.
			tried = append(tried, counterID)
			continue
		}
		if err != nil {
			return trades, err
		}
		trades = append(trades, trade)
		tried = append(tried, counterID)
	}
}

// MatchAll runs Match over every resting live order, oldest first. It is
// a catch-up pass for orders whose original matching attempt was missed.
func (m *Matcher) MatchAll(ctx context.Context) (int, error) {
	var ids []string
	err := m.store.View(ctx, func(tx ledger.Tx) error {
		var err error
		ids, err = tx.RestingOrderIDs()
		return err
	})
	if err != nil {
		return 0, err
	}

	matched := 0
	for _, id := range ids {
		trades, err := m.Match(ctx, id)
		if err != nil {
			m.logger.Warn("catch-up match failed", slog.String("order_id", id), slog.String("error", err.Error()))
			continue
		}
		matched += len(trades)
	}
	return matched, nil
}
