package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/boursechain/boursechain/internal/domain"
	"github.com/boursechain/boursechain/internal/ledger"
)

// Under any sequence of placements, matches, and cancellations, cash and
// shares are conserved: money and stock move between accounts and order
// reservations but are never created or destroyed.
func TestProperty_ConservationUnderRandomFlow(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		env := newTestEnv(t)
		env.seedStock(t, "FOLD", "100")

		nAccounts := rapid.IntRange(2, 5).Draw(rt, "accounts")
		initialCash := dec("1000000")
		initialShares := int64(1000)
		accountIDs := make([]string, nAccounts)
		for i := range accountIDs {
			accountIDs[i] = fmt.Sprintf("acct-%d", i)
			env.seedAccount(t, accountIDs[i], "1000000")
			env.seedHolding(t, accountIDs[i], "FOLD", initialShares, "100")
		}
		totalCash := initialCash.Mul(decimal.NewFromInt(int64(nAccounts)))
		totalShares := initialShares * int64(nAccounts)

		var placed []string
		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			cancel := len(placed) > 0 && rapid.Bool().Draw(rt, "cancel")
			if cancel {
				id := rapid.SampledFrom(placed).Draw(rt, "victim")
				o := env.order(t, id)
				_, err := env.reserver.Release(ctx, id, o.AccountID)
				if err != nil && !errors.Is(err, domain.ErrOrderNotCancellable) {
					rt.Fatalf("Release: %v", err)
				}
				continue
			}

			account := rapid.SampledFrom(accountIDs).Draw(rt, "account")
			side := domain.SideBuy
			if rapid.Bool().Draw(rt, "sell") {
				side = domain.SideSell
			}
			price := fmt.Sprintf("%d", rapid.IntRange(90, 110).Draw(rt, "price"))
			qty := int64(rapid.IntRange(1, 50).Draw(rt, "qty"))

			o := limitOrder(account, "FOLD", side, price, qty, time.Now().UTC())
			err := env.reserver.Place(ctx, o)
			if errors.Is(err, domain.ErrInsufficientFunds) || errors.Is(err, domain.ErrInsufficientHoldings) {
				continue
			}
			if err != nil {
				rt.Fatalf("Place: %v", err)
			}
			placed = append(placed, o.ID)
			if _, err := env.matcher.Match(ctx, o.ID); err != nil {
				rt.Fatalf("Match: %v", err)
			}
		}

		// Tally every account's cash and shares plus the collateral still
		// reserved behind resting orders.
		cashSum := decimal.Zero
		var shareSum int64
		err := env.store.View(ctx, func(tx ledger.Tx) error {
			for _, id := range accountIDs {
				a, err := tx.Account(id)
				if err != nil {
					return err
				}
				cashSum = cashSum.Add(a.CashBalance)

				h, err := tx.Holding(id, "FOLD")
				if err == nil {
					shareSum += h.Quantity
				} else if !errors.Is(err, domain.ErrInsufficientHoldings) {
					return err
				}

				orders, err := tx.OrdersByAccount(id, nil)
				if err != nil {
					return err
				}
				for _, o := range orders {
					if !o.Resting() {
						continue
					}
					if o.Side == domain.SideBuy {
						cashSum = cashSum.Add(o.Price.Mul(decimal.NewFromInt(o.Remaining())))
					} else {
						shareSum += o.Remaining()
					}
				}

				if a.CashBalance.IsNegative() {
					rt.Fatalf("account %s has negative cash %s", id, a.CashBalance)
				}
			}
			return nil
		})
		if err != nil {
			rt.Fatalf("tally: %v", err)
		}

		if !cashSum.Equal(totalCash) {
			rt.Fatalf("cash not conserved: %s, want %s", cashSum, totalCash)
		}
		if shareSum != totalShares {
			rt.Fatalf("shares not conserved: %d, want %d", shareSum, totalShares)
		}
	})
}
