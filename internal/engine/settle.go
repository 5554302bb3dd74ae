package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/boursechain/boursechain/internal/anchor"
	"github.com/boursechain/boursechain/internal/domain"
	"github.com/boursechain/boursechain/internal/ledger"
	"github.com/boursechain/boursechain/internal/notify"
)

// Settler executes one matched pairing as a single atomic unit: order fill
// state, cash balances, the buyer's holding, and the stock's market
// statistics all commit together with the Trade record, or not at all.
//
// Side effects toward collaborators (notifications, anchoring, market
// deltas) are collected as post-commit hooks during settlement and run
// only after the commit succeeds, each independently fault-isolated.
type Settler struct {
	store    ledger.Store
	notifier notify.Dispatcher
	recorder anchor.Recorder
	logger   *slog.Logger
}

// NewSettler creates a Settler with the given collaborators.
func NewSettler(store ledger.Store, notifier notify.Dispatcher, recorder anchor.Recorder, logger *slog.Logger) *Settler {
	return &Settler{
		store:    store,
		notifier: notifier,
		recorder: recorder,
		logger:   logger,
	}
}

// Settle pairs the two orders under the store's exclusive lock.
//
// Both orders are re-read inside the transaction, so the quantity is
// always computed against current fill state; if either side has nothing
// left, Settle returns domain.ErrConcurrentModification and no state
// changes. The execution price is the price of whichever order was
// created earlier (the maker), with creation-time ties going to the buy
// order.
func (s *Settler) Settle(ctx context.Context, buyOrderID, sellOrderID string) (*domain.Trade, error) {
	var trade *domain.Trade
	var hooks []func()

	err := s.store.Update(ctx, func(tx ledger.Tx) error {
		buy, err := tx.Order(buyOrderID)
		if err != nil {
			return err
		}
		sell, err := tx.Order(sellOrderID)
		if err != nil {
			return err
		}

		// Step 1: re-read guard against a concurrent settlement having
		// consumed either side.
		if buy.Remaining() <= 0 || sell.Remaining() <= 0 || !buy.Resting() || !sell.Resting() {
			return domain.ErrConcurrentModification
		}

		qty := buy.Remaining()
		if sell.Remaining() < qty {
			qty = sell.Remaining()
		}

		// Maker rule: the earlier order's price wins.
		price := sell.Price
		if !buy.CreatedAt.After(sell.CreatedAt) {
			price = buy.Price
		}
		qtyDec := decimal.NewFromInt(qty)
		total := price.Mul(qtyDec)
		now := time.Now().UTC()

		// Step 2: the trade record.
		trade = &domain.Trade{
			ID:          uuid.New().String(),
			BuyOrderID:  buy.ID,
			SellOrderID: sell.ID,
			Symbol:      buy.Symbol,
			Price:       price,
			Quantity:    qty,
			TotalValue:  total,
			BuyerID:     buy.AccountID,
			SellerID:    sell.AccountID,
			Status:      domain.TradeStatusConfirmed,
			ExecutedAt:  now,
		}
		if err := tx.CreateTrade(trade); err != nil {
			return err
		}

		// Step 3: fill state.
		buy.FilledQuantity += qty
		sell.FilledQuantity += qty
		buy.RecalcStatus()
		sell.RecalcStatus()
		buy.UpdatedAt = now
		sell.UpdatedAt = now
		if err := tx.UpdateOrder(buy); err != nil {
			return err
		}
		if err := tx.UpdateOrder(sell); err != nil {
			return err
		}

		// Step 4: buyer price-improvement refund. Cash was reserved at
		// the buy order's own price when it was created.
		if price.LessThan(buy.Price) {
			buyer, err := tx.Account(buy.AccountID)
			if err != nil {
				return err
			}
			refund := buy.Price.Sub(price).Mul(qtyDec)
			buyer.CashBalance = buyer.CashBalance.Add(refund)
			if err := tx.UpdateAccount(buyer); err != nil {
				return err
			}
		}

		// Step 5: seller proceeds.
		seller, err := tx.Account(sell.AccountID)
		if err != nil {
			return err
		}
		seller.CashBalance = seller.CashBalance.Add(total)
		if err := tx.UpdateAccount(seller); err != nil {
			return err
		}

		// Step 6: buyer holding with weighted-average cost basis. The
		// seller's holding was debited when the sell order reserved.
		holding, err := tx.Holding(buy.AccountID, buy.Symbol)
		if errors.Is(err, domain.ErrInsufficientHoldings) {
			holding = &domain.Holding{AccountID: buy.AccountID, Symbol: buy.Symbol}
		} else if err != nil {
			return err
		}
		holding.ApplyAcquisition(qty, price)
		if err := tx.UpsertHolding(holding); err != nil {
			return err
		}

		// Step 7: market statistics.
		stock, err := tx.Stock(buy.Symbol)
		if err != nil {
			return err
		}
		stock.ApplyTrade(price, qty)
		stock.UpdatedAt = now
		if err := tx.UpdateStock(stock); err != nil {
			return err
		}

		// Step 8: collect post-commit hooks.
		buyerNote, sellerNote := notify.MatchedPayloads(buy, sell, stock, qty, price, total)
		tradeID := trade.ID
		ev := anchor.Event{
			TradeID:     tradeID,
			StockSymbol: stock.Symbol,
			Price:       price,
			Quantity:    qty,
			TotalValue:  total,
			BuyerID:     buy.AccountID,
			SellerID:    sell.AccountID,
		}
		hooks = append(hooks,
			func() { s.notifier.Dispatch(buyerNote) },
			func() { s.notifier.Dispatch(sellerNote) },
			func() { s.anchorTrade(tradeID, ev) },
		)

		s.logger.Info("settled",
			slog.String("trade_id", tradeID),
			slog.String("symbol", stock.Symbol),
			slog.String("price", price.String()),
			slog.Int64("quantity", qty),
			slog.String("buy_order", buy.ID),
			slog.String("sell_order", sell.ID),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.runHooks(hooks)
	return trade, nil
}

// runHooks invokes each post-commit hook, isolating panics so one failing
// collaborator cannot affect the others or the committed state.
func (s *Settler) runHooks(hooks []func()) {
	for _, hook := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("post-commit hook panicked", slog.Any("panic", r))
				}
			}()
			hook()
		}()
	}
}

// anchorTrade submits the event to the anchoring collaborator in the
// background and writes back the reference if one is produced. Failures
// are logged and dropped.
func (s *Settler) anchorTrade(tradeID string, ev anchor.Event) {
	go func() {
		ctx := context.Background()
		ref, err := s.recorder.Record(ctx, ev)
		if err != nil {
			s.logger.Warn("anchoring failed", slog.String("trade_id", tradeID), slog.String("error", err.Error()))
			return
		}
		if ref == "" {
			return
		}
		err = s.store.Update(ctx, func(tx ledger.Tx) error {
			return tx.AttachAnchorRef(tradeID, ref)
		})
		if err != nil {
			s.logger.Warn("anchor ref write failed", slog.String("trade_id", tradeID), slog.String("error", err.Error()))
		}
	}()
}
