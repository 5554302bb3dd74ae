package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/boursechain/boursechain/internal/domain"
	"github.com/boursechain/boursechain/internal/ledger"
	"github.com/boursechain/boursechain/internal/notify"
)

// holdingFaultStore fails holding reads for one account while the fault
// budget lasts, passing everything else through to the wrapped store.
type holdingFaultStore struct {
	ledger.Store
	accountID string
	failures  int
}

func (s *holdingFaultStore) Update(ctx context.Context, fn func(ledger.Tx) error) error {
	return s.Store.Update(ctx, func(tx ledger.Tx) error {
		return fn(&holdingFaultTx{Tx: tx, store: s})
	})
}

type holdingFaultTx struct {
	ledger.Tx
	store *holdingFaultStore
}

func (t *holdingFaultTx) Holding(accountID, symbol string) (*domain.Holding, error) {
	if accountID == t.store.accountID && t.store.failures > 0 {
		t.store.failures--
		return nil, errors.New("disk I/O error")
	}
	return t.Tx.Holding(accountID, symbol)
}

// panicOnceDispatcher panics on the first payload and records the rest.
type panicOnceDispatcher struct {
	mu       sync.Mutex
	tripped  bool
	payloads []notify.Payload
}

func (d *panicOnceDispatcher) Dispatch(p notify.Payload) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.tripped {
		d.tripped = true
		panic("notifier down")
	}
	d.payloads = append(d.payloads, p)
}

func TestSettle_TieGoesToBuyPrice(t *testing.T) {
	env := newTestEnv(t)
	env.seedStock(t, "FOLD", "8000")
	env.seedAccount(t, "buyer", "1000000")
	env.seedAccount(t, "seller", "0")
	env.seedHolding(t, "seller", "FOLD", 100, "8000")

	// Identical creation instants: the buy order's price wins.
	at := time.Now().UTC()
	buy := limitOrder("buyer", "FOLD", domain.SideBuy, "8500", 100, at)
	sell := limitOrder("seller", "FOLD", domain.SideSell, "8400", 100, at)
	env.place(t, buy)
	env.place(t, sell)

	trade, err := env.settler.Settle(context.Background(), buy.ID, sell.ID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if !trade.Price.Equal(dec("8500")) {
		t.Errorf("trade price = %s, want 8500 (tie resolves to the buy price)", trade.Price)
	}
}

func TestSettle_ConcurrentModificationGuard(t *testing.T) {
	env := newTestEnv(t)
	env.seedStock(t, "FOLD", "8000")
	env.seedAccount(t, "buyer", "1000000")
	env.seedAccount(t, "seller", "0")
	env.seedHolding(t, "seller", "FOLD", 100, "8000")

	base := time.Now().UTC()
	sell := limitOrder("seller", "FOLD", domain.SideSell, "8400", 100, base)
	buy := limitOrder("buyer", "FOLD", domain.SideBuy, "8400", 100, base.Add(time.Second))
	env.place(t, sell)
	env.place(t, buy)

	if _, err := env.settler.Settle(context.Background(), buy.ID, sell.ID); err != nil {
		t.Fatalf("first Settle: %v", err)
	}

	// Both sides are consumed; a stale pairing must abort without writes.
	sellerCash := env.cash(t, "seller")
	_, err := env.settler.Settle(context.Background(), buy.ID, sell.ID)
	if !errors.Is(err, domain.ErrConcurrentModification) {
		t.Fatalf("second Settle err = %v, want ErrConcurrentModification", err)
	}
	if got := env.cash(t, "seller"); !got.Equal(sellerCash) {
		t.Errorf("seller cash changed on aborted settlement: %s → %s", sellerCash, got)
	}
}

func TestSettle_UpdatesHoldingAndStats(t *testing.T) {
	env := newTestEnv(t)
	env.seedStock(t, "FOLD", "8000")
	env.seedAccount(t, "buyer", "2000000")
	env.seedAccount(t, "seller", "0")
	env.seedHolding(t, "seller", "FOLD", 200, "8000")
	// Existing position at 8400; the new fill at 8600 averages to 8500.
	env.seedHolding(t, "buyer", "FOLD", 100, "8400")

	base := time.Now().UTC()
	sell := limitOrder("seller", "FOLD", domain.SideSell, "8600", 100, base)
	buy := limitOrder("buyer", "FOLD", domain.SideBuy, "8600", 100, base.Add(time.Second))
	env.place(t, sell)
	env.place(t, buy)

	trade, err := env.settler.Settle(context.Background(), buy.ID, sell.ID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}

	h := env.holding(t, "buyer", "FOLD")
	if h.Quantity != 200 {
		t.Errorf("buyer holding qty = %d, want 200", h.Quantity)
	}
	if !h.AverageBuyPrice.Equal(dec("8500")) {
		t.Errorf("buyer avg price = %s, want 8500", h.AverageBuyPrice)
	}

	err = env.store.View(context.Background(), func(tx ledger.Tx) error {
		stock, err := tx.Stock("FOLD")
		if err != nil {
			return err
		}
		if !stock.CurrentPrice.Equal(trade.Price) {
			t.Errorf("stock price = %s, want %s", stock.CurrentPrice, trade.Price)
		}
		if stock.Volume != 100 {
			t.Errorf("stock volume = %d, want 100", stock.Volume)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSettle_AnchorRefWriteback(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := newTestEnv(t)
	env.settler = NewSettler(env.store, env.dispatcher, &fixedRefRecorder{ref: "0xdeadbeef"}, logger)

	env.seedStock(t, "FOLD", "8000")
	env.seedAccount(t, "buyer", "1000000")
	env.seedAccount(t, "seller", "0")
	env.seedHolding(t, "seller", "FOLD", 100, "8000")

	base := time.Now().UTC()
	sell := limitOrder("seller", "FOLD", domain.SideSell, "8400", 100, base)
	buy := limitOrder("buyer", "FOLD", domain.SideBuy, "8400", 100, base.Add(time.Second))
	env.place(t, sell)
	env.place(t, buy)

	trade, err := env.settler.Settle(context.Background(), buy.ID, sell.ID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}

	// Anchoring runs in the background; poll for the reference.
	deadline := time.Now().Add(2 * time.Second)
	for {
		var ref string
		err := env.store.View(context.Background(), func(tx ledger.Tx) error {
			tr, err := tx.Trade(trade.ID)
			if err != nil {
				return err
			}
			ref = tr.AnchorRef
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if ref == "0xdeadbeef" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("AnchorRef = %q, want 0xdeadbeef before deadline", ref)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSettle_HoldingReadFailureAbortsCleanly(t *testing.T) {
	env := newTestEnv(t)
	env.seedStock(t, "FOLD", "8000")
	env.seedAccount(t, "buyer", "2000000")
	env.seedAccount(t, "seller", "0")
	env.seedHolding(t, "seller", "FOLD", 200, "8000")
	env.seedHolding(t, "buyer", "FOLD", 100, "8400")

	base := time.Now().UTC()
	sell := limitOrder("seller", "FOLD", domain.SideSell, "8400", 100, base)
	buy := limitOrder("buyer", "FOLD", domain.SideBuy, "8400", 100, base.Add(time.Second))
	env.place(t, sell)
	env.place(t, buy)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	faulty := &holdingFaultStore{Store: env.store, accountID: "buyer", failures: 1}
	settler := NewSettler(faulty, env.dispatcher, &fixedRefRecorder{}, logger)

	if _, err := settler.Settle(context.Background(), buy.ID, sell.ID); err == nil {
		t.Fatal("Settle succeeded despite the buyer holding read failing")
	}

	// The transaction rolled back: the buyer's position, the seller's
	// cash, and the fill state are all untouched.
	h := env.holding(t, "buyer", "FOLD")
	if h.Quantity != 100 || !h.AverageBuyPrice.Equal(dec("8400")) {
		t.Errorf("buyer holding = %d @ %s, want 100 @ 8400", h.Quantity, h.AverageBuyPrice)
	}
	if got := env.cash(t, "seller"); !got.Equal(dec("0")) {
		t.Errorf("seller cash = %s, want 0", got)
	}
	if got := env.order(t, buy.ID); got.FilledQuantity != 0 {
		t.Errorf("buy filled quantity = %d, want 0", got.FilledQuantity)
	}

	// The fault was transient; a retry settles on top of the prior shares.
	if _, err := settler.Settle(context.Background(), buy.ID, sell.ID); err != nil {
		t.Fatalf("retry Settle: %v", err)
	}
	h = env.holding(t, "buyer", "FOLD")
	if h.Quantity != 200 {
		t.Errorf("buyer holding = %d, want 200 (prior shares kept)", h.Quantity)
	}
}

func TestSettle_HookPanicIsIsolated(t *testing.T) {
	env := newTestEnv(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dispatcher := &panicOnceDispatcher{}
	settler := NewSettler(env.store, dispatcher, &fixedRefRecorder{}, logger)

	env.seedStock(t, "FOLD", "8000")
	env.seedAccount(t, "buyer", "1000000")
	env.seedAccount(t, "seller", "0")
	env.seedHolding(t, "seller", "FOLD", 100, "8000")

	base := time.Now().UTC()
	sell := limitOrder("seller", "FOLD", domain.SideSell, "8400", 100, base)
	buy := limitOrder("buyer", "FOLD", domain.SideBuy, "8400", 100, base.Add(time.Second))
	env.place(t, sell)
	env.place(t, buy)

	trade, err := settler.Settle(context.Background(), buy.ID, sell.ID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}

	// The buyer's notification hook panicked; the seller's still ran.
	dispatcher.mu.Lock()
	n := len(dispatcher.payloads)
	var account string
	if n > 0 {
		account = dispatcher.payloads[0].AccountID
	}
	dispatcher.mu.Unlock()
	if n != 1 || account != "seller" {
		t.Errorf("dispatched %d payloads to %q, want only the seller's", n, account)
	}

	// The committed state is unaffected by the panic.
	err = env.store.View(context.Background(), func(tx ledger.Tx) error {
		tr, err := tx.Trade(trade.ID)
		if err != nil {
			return err
		}
		if tr.Status != domain.TradeStatusConfirmed {
			t.Errorf("trade status = %s, want confirmed", tr.Status)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := env.cash(t, "seller"); !got.Equal(dec("840000")) {
		t.Errorf("seller cash = %s, want 840000", got)
	}
}
