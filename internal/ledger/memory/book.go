package memory

import (
	"time"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/boursechain/boursechain/internal/domain"
)

// bookEntry is one resting order in the priority index. Only live
// (non-conditional) pending/partial orders are indexed.
type bookEntry struct {
	Price     decimal.Decimal
	CreatedAt time.Time
	OrderID   string
}

// bidLess orders the bid side: price descending, then created_at
// ascending, then order id ascending. Min() yields the best bid.
func bidLess(a, b bookEntry) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c > 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.OrderID < b.OrderID
}

// askLess orders the ask side: price ascending, then created_at
// ascending, then order id ascending. Min() yields the best ask.
func askLess(a, b bookEntry) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c < 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.OrderID < b.OrderID
}

// book holds the two priority-sorted sides for one symbol, with a
// secondary index for O(log n) removal by order id.
type book struct {
	bids  *btree.BTreeG[bookEntry]
	asks  *btree.BTreeG[bookEntry]
	index map[string]indexedEntry
}

type indexedEntry struct {
	entry bookEntry
	side  domain.Side
}

func newBook() *book {
	const degree = 32
	return &book{
		bids:  btree.NewG[bookEntry](degree, bidLess),
		asks:  btree.NewG[bookEntry](degree, askLess),
		index: make(map[string]indexedEntry),
	}
}

func (b *book) insert(side domain.Side, e bookEntry) {
	b.remove(e.OrderID)
	if side == domain.SideBuy {
		b.bids.ReplaceOrInsert(e)
	} else {
		b.asks.ReplaceOrInsert(e)
	}
	b.index[e.OrderID] = indexedEntry{entry: e, side: side}
}

func (b *book) remove(orderID string) {
	ie, ok := b.index[orderID]
	if !ok {
		return
	}
	delete(b.index, orderID)
	if ie.side == domain.SideBuy {
		b.bids.Delete(ie.entry)
	} else {
		b.asks.Delete(ie.entry)
	}
}

// walk iterates one side in priority order. The callback returns false
// to stop.
func (b *book) walk(side domain.Side, fn func(bookEntry) bool) {
	if side == domain.SideBuy {
		b.bids.Ascend(fn)
	} else {
		b.asks.Ascend(fn)
	}
}
