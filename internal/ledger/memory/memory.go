// Package memory implements ledger.Store with process-local state: a
// single writer lock provides the exclusive-lock discipline and staged
// clones provide the atomic commit. Resting orders are indexed per symbol
// in price-time priority B-trees.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/boursechain/boursechain/internal/domain"
	"github.com/boursechain/boursechain/internal/ledger"
)

var errReadOnly = errors.New("write inside read-only scope")

type holdingKey struct {
	accountID string
	symbol    string
}

// Store is the in-memory ledger.
type Store struct {
	mu             sync.RWMutex
	orders         map[string]*domain.Order
	accounts       map[string]*domain.Account
	holdings       map[holdingKey]*domain.Holding
	trades         map[string]*domain.Trade
	tradesBySymbol map[string][]string // symbol → trade ids, chronological
	stocks         map[string]*domain.Stock
	books          map[string]*book
}

// NewStore creates an empty in-memory ledger.
func NewStore() *Store {
	return &Store{
		orders:         make(map[string]*domain.Order),
		accounts:       make(map[string]*domain.Account),
		holdings:       make(map[holdingKey]*domain.Holding),
		trades:         make(map[string]*domain.Trade),
		tradesBySymbol: make(map[string][]string),
		stocks:         make(map[string]*domain.Stock),
		books:          make(map[string]*book),
	}
}

// Update runs fn under the writer lock. Writes are staged on the
// transaction and applied only when fn returns nil.
func (s *Store) Update(ctx context.Context, fn func(ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(s, true)
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// View runs fn under the reader lock. Any write call inside fn fails.
func (s *Store) View(ctx context.Context, fn func(ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(newTx(s, false))
}

// Close releases nothing; it exists to satisfy ledger.Store.
func (s *Store) Close() error { return nil }

func (s *Store) bookFor(symbol string) *book {
	b, ok := s.books[symbol]
	if !ok {
		b = newBook()
		s.books[symbol] = b
	}
	return b
}

// memTx stages clones of every written row until commit.
type memTx struct {
	s        *Store
	writable bool

	orders   map[string]*domain.Order
	accounts map[string]*domain.Account
	holdings map[holdingKey]*domain.Holding
	trades   map[string]*domain.Trade
	stocks   map[string]*domain.Stock

	newTrades []string // creation order, for the per-symbol chronology
}

func newTx(s *Store, writable bool) *memTx {
	return &memTx{
		s:        s,
		writable: writable,
		orders:   make(map[string]*domain.Order),
		accounts: make(map[string]*domain.Account),
		holdings: make(map[holdingKey]*domain.Holding),
		trades:   make(map[string]*domain.Trade),
		stocks:   make(map[string]*domain.Stock),
	}
}

// commit applies all staged rows to the base maps and refreshes the
// resting-order priority index for every touched order.
func (tx *memTx) commit() {
	for id, o := range tx.orders {
		tx.s.orders[id] = o
		b := tx.s.bookFor(o.Symbol)
		if o.Resting() && !o.Style.Conditional() {
			b.insert(o.Side, bookEntry{Price: o.Price, CreatedAt: o.CreatedAt, OrderID: o.ID})
		} else {
			b.remove(o.ID)
		}
	}
	for id, a := range tx.accounts {
		tx.s.accounts[id] = a
	}
	for k, h := range tx.holdings {
		tx.s.holdings[k] = h
	}
	for id, t := range tx.trades {
		tx.s.trades[id] = t
	}
	for _, id := range tx.newTrades {
		t := tx.s.trades[id]
		tx.s.tradesBySymbol[t.Symbol] = append(tx.s.tradesBySymbol[t.Symbol], id)
	}
	for sym, st := range tx.stocks {
		tx.s.stocks[sym] = st
	}
}

// Orders.

func (tx *memTx) readOrder(id string) (*domain.Order, bool) {
	if o, ok := tx.orders[id]; ok {
		return o, true
	}
	o, ok := tx.s.orders[id]
	return o, ok
}

func (tx *memTx) Order(id string) (*domain.Order, error) {
	o, ok := tx.readOrder(id)
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (tx *memTx) CreateOrder(o *domain.Order) error {
	if !tx.writable {
		return errReadOnly
	}
	tx.orders[o.ID] = o.Clone()
	return nil
}

func (tx *memTx) UpdateOrder(o *domain.Order) error {
	if !tx.writable {
		return errReadOnly
	}
	if _, ok := tx.readOrder(o.ID); !ok {
		return domain.ErrOrderNotFound
	}
	tx.orders[o.ID] = o.Clone()
	return nil
}

// matchable reports whether an order qualifies as a counterparty under q.
func matchable(o *domain.Order, q ledger.CounterpartyQuery, excluded map[string]bool) bool {
	if o.Symbol != q.Symbol || o.Side != q.Side {
		return false
	}
	if !o.Resting() || o.Style.Conditional() || o.Remaining() <= 0 {
		return false
	}
	if o.AccountID == q.ExcludeAccount || excluded[o.ID] {
		return false
	}
	if !q.Unbounded {
		if q.Side == domain.SideSell && o.Price.GreaterThan(q.PriceBound) {
			return false
		}
		if q.Side == domain.SideBuy && o.Price.LessThan(q.PriceBound) {
			return false
		}
	}
	return true
}

func (tx *memTx) RestingCounterparties(q ledger.CounterpartyQuery) ([]*domain.Order, error) {
	excluded := make(map[string]bool, len(q.ExcludeOrders))
	for _, id := range q.ExcludeOrders {
		excluded[id] = true
	}

	var result []*domain.Order
	seen := make(map[string]bool)
	b := tx.s.bookFor(q.Symbol)
	b.walk(q.Side, func(e bookEntry) bool {
		o, ok := tx.readOrder(e.OrderID)
		if !ok {
			return true
		}
		seen[e.OrderID] = true
		if !matchable(o, q, excluded) {
			return true
		}
		result = append(result, o.Clone())
		return q.Limit <= 0 || len(result) < q.Limit
	})

	// Orders staged in this transaction are not yet indexed; overlay
	// them and restore priority order.
	for id, o := range tx.orders {
		if seen[id] || !matchable(o, q, excluded) {
			continue
		}
		result = append(result, o.Clone())
	}
	sortByPriority(result, q.Side)
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

// sortByPriority sorts in matching priority: asks price ascending, bids
// price descending, then creation time, then id.
func sortByPriority(orders []*domain.Order, side domain.Side) {
	sort.SliceStable(orders, func(i, j int) bool {
		if c := orders[i].Price.Cmp(orders[j].Price); c != 0 {
			if side == domain.SideBuy {
				return c > 0
			}
			return c < 0
		}
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})
}

func (tx *memTx) ConditionalOrders() ([]*domain.Order, error) {
	var result []*domain.Order
	for id, o := range tx.s.orders {
		if _, staged := tx.orders[id]; staged {
			continue
		}
		if o.Style.Conditional() && o.Resting() {
			result = append(result, o.Clone())
		}
	}
	for _, o := range tx.orders {
		if o.Style.Conditional() && o.Resting() {
			result = append(result, o.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (tx *memTx) RestingOrderIDs() ([]string, error) {
	var pairs []*domain.Order
	for id, o := range tx.s.orders {
		if _, staged := tx.orders[id]; staged {
			continue
		}
		if o.Resting() && !o.Style.Conditional() {
			pairs = append(pairs, o)
		}
	}
	for _, o := range tx.orders {
		if o.Resting() && !o.Style.Conditional() {
			pairs = append(pairs, o)
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].CreatedAt.Before(pairs[j].CreatedAt) })
	ids := make([]string, len(pairs))
	for i, o := range pairs {
		ids[i] = o.ID
	}
	return ids, nil
}

func (tx *memTx) OrdersByAccount(accountID string, status *domain.OrderStatus) ([]*domain.Order, error) {
	var result []*domain.Order
	collect := func(o *domain.Order) {
		if o.AccountID != accountID {
			return
		}
		if status != nil && o.Status != *status {
			return
		}
		result = append(result, o.Clone())
	}
	for id, o := range tx.s.orders {
		if _, staged := tx.orders[id]; staged {
			continue
		}
		collect(o)
	}
	for _, o := range tx.orders {
		collect(o)
	}
	// Newest first.
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// Accounts.

func (tx *memTx) Account(id string) (*domain.Account, error) {
	if a, ok := tx.accounts[id]; ok {
		return a.Clone(), nil
	}
	a, ok := tx.s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return a.Clone(), nil
}

func (tx *memTx) CreateAccount(a *domain.Account) error {
	if !tx.writable {
		return errReadOnly
	}
	if _, err := tx.Account(a.ID); err == nil {
		return domain.ErrAccountAlreadyExists
	}
	tx.accounts[a.ID] = a.Clone()
	return nil
}

func (tx *memTx) UpdateAccount(a *domain.Account) error {
	if !tx.writable {
		return errReadOnly
	}
	if _, err := tx.Account(a.ID); err != nil {
		return err
	}
	tx.accounts[a.ID] = a.Clone()
	return nil
}

// Holdings.

func (tx *memTx) Holding(accountID, symbol string) (*domain.Holding, error) {
	k := holdingKey{accountID, symbol}
	if h, ok := tx.holdings[k]; ok {
		return h.Clone(), nil
	}
	h, ok := tx.s.holdings[k]
	if !ok {
		return nil, domain.ErrInsufficientHoldings
	}
	return h.Clone(), nil
}

func (tx *memTx) UpsertHolding(h *domain.Holding) error {
	if !tx.writable {
		return errReadOnly
	}
	tx.holdings[holdingKey{h.AccountID, h.Symbol}] = h.Clone()
	return nil
}

func (tx *memTx) HoldingsByAccount(accountID string) ([]*domain.Holding, error) {
	var result []*domain.Holding
	for k, h := range tx.s.holdings {
		if _, staged := tx.holdings[k]; staged {
			continue
		}
		if k.accountID == accountID {
			result = append(result, h.Clone())
		}
	}
	for k, h := range tx.holdings {
		if k.accountID == accountID {
			result = append(result, h.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result, nil
}

// Trades.

func (tx *memTx) CreateTrade(t *domain.Trade) error {
	if !tx.writable {
		return errReadOnly
	}
	tx.trades[t.ID] = t.Clone()
	tx.newTrades = append(tx.newTrades, t.ID)
	return nil
}

func (tx *memTx) Trade(id string) (*domain.Trade, error) {
	if t, ok := tx.trades[id]; ok {
		return t.Clone(), nil
	}
	t, ok := tx.s.trades[id]
	if !ok {
		return nil, domain.ErrTradeNotFound
	}
	return t.Clone(), nil
}

func (tx *memTx) TradesBySymbol(symbol string, limit int) ([]*domain.Trade, error) {
	ids := tx.s.tradesBySymbol[symbol]
	var result []*domain.Trade
	// Newest first.
	for i := len(ids) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		result = append(result, tx.s.trades[ids[i]].Clone())
	}
	return result, nil
}

func (tx *memTx) AttachAnchorRef(tradeID, ref string) error {
	if !tx.writable {
		return errReadOnly
	}
	t, err := tx.Trade(tradeID)
	if err != nil {
		return err
	}
	t.AnchorRef = ref
	tx.trades[t.ID] = t
	return nil
}

// Stocks.

func (tx *memTx) Stock(symbol string) (*domain.Stock, error) {
	if st, ok := tx.stocks[symbol]; ok {
		return st.Clone(), nil
	}
	st, ok := tx.s.stocks[symbol]
	if !ok {
		return nil, domain.ErrStockNotFound
	}
	return st.Clone(), nil
}

func (tx *memTx) CreateStock(s *domain.Stock) error {
	if !tx.writable {
		return errReadOnly
	}
	if _, err := tx.Stock(s.Symbol); err == nil {
		return domain.ErrStockAlreadyExists
	}
	tx.stocks[s.Symbol] = s.Clone()
	return nil
}

func (tx *memTx) UpdateStock(s *domain.Stock) error {
	if !tx.writable {
		return errReadOnly
	}
	if _, err := tx.Stock(s.Symbol); err != nil {
		return err
	}
	tx.stocks[s.Symbol] = s.Clone()
	return nil
}

func (tx *memTx) Stocks() ([]*domain.Stock, error) {
	var result []*domain.Stock
	for sym, st := range tx.s.stocks {
		if _, staged := tx.stocks[sym]; staged {
			continue
		}
		result = append(result, st.Clone())
	}
	for _, st := range tx.stocks {
		result = append(result, st.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result, nil
}

func (tx *memTx) BookLevels(symbol string, side domain.Side, depth int) ([]ledger.BookLevel, error) {
	if depth <= 0 {
		return nil, nil
	}
	var levels []ledger.BookLevel
	b := tx.s.bookFor(symbol)
	b.walk(side, func(e bookEntry) bool {
		o, ok := tx.readOrder(e.OrderID)
		if !ok || !o.Resting() || o.Remaining() <= 0 {
			return true
		}
		if n := len(levels); n > 0 && levels[n-1].Price.Equal(o.Price) {
			levels[n-1].Quantity += o.Remaining()
			levels[n-1].Orders++
			return true
		}
		if len(levels) >= depth {
			return false
		}
		levels = append(levels, ledger.BookLevel{Price: o.Price, Quantity: o.Remaining(), Orders: 1})
		return true
	})
	return levels, nil
}
