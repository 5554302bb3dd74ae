// Package sqlite implements ledger.Store on a SQLite database. Update
// scopes open an immediate transaction, so writers serialize on the
// database write lock and every scope commits atomically. Decimal values
// are stored as exact strings and ordered through CAST(... AS REAL).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/boursechain/boursechain/internal/domain"
	"github.com/boursechain/boursechain/internal/ledger"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	cash_balance TEXT NOT NULL,
	created_at   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS stocks (
	symbol         TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	name_localized TEXT NOT NULL,
	current_price  TEXT NOT NULL,
	previous_close TEXT NOT NULL,
	change         TEXT NOT NULL,
	change_percent TEXT NOT NULL,
	volume         INTEGER NOT NULL,
	high_24h       TEXT NOT NULL,
	low_24h        TEXT NOT NULL,
	is_active      INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS orders (
	id              TEXT PRIMARY KEY,
	account_id      TEXT NOT NULL,
	symbol          TEXT NOT NULL,
	side            TEXT NOT NULL,
	style           TEXT NOT NULL,
	price           TEXT NOT NULL,
	trigger_price   TEXT NOT NULL,
	quantity        INTEGER NOT NULL,
	filled_quantity INTEGER NOT NULL,
	status          TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_book ON orders(symbol, side, status, created_at);
CREATE INDEX IF NOT EXISTS idx_orders_account ON orders(account_id, created_at);
CREATE TABLE IF NOT EXISTS holdings (
	account_id        TEXT NOT NULL,
	symbol            TEXT NOT NULL,
	quantity          INTEGER NOT NULL,
	average_buy_price TEXT NOT NULL,
	PRIMARY KEY (account_id, symbol)
);
CREATE TABLE IF NOT EXISTS trades (
	id            TEXT PRIMARY KEY,
	buy_order_id  TEXT NOT NULL,
	sell_order_id TEXT NOT NULL,
	symbol        TEXT NOT NULL,
	price         TEXT NOT NULL,
	quantity      INTEGER NOT NULL,
	total_value   TEXT NOT NULL,
	buyer_id      TEXT NOT NULL,
	seller_id     TEXT NOT NULL,
	status        TEXT NOT NULL,
	anchor_ref    TEXT NOT NULL DEFAULT '',
	executed_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol, executed_at);
`

// Store is the SQLite-backed ledger.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists. WAL keeps readers from blocking the writer; immediate
// transactions give Update scopes the exclusive write lock up front.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// A single writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Update runs fn inside an immediate transaction and commits when fn
// returns nil. Commit failures are wrapped in domain.ErrStoreFailure.
func (s *Store) Update(ctx context.Context, fn func(ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrStoreFailure, err)
	}
	if err := fn(&sqlTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrStoreFailure, err)
	}
	return nil
}

// View runs fn inside a transaction that is rolled back afterwards, so
// any writes are discarded.
func (s *Store) View(ctx context.Context, fn func(ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrStoreFailure, err)
	}
	defer tx.Rollback()
	return fn(&sqlTx{tx: tx})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

type sqlTx struct {
	tx *sql.Tx
}

func parseDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Orders.

const orderCols = "id, account_id, symbol, side, style, price, trigger_price, quantity, filled_quantity, status, created_at, updated_at"

func scanOrder(row interface{ Scan(...any) error }) (*domain.Order, error) {
	var o domain.Order
	var price, trigger string
	var created, updated int64
	err := row.Scan(&o.ID, &o.AccountID, &o.Symbol, &o.Side, &o.Style, &price, &trigger,
		&o.Quantity, &o.FilledQuantity, &o.Status, &created, &updated)
	if err != nil {
		return nil, err
	}
	o.Price = parseDec(price)
	o.TriggerPrice = parseDec(trigger)
	o.CreatedAt = time.Unix(0, created).UTC()
	o.UpdatedAt = time.Unix(0, updated).UTC()
	return &o, nil
}

func (t *sqlTx) Order(id string) (*domain.Order, error) {
	row := t.tx.QueryRow("SELECT "+orderCols+" FROM orders WHERE id = ?", id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite select order: %w", err)
	}
	return o, nil
}

func (t *sqlTx) CreateOrder(o *domain.Order) error {
	_, err := t.tx.Exec(
		"INSERT INTO orders ("+orderCols+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		o.ID, o.AccountID, o.Symbol, o.Side, o.Style, o.Price.String(), o.TriggerPrice.String(),
		o.Quantity, o.FilledQuantity, o.Status, o.CreatedAt.UnixNano(), o.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite insert order: %w", err)
	}
	return nil
}

func (t *sqlTx) UpdateOrder(o *domain.Order) error {
	res, err := t.tx.Exec(
		"UPDATE orders SET style = ?, price = ?, filled_quantity = ?, status = ?, updated_at = ? WHERE id = ?",
		o.Style, o.Price.String(), o.FilledQuantity, o.Status, o.UpdatedAt.UnixNano(), o.ID)
	if err != nil {
		return fmt.Errorf("sqlite update order: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (t *sqlTx) RestingCounterparties(q ledger.CounterpartyQuery) ([]*domain.Order, error) {
	var sb strings.Builder
	sb.WriteString("SELECT " + orderCols + " FROM orders WHERE symbol = ? AND side = ?")
	sb.WriteString(" AND status IN ('pending', 'partial') AND style IN ('limit', 'market')")
	sb.WriteString(" AND account_id != ?")
	args := []any{q.Symbol, q.Side, q.ExcludeAccount}

	// Both sides of the bound go through SQLite's own REAL conversion so
	// an exactly-at-bound price never misclassifies.
	if !q.Unbounded {
		if q.Side == domain.SideSell {
			sb.WriteString(" AND CAST(price AS REAL) <= CAST(? AS REAL)")
		} else {
			sb.WriteString(" AND CAST(price AS REAL) >= CAST(? AS REAL)")
		}
		args = append(args, q.PriceBound.String())
	}
	if len(q.ExcludeOrders) > 0 {
		sb.WriteString(" AND id NOT IN (?" + strings.Repeat(", ?", len(q.ExcludeOrders)-1) + ")")
		for _, id := range q.ExcludeOrders {
			args = append(args, id)
		}
	}
	if q.Side == domain.SideBuy {
		sb.WriteString(" ORDER BY CAST(price AS REAL) DESC, created_at ASC, id ASC")
	} else {
		sb.WriteString(" ORDER BY CAST(price AS REAL) ASC, created_at ASC, id ASC")
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := t.tx.Query(sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query counterparties: %w", err)
	}
	defer rows.Close()

	var result []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan counterparty: %w", err)
		}
		if o.Remaining() <= 0 {
			continue
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func (t *sqlTx) ConditionalOrders() ([]*domain.Order, error) {
	rows, err := t.tx.Query("SELECT " + orderCols + " FROM orders" +
		" WHERE status IN ('pending', 'partial') AND style IN ('stop_loss', 'take_profit')" +
		" ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("sqlite query conditional orders: %w", err)
	}
	defer rows.Close()

	var result []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan conditional order: %w", err)
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func (t *sqlTx) RestingOrderIDs() ([]string, error) {
	rows, err := t.tx.Query("SELECT id FROM orders" +
		" WHERE status IN ('pending', 'partial') AND style IN ('limit', 'market')" +
		" ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("sqlite query resting ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite scan resting id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *sqlTx) OrdersByAccount(accountID string, status *domain.OrderStatus) ([]*domain.Order, error) {
	query := "SELECT " + orderCols + " FROM orders WHERE account_id = ?"
	args := []any{accountID}
	if status != nil {
		query += " AND status = ?"
		args = append(args, *status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := t.tx.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query account orders: %w", err)
	}
	defer rows.Close()

	var result []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan account order: %w", err)
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

// Accounts.

func (t *sqlTx) Account(id string) (*domain.Account, error) {
	var a domain.Account
	var cash string
	var created int64
	err := t.tx.QueryRow("SELECT id, name, cash_balance, created_at FROM accounts WHERE id = ?", id).
		Scan(&a.ID, &a.Name, &cash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite select account: %w", err)
	}
	a.CashBalance = parseDec(cash)
	a.CreatedAt = time.Unix(0, created).UTC()
	return &a, nil
}

func (t *sqlTx) CreateAccount(a *domain.Account) error {
	if _, err := t.Account(a.ID); err == nil {
		return domain.ErrAccountAlreadyExists
	}
	_, err := t.tx.Exec("INSERT INTO accounts (id, name, cash_balance, created_at) VALUES (?, ?, ?, ?)",
		a.ID, a.Name, a.CashBalance.String(), a.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite insert account: %w", err)
	}
	return nil
}

func (t *sqlTx) UpdateAccount(a *domain.Account) error {
	res, err := t.tx.Exec("UPDATE accounts SET name = ?, cash_balance = ? WHERE id = ?",
		a.Name, a.CashBalance.String(), a.ID)
	if err != nil {
		return fmt.Errorf("sqlite update account: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// Holdings.

func (t *sqlTx) Holding(accountID, symbol string) (*domain.Holding, error) {
	var h domain.Holding
	var avg string
	err := t.tx.QueryRow(
		"SELECT account_id, symbol, quantity, average_buy_price FROM holdings WHERE account_id = ? AND symbol = ?",
		accountID, symbol).Scan(&h.AccountID, &h.Symbol, &h.Quantity, &avg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrInsufficientHoldings
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite select holding: %w", err)
	}
	h.AverageBuyPrice = parseDec(avg)
	return &h, nil
}

func (t *sqlTx) UpsertHolding(h *domain.Holding) error {
	_, err := t.tx.Exec(
		"INSERT INTO holdings (account_id, symbol, quantity, average_buy_price) VALUES (?, ?, ?, ?)"+
			" ON CONFLICT (account_id, symbol) DO UPDATE SET quantity = excluded.quantity, average_buy_price = excluded.average_buy_price",
		h.AccountID, h.Symbol, h.Quantity, h.AverageBuyPrice.String())
	if err != nil {
		return fmt.Errorf("sqlite upsert holding: %w", err)
	}
	return nil
}

func (t *sqlTx) HoldingsByAccount(accountID string) ([]*domain.Holding, error) {
	rows, err := t.tx.Query(
		"SELECT account_id, symbol, quantity, average_buy_price FROM holdings WHERE account_id = ? ORDER BY symbol ASC",
		accountID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query holdings: %w", err)
	}
	defer rows.Close()

	var result []*domain.Holding
	for rows.Next() {
		var h domain.Holding
		var avg string
		if err := rows.Scan(&h.AccountID, &h.Symbol, &h.Quantity, &avg); err != nil {
			return nil, fmt.Errorf("sqlite scan holding: %w", err)
		}
		h.AverageBuyPrice = parseDec(avg)
		result = append(result, &h)
	}
	return result, rows.Err()
}

// Trades.

const tradeCols = "id, buy_order_id, sell_order_id, symbol, price, quantity, total_value, buyer_id, seller_id, status, anchor_ref, executed_at"

func scanTrade(row interface{ Scan(...any) error }) (*domain.Trade, error) {
	var tr domain.Trade
	var price, total string
	var executed int64
	err := row.Scan(&tr.ID, &tr.BuyOrderID, &tr.SellOrderID, &tr.Symbol, &price, &tr.Quantity,
		&total, &tr.BuyerID, &tr.SellerID, &tr.Status, &tr.AnchorRef, &executed)
	if err != nil {
		return nil, err
	}
	tr.Price = parseDec(price)
	tr.TotalValue = parseDec(total)
	tr.ExecutedAt = time.Unix(0, executed).UTC()
	return &tr, nil
}

func (t *sqlTx) CreateTrade(tr *domain.Trade) error {
	_, err := t.tx.Exec(
		"INSERT INTO trades ("+tradeCols+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		tr.ID, tr.BuyOrderID, tr.SellOrderID, tr.Symbol, tr.Price.String(), tr.Quantity,
		tr.TotalValue.String(), tr.BuyerID, tr.SellerID, tr.Status, tr.AnchorRef, tr.ExecutedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite insert trade: %w", err)
	}
	return nil
}

func (t *sqlTx) Trade(id string) (*domain.Trade, error) {
	row := t.tx.QueryRow("SELECT "+tradeCols+" FROM trades WHERE id = ?", id)
	tr, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTradeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite select trade: %w", err)
	}
	return tr, nil
}

func (t *sqlTx) TradesBySymbol(symbol string, limit int) ([]*domain.Trade, error) {
	query := "SELECT " + tradeCols + " FROM trades WHERE symbol = ? ORDER BY executed_at DESC"
	args := []any{symbol}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := t.tx.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}
	defer rows.Close()

	var result []*domain.Trade
	for rows.Next() {
		tr, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan trade: %w", err)
		}
		result = append(result, tr)
	}
	return result, rows.Err()
}

func (t *sqlTx) AttachAnchorRef(tradeID, ref string) error {
	res, err := t.tx.Exec("UPDATE trades SET anchor_ref = ? WHERE id = ?", ref, tradeID)
	if err != nil {
		return fmt.Errorf("sqlite update trade anchor: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrTradeNotFound
	}
	return nil
}

// Stocks.

const stockCols = "symbol, name, name_localized, current_price, previous_close, change, change_percent, volume, high_24h, low_24h, is_active, updated_at"

func scanStock(row interface{ Scan(...any) error }) (*domain.Stock, error) {
	var s domain.Stock
	var cur, prev, chg, chgPct, high, low string
	var updated int64
	err := row.Scan(&s.Symbol, &s.Name, &s.NameLocalized, &cur, &prev, &chg, &chgPct,
		&s.Volume, &high, &low, &s.IsActive, &updated)
	if err != nil {
		return nil, err
	}
	s.CurrentPrice = parseDec(cur)
	s.PreviousClose = parseDec(prev)
	s.Change = parseDec(chg)
	s.ChangePercent = parseDec(chgPct)
	s.High24h = parseDec(high)
	s.Low24h = parseDec(low)
	s.UpdatedAt = time.Unix(0, updated).UTC()
	return &s, nil
}

func (t *sqlTx) Stock(symbol string) (*domain.Stock, error) {
	row := t.tx.QueryRow("SELECT "+stockCols+" FROM stocks WHERE symbol = ?", symbol)
	s, err := scanStock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrStockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite select stock: %w", err)
	}
	return s, nil
}

func (t *sqlTx) CreateStock(s *domain.Stock) error {
	if _, err := t.Stock(s.Symbol); err == nil {
		return domain.ErrStockAlreadyExists
	}
	_, err := t.tx.Exec(
		"INSERT INTO stocks ("+stockCols+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.Symbol, s.Name, s.NameLocalized, s.CurrentPrice.String(), s.PreviousClose.String(),
		s.Change.String(), s.ChangePercent.String(), s.Volume, s.High24h.String(), s.Low24h.String(),
		s.IsActive, s.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite insert stock: %w", err)
	}
	return nil
}

func (t *sqlTx) UpdateStock(s *domain.Stock) error {
	res, err := t.tx.Exec(
		"UPDATE stocks SET current_price = ?, previous_close = ?, change = ?, change_percent = ?,"+
			" volume = ?, high_24h = ?, low_24h = ?, is_active = ?, updated_at = ? WHERE symbol = ?",
		s.CurrentPrice.String(), s.PreviousClose.String(), s.Change.String(), s.ChangePercent.String(),
		s.Volume, s.High24h.String(), s.Low24h.String(), s.IsActive, s.UpdatedAt.UnixNano(), s.Symbol)
	if err != nil {
		return fmt.Errorf("sqlite update stock: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrStockNotFound
	}
	return nil
}

func (t *sqlTx) Stocks() ([]*domain.Stock, error) {
	rows, err := t.tx.Query("SELECT " + stockCols + " FROM stocks ORDER BY symbol ASC")
	if err != nil {
		return nil, fmt.Errorf("sqlite query stocks: %w", err)
	}
	defer rows.Close()

	var result []*domain.Stock
	for rows.Next() {
		s, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan stock: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (t *sqlTx) BookLevels(symbol string, side domain.Side, depth int) ([]ledger.BookLevel, error) {
	if depth <= 0 {
		return nil, nil
	}
	order := "ASC"
	if side == domain.SideBuy {
		order = "DESC"
	}
	rows, err := t.tx.Query(
		"SELECT price, SUM(quantity - filled_quantity), COUNT(*) FROM orders"+
			" WHERE symbol = ? AND side = ? AND status IN ('pending', 'partial') AND style IN ('limit', 'market')"+
			" GROUP BY price ORDER BY CAST(price AS REAL) "+order+" LIMIT ?",
		symbol, side, depth)
	if err != nil {
		return nil, fmt.Errorf("sqlite query book levels: %w", err)
	}
	defer rows.Close()

	var levels []ledger.BookLevel
	for rows.Next() {
		var price string
		var lvl ledger.BookLevel
		if err := rows.Scan(&price, &lvl.Quantity, &lvl.Orders); err != nil {
			return nil, fmt.Errorf("sqlite scan book level: %w", err)
		}
		lvl.Price = parseDec(price)
		levels = append(levels, lvl)
	}
	return levels, rows.Err()
}
