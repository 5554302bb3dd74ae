// Package anchor emits settlement events toward the external
// ledger-anchoring collaborator. Anchoring is best-effort: the engine
// never blocks on, retries, or requires success of a Record call, and a
// trade without an anchoring reference is a valid permanent state.
package anchor

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
)

// Event describes one confirmed trade to be anchored externally.
type Event struct {
	TradeID     string          `json:"trade_id"`
	StockSymbol string          `json:"stock_symbol"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity"`
	TotalValue  decimal.Decimal `json:"total_value"`
	BuyerID     string          `json:"buyer_id"`
	SellerID    string          `json:"seller_id"`
}

// Recorder submits an event to the anchoring collaborator and returns
// the anchoring reference when one was produced. An empty reference with
// a nil error means the collaborator skipped the event.
type Recorder interface {
	Record(ctx context.Context, ev Event) (ref string, err error)
}

// LogRecorder logs events without anchoring them. Used when no anchoring
// collaborator is configured.
type LogRecorder struct {
	Logger *slog.Logger
}

// Record logs the event and reports it as skipped.
func (r *LogRecorder) Record(_ context.Context, ev Event) (string, error) {
	r.Logger.Info("anchor event",
		slog.String("trade_id", ev.TradeID),
		slog.String("symbol", ev.StockSymbol),
		slog.String("price", ev.Price.String()),
		slog.Int64("quantity", ev.Quantity),
	)
	return "", nil
}
