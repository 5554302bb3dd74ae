// Package notify constructs and hands off user notification payloads.
// Delivery is a collaborator's concern: dispatchers are fire-and-forget
// and must never fail or roll back the settlement that produced the
// payload.
package notify

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/boursechain/boursechain/internal/domain"
)

// Categories for notification payloads.
const (
	CategoryOrderMatched   = "order_matched"
	CategoryOrderCancelled = "order_cancelled"
)

// Payload is one notification to one account, with English and localized
// (Farsi) variants of the title and message.
type Payload struct {
	AccountID        string `json:"account_id"`
	Title            string `json:"title"`
	TitleLocalized   string `json:"title_localized"`
	Message          string `json:"message"`
	MessageLocalized string `json:"message_localized"`
	Category         string `json:"category"`
}

// Dispatcher delivers payloads to the notification collaborator.
type Dispatcher interface {
	Dispatch(p Payload)
}

// MatchedPayloads builds the buyer and seller notifications for one
// execution.
func MatchedPayloads(buy, sell *domain.Order, stock *domain.Stock, qty int64, price, total decimal.Decimal) (buyer, seller Payload) {
	priceFmt := price.StringFixed(0)
	totalFmt := total.StringFixed(0)

	buyer = Payload{
		AccountID:      buy.AccountID,
		Title:          fmt.Sprintf("Order Matched: Bought %d %s", qty, stock.Symbol),
		TitleLocalized: fmt.Sprintf("سفارش تطبیق شد: خرید %d سهم %s", qty, stock.NameLocalized),
		Message: fmt.Sprintf("Your buy order for %d shares of %s (%s) was matched at %s IRR per share. Total: %s IRR.",
			qty, stock.Name, stock.Symbol, priceFmt, totalFmt),
		MessageLocalized: fmt.Sprintf("سفارش خرید شما برای %d سهم %s (%s) با قیمت %s ریال به ازای هر سهم تطبیق شد. مجموع: %s ریال.",
			qty, stock.NameLocalized, stock.Symbol, priceFmt, totalFmt),
		Category: CategoryOrderMatched,
	}
	seller = Payload{
		AccountID:      sell.AccountID,
		Title:          fmt.Sprintf("Order Matched: Sold %d %s", qty, stock.Symbol),
		TitleLocalized: fmt.Sprintf("سفارش تطبیق شد: فروش %d سهم %s", qty, stock.NameLocalized),
		Message: fmt.Sprintf("Your sell order for %d shares of %s (%s) was matched at %s IRR per share. Total: %s IRR.",
			qty, stock.Name, stock.Symbol, priceFmt, totalFmt),
		MessageLocalized: fmt.Sprintf("سفارش فروش شما برای %d سهم %s (%s) با قیمت %s ریال به ازای هر سهم تطبیق شد. مجموع: %s ریال.",
			qty, stock.NameLocalized, stock.Symbol, priceFmt, totalFmt),
		Category: CategoryOrderMatched,
	}
	return buyer, seller
}

// LogDispatcher writes payloads to the structured log. Used when no
// delivery endpoint is configured.
type LogDispatcher struct {
	Logger *slog.Logger
}

// Dispatch logs the payload.
func (d *LogDispatcher) Dispatch(p Payload) {
	d.Logger.Info("notification",
		slog.String("account_id", p.AccountID),
		slog.String("category", p.Category),
		slog.String("title", p.Title),
	)
}
