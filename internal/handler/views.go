package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/boursechain/boursechain/internal/domain"
	"github.com/boursechain/boursechain/internal/service"
)

// orderResponse is the wire representation of an order. Untriggered
// conditional orders have no price yet; it is omitted until the sweeper
// converts them.
type orderResponse struct {
	ID             string   `json:"id"`
	AccountID      string   `json:"account_id"`
	Symbol         string   `json:"symbol"`
	Side           string   `json:"side"`
	Style          string   `json:"style"`
	Price          *float64 `json:"price,omitempty"`
	TriggerPrice   *float64 `json:"trigger_price,omitempty"`
	Quantity       int64    `json:"quantity"`
	FilledQuantity int64    `json:"filled_quantity"`
	Status         string   `json:"status"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}

func toOrderResponse(o *domain.Order) orderResponse {
	resp := orderResponse{
		ID:             o.ID,
		AccountID:      o.AccountID,
		Symbol:         o.Symbol,
		Side:           string(o.Side),
		Style:          string(o.Style),
		Quantity:       o.Quantity,
		FilledQuantity: o.FilledQuantity,
		Status:         string(o.Status),
		CreatedAt:      o.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:      o.UpdatedAt.Format(time.RFC3339Nano),
	}
	if !o.Price.IsZero() {
		resp.Price = decimalPtr(o.Price)
	}
	if !o.TriggerPrice.IsZero() {
		resp.TriggerPrice = decimalPtr(o.TriggerPrice)
	}
	return resp
}

func toOrderResponses(orders []*domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

// tradeResponse is the wire representation of an execution.
type tradeResponse struct {
	ID          string  `json:"id"`
	Symbol      string  `json:"symbol"`
	BuyOrderID  string  `json:"buy_order_id"`
	SellOrderID string  `json:"sell_order_id"`
	BuyerID     string  `json:"buyer_id"`
	SellerID    string  `json:"seller_id"`
	Price       float64 `json:"price"`
	Quantity    int64   `json:"quantity"`
	TotalValue  float64 `json:"total_value"`
	Status      string  `json:"status"`
	AnchorRef   string  `json:"anchor_ref,omitempty"`
	ExecutedAt  string  `json:"executed_at"`
}

func toTradeResponse(t *domain.Trade) tradeResponse {
	return tradeResponse{
		ID:          t.ID,
		Symbol:      t.Symbol,
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		BuyerID:     t.BuyerID,
		SellerID:    t.SellerID,
		Price:       t.Price.InexactFloat64(),
		Quantity:    t.Quantity,
		TotalValue:  t.TotalValue.InexactFloat64(),
		Status:      string(t.Status),
		AnchorRef:   t.AnchorRef,
		ExecutedAt:  t.ExecutedAt.Format(time.RFC3339Nano),
	}
}

func toTradeResponses(trades []*domain.Trade) []tradeResponse {
	out := make([]tradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, toTradeResponse(t))
	}
	return out
}

// stockResponse is the wire representation of a listed stock with its
// market statistics.
type stockResponse struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	NameLocalized string  `json:"name_localized,omitempty"`
	CurrentPrice  float64 `json:"current_price"`
	PreviousClose float64 `json:"previous_close"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Volume        int64   `json:"volume"`
	High24h       float64 `json:"high_24h"`
	Low24h        float64 `json:"low_24h"`
	IsActive      bool    `json:"is_active"`
	UpdatedAt     string  `json:"updated_at"`
}

func toStockResponse(s *domain.Stock) stockResponse {
	return stockResponse{
		Symbol:        s.Symbol,
		Name:          s.Name,
		NameLocalized: s.NameLocalized,
		CurrentPrice:  s.CurrentPrice.InexactFloat64(),
		PreviousClose: s.PreviousClose.InexactFloat64(),
		Change:        s.Change.InexactFloat64(),
		ChangePercent: s.ChangePercent.InexactFloat64(),
		Volume:        s.Volume,
		High24h:       s.High24h.InexactFloat64(),
		Low24h:        s.Low24h.InexactFloat64(),
		IsActive:      s.IsActive,
		UpdatedAt:     s.UpdatedAt.Format(time.RFC3339Nano),
	}
}

// accountResponse is the wire representation of an account.
type accountResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	CashBalance float64 `json:"cash_balance"`
	CreatedAt   string  `json:"created_at"`
}

func toAccountResponse(a *domain.Account) accountResponse {
	return accountResponse{
		ID:          a.ID,
		Name:        a.Name,
		CashBalance: a.CashBalance.InexactFloat64(),
		CreatedAt:   a.CreatedAt.Format(time.RFC3339Nano),
	}
}

// holdingResponse is one marked-to-market portfolio position.
type holdingResponse struct {
	Symbol            string  `json:"symbol"`
	Quantity          int64   `json:"quantity"`
	AverageBuyPrice   float64 `json:"average_buy_price"`
	CurrentPrice      float64 `json:"current_price"`
	TotalValue        float64 `json:"total_value"`
	TotalInvested     float64 `json:"total_invested"`
	ProfitLoss        float64 `json:"profit_loss"`
	ProfitLossPercent float64 `json:"profit_loss_percent"`
}

// portfolioResponse is the full portfolio view.
type portfolioResponse struct {
	AccountID         string            `json:"account_id"`
	CashBalance       float64           `json:"cash_balance"`
	Holdings          []holdingResponse `json:"holdings"`
	TotalValue        float64           `json:"total_value"`
	TotalInvested     float64           `json:"total_invested"`
	ProfitLoss        float64           `json:"profit_loss"`
	ProfitLossPercent float64           `json:"profit_loss_percent"`
}

func toPortfolioResponse(p *service.PortfolioView) portfolioResponse {
	holdings := make([]holdingResponse, 0, len(p.Holdings))
	for _, h := range p.Holdings {
		holdings = append(holdings, holdingResponse{
			Symbol:            h.Symbol,
			Quantity:          h.Quantity,
			AverageBuyPrice:   h.AverageBuyPrice.InexactFloat64(),
			CurrentPrice:      h.CurrentPrice.InexactFloat64(),
			TotalValue:        h.TotalValue.InexactFloat64(),
			TotalInvested:     h.TotalInvested.InexactFloat64(),
			ProfitLoss:        h.ProfitLoss.InexactFloat64(),
			ProfitLossPercent: h.ProfitLossPercent.InexactFloat64(),
		})
	}
	return portfolioResponse{
		AccountID:         p.AccountID,
		CashBalance:       p.CashBalance.InexactFloat64(),
		Holdings:          holdings,
		TotalValue:        p.TotalValue.InexactFloat64(),
		TotalInvested:     p.TotalInvested.InexactFloat64(),
		ProfitLoss:        p.ProfitLoss.InexactFloat64(),
		ProfitLossPercent: p.ProfitLossPercent.InexactFloat64(),
	}
}

// bookLevelResponse is one aggregated price level.
type bookLevelResponse struct {
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
	Total    float64 `json:"total"`
	Orders   int     `json:"orders"`
}

// bookResponse is the aggregated order book snapshot.
type bookResponse struct {
	Symbol        string              `json:"symbol"`
	Bids          []bookLevelResponse `json:"bids"`
	Asks          []bookLevelResponse `json:"asks"`
	Spread        float64             `json:"spread"`
	SpreadPercent float64             `json:"spread_percent"`
}

func toBookResponse(b *service.BookView) bookResponse {
	return bookResponse{
		Symbol:        b.Symbol,
		Bids:          toBookLevelResponses(b.Bids),
		Asks:          toBookLevelResponses(b.Asks),
		Spread:        b.Spread.InexactFloat64(),
		SpreadPercent: b.SpreadPercent.InexactFloat64(),
	}
}

func toBookLevelResponses(sides []service.BookSide) []bookLevelResponse {
	out := make([]bookLevelResponse, 0, len(sides))
	for _, s := range sides {
		out = append(out, bookLevelResponse{
			Price:    s.Price.InexactFloat64(),
			Quantity: s.Quantity,
			Total:    s.Total.InexactFloat64(),
			Orders:   s.Orders,
		})
	}
	return out
}

func decimalPtr(d decimal.Decimal) *float64 {
	f := d.InexactFloat64()
	return &f
}
