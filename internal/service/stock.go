package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/boursechain/boursechain/internal/domain"
	"github.com/boursechain/boursechain/internal/ledger"
)

// BookSide is one aggregated side of the displayed order book.
type BookSide struct {
	Price    decimal.Decimal
	Quantity int64
	Total    decimal.Decimal
	Orders   int
}

// BookView is the aggregated order book snapshot for one stock.
type BookView struct {
	Symbol        string
	Bids          []BookSide
	Asks          []BookSide
	Spread        decimal.Decimal
	SpreadPercent decimal.Decimal
}

// StockService handles stock listing and market-data queries.
type StockService struct {
	store  ledger.Store
	logger *slog.Logger
}

// NewStockService creates a StockService.
func NewStockService(store ledger.Store, logger *slog.Logger) *StockService {
	return &StockService{store: store, logger: logger}
}

// Register lists a new stock at the given reference price.
func (s *StockService) Register(ctx context.Context, symbol, name, nameLocalized string, initialPrice float64) (*domain.Stock, error) {
	if !symbolRegex.MatchString(symbol) {
		return nil, &domain.ValidationError{Message: "symbol must match ^[A-Z]{1,10}$"}
	}
	if name == "" {
		return nil, &domain.ValidationError{Message: "name is required"}
	}
	price := decimal.NewFromFloat(initialPrice)
	if !price.IsPositive() {
		return nil, &domain.ValidationError{Message: "initial_price must be greater than 0"}
	}

	stock := &domain.Stock{
		Symbol:        symbol,
		Name:          name,
		NameLocalized: nameLocalized,
		CurrentPrice:  price,
		PreviousClose: price,
		IsActive:      true,
		UpdatedAt:     time.Now().UTC(),
	}
	err := s.store.Update(ctx, func(tx ledger.Tx) error {
		return tx.CreateStock(stock)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("stock listed", slog.String("symbol", symbol))
	return stock, nil
}

// Get retrieves a stock with its market statistics.
func (s *StockService) Get(ctx context.Context, symbol string) (*domain.Stock, error) {
	var stock *domain.Stock
	err := s.store.View(ctx, func(tx ledger.Tx) error {
		st, err := tx.Stock(symbol)
		if err != nil {
			return err
		}
		stock = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stock, nil
}

// List returns all listed stocks.
func (s *StockService) List(ctx context.Context) ([]*domain.Stock, error) {
	var stocks []*domain.Stock
	err := s.store.View(ctx, func(tx ledger.Tx) error {
		var err error
		stocks, err = tx.Stocks()
		return err
	})
	if err != nil {
		return nil, err
	}
	return stocks, nil
}

// Book returns the aggregated resting book: up to depth price levels per
// side, best first, with the bid/ask spread.
func (s *StockService) Book(ctx context.Context, symbol string, depth int) (*BookView, error) {
	if depth <= 0 || depth > 50 {
		depth = 10
	}
	view := &BookView{Symbol: symbol}
	err := s.store.View(ctx, func(tx ledger.Tx) error {
		if _, err := tx.Stock(symbol); err != nil {
			return err
		}
		bids, err := tx.BookLevels(symbol, domain.SideBuy, depth)
		if err != nil {
			return err
		}
		asks, err := tx.BookLevels(symbol, domain.SideSell, depth)
		if err != nil {
			return err
		}
		view.Bids = toBookSides(bids)
		view.Asks = toBookSides(asks)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(view.Bids) > 0 && len(view.Asks) > 0 {
		bestBid := view.Bids[0].Price
		bestAsk := view.Asks[0].Price
		view.Spread = bestAsk.Sub(bestBid).Round(2)
		if bestAsk.IsPositive() {
			view.SpreadPercent = view.Spread.Div(bestAsk).Mul(decimal.NewFromInt(100)).Round(4)
		}
	}
	return view, nil
}

func toBookSides(levels []ledger.BookLevel) []BookSide {
	sides := make([]BookSide, 0, len(levels))
	for _, lvl := range levels {
		sides = append(sides, BookSide{
			Price:    lvl.Price,
			Quantity: lvl.Quantity,
			Total:    lvl.Price.Mul(decimal.NewFromInt(lvl.Quantity)),
			Orders:   lvl.Orders,
		})
	}
	return sides
}

// Trades returns the most recent executions for a stock, newest first.
func (s *StockService) Trades(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var trades []*domain.Trade
	err := s.store.View(ctx, func(tx ledger.Tx) error {
		if _, err := tx.Stock(symbol); err != nil {
			return err
		}
		var err error
		trades, err = tx.TradesBySymbol(symbol, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return trades, nil
}
