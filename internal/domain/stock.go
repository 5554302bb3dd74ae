package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock is a listed instrument with its live market statistics. The
// settlement unit updates the statistics after every execution.
type Stock struct {
	Symbol        string
	Name          string
	NameLocalized string
	CurrentPrice  decimal.Decimal
	PreviousClose decimal.Decimal
	Change        decimal.Decimal
	ChangePercent decimal.Decimal
	Volume        int64
	High24h       decimal.Decimal
	Low24h        decimal.Decimal
	IsActive      bool
	UpdatedAt     time.Time
}

// ApplyTrade rolls an execution into the market statistics: last price,
// change vs. previous close, volume, and the 24h high/low ratchets
// (high = max(high, price); low = min(low, price) unless low is unset).
func (s *Stock) ApplyTrade(price decimal.Decimal, qty int64) {
	s.PreviousClose = s.CurrentPrice
	s.CurrentPrice = price
	s.Change = s.CurrentPrice.Sub(s.PreviousClose)
	if s.PreviousClose.IsPositive() {
		s.ChangePercent = s.Change.Div(s.PreviousClose).Mul(decimal.NewFromInt(100)).Round(4)
	}
	s.Volume += qty
	if price.GreaterThan(s.High24h) {
		s.High24h = price
	}
	if s.Low24h.IsZero() || price.LessThan(s.Low24h) {
		s.Low24h = price
	}
}

// Clone returns a deep copy of the stock.
func (s *Stock) Clone() *Stock {
	c := *s
	return &c
}
