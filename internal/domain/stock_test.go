package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestStock_ApplyTrade_UpdatesStatistics(t *testing.T) {
	s := &Stock{
		Symbol:        "FOLD",
		CurrentPrice:  decimal.RequireFromString("8000"),
		PreviousClose: decimal.RequireFromString("8000"),
	}

	s.ApplyTrade(decimal.RequireFromString("8400"), 150)

	if !s.CurrentPrice.Equal(decimal.RequireFromString("8400")) {
		t.Errorf("CurrentPrice = %s, want 8400", s.CurrentPrice)
	}
	if !s.PreviousClose.Equal(decimal.RequireFromString("8000")) {
		t.Errorf("PreviousClose = %s, want 8000", s.PreviousClose)
	}
	if !s.Change.Equal(decimal.RequireFromString("400")) {
		t.Errorf("Change = %s, want 400", s.Change)
	}
	if !s.ChangePercent.Equal(decimal.RequireFromString("5")) {
		t.Errorf("ChangePercent = %s, want 5", s.ChangePercent)
	}
	if s.Volume != 150 {
		t.Errorf("Volume = %d, want 150", s.Volume)
	}
}

func TestStock_ApplyTrade_HighLowRatchets(t *testing.T) {
	s := &Stock{Symbol: "FOLD", CurrentPrice: decimal.RequireFromString("8000")}

	s.ApplyTrade(decimal.RequireFromString("8400"), 10)
	s.ApplyTrade(decimal.RequireFromString("8200"), 10)
	s.ApplyTrade(decimal.RequireFromString("8600"), 10)

	if !s.High24h.Equal(decimal.RequireFromString("8600")) {
		t.Errorf("High24h = %s, want 8600", s.High24h)
	}
	if !s.Low24h.Equal(decimal.RequireFromString("8200")) {
		t.Errorf("Low24h = %s, want 8200", s.Low24h)
	}
	if s.Volume != 30 {
		t.Errorf("Volume = %d, want 30", s.Volume)
	}
}

func TestStock_ApplyTrade_LowStartsAtFirstPrice(t *testing.T) {
	s := &Stock{Symbol: "FOLD", CurrentPrice: decimal.RequireFromString("8000")}

	s.ApplyTrade(decimal.RequireFromString("8400"), 5)

	if !s.Low24h.Equal(decimal.RequireFromString("8400")) {
		t.Errorf("Low24h = %s, want 8400 (first trade sets the low)", s.Low24h)
	}
}
