package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeStatus is the settlement outcome of a trade. Failed settlements
// never produce a Trade row, so stored trades are always confirmed.
type TradeStatus string

const (
	TradeStatusConfirmed TradeStatus = "confirmed"
)

// Trade is the immutable record of one execution between a buy and a sell
// order. The only post-creation mutation allowed is attaching the external
// anchoring reference once the anchoring collaborator reports one.
type Trade struct {
	ID          string
	BuyOrderID  string
	SellOrderID string
	Symbol      string
	Price       decimal.Decimal
	Quantity    int64
	TotalValue  decimal.Decimal
	BuyerID     string
	SellerID    string
	Status      TradeStatus
	AnchorRef   string // empty until (and unless) anchored
	ExecutedAt  time.Time
}

// Clone returns a deep copy of the trade.
func (t *Trade) Clone() *Trade {
	c := *t
	return &c
}
