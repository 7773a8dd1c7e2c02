package market

import (
	"time"

	"github.com/google/uuid"

	"fenrir/internal/common"
	dec "fenrir/internal/decimal"
)

// Order is a live or historical order, id is strictly
// increasing within the process and encodes time priority at equal
// price. UUID is an opaque external-correlation token,
// independent of the strictly-increasing id, for collaborators (trade
// history, messages) that need a stable identifier across a replay
// that might renumber ids.
type Order struct {
	ID         uint64
	UUID       string
	Type       common.OrderType
	Side       common.Side
	CreateTime time.Time
	UpdateTime time.Time
	UserID     uint64
	Market     string
	Source     string

	Price  dec.Dec // zero for MARKET orders
	Amount dec.Dec
	Left   dec.Dec
	Freeze dec.Dec

	TakerFee dec.Dec
	MakerFee dec.Dec

	DealStock dec.Dec
	DealMoney dec.Dec
	DealFee   dec.Dec
}

// Snapshot is the JSON-facing view of an order returned by placement,
// cancellation, and query commands.
type Snapshot struct {
	ID         uint64  `json:"id"`
	UUID       string  `json:"uuid"`
	Market     string  `json:"market"`
	Source     string  `json:"source"`
	Type       string  `json:"type"`
	Side       string  `json:"side"`
	UserID     uint64  `json:"user"`
	CreateTime float64 `json:"ctime"`
	UpdateTime float64 `json:"mtime"`
	Price      string  `json:"price"`
	Amount     string  `json:"amount"`
	Left       string  `json:"left"`
	Freeze     string  `json:"freeze"`
	TakerFee   string  `json:"taker_fee"`
	MakerFee   string  `json:"maker_fee"`
	DealStock  string  `json:"deal_stock"`
	DealMoney  string  `json:"deal_money"`
	DealFee    string  `json:"deal_fee"`
}

// Snapshot renders the order for a command reply.
func (o *Order) Snapshot() Snapshot {
	return Snapshot{
		ID:         o.ID,
		UUID:       o.UUID,
		Market:     o.Market,
		Source:     o.Source,
		Type:       o.Type.String(),
		Side:       o.Side.String(),
		UserID:     o.UserID,
		CreateTime: float64(o.CreateTime.UnixNano()) / 1e9,
		UpdateTime: float64(o.UpdateTime.UnixNano()) / 1e9,
		Price:      o.Price.String(),
		Amount:     o.Amount.String(),
		Left:       o.Left.String(),
		Freeze:     o.Freeze.String(),
		TakerFee:   o.TakerFee.String(),
		MakerFee:   o.MakerFee.String(),
		DealStock:  o.DealStock.String(),
		DealMoney:  o.DealMoney.String(),
		DealFee:    o.DealFee.String(),
	}
}

// IDAllocator hands out strictly increasing order ids. It is not safe
// for concurrent use by design: the core is single-threaded cooperative
// and id allocation happens only on the owning goroutine.
type IDAllocator struct {
	next uint64
}

// Next returns the next order id, starting at 1.
func (a *IDAllocator) Next() uint64 {
	a.next++
	return a.next
}
