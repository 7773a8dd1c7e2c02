// Package market holds the per-market order book: two price-time
// ordered sets (asks ascending, bids descending), a by-id index, and a
// per-user index. Ordering uses tidwall/btree.
package market

import (
	"errors"
	"fmt"

	"github.com/tidwall/btree"

	"fenrir/internal/common"
	dec "fenrir/internal/decimal"
)

var (
	ErrNotFound      = errors.New("market: order not found")
	ErrAlreadyExists = errors.New("market: order already indexed")
)

// asksLess orders asks by (price ASC, id ASC).
func asksLess(a, b *Order) bool {
	if !a.Price.Equal(b.Price) {
		return a.Price.LessThan(b.Price)
	}
	return a.ID < b.ID
}

// bidsLess orders bids by (price DESC, id ASC).
func bidsLess(a, b *Order) bool {
	if !a.Price.Equal(b.Price) {
		return a.Price.GreaterThan(b.Price)
	}
	return a.ID < b.ID
}

// byIDLess orders a user's own orders by id, giving FIFO listing.
func byIDLess(a, b *Order) bool {
	return a.ID < b.ID
}

// Status is the aggregate view of one side of a book, or a whole book.
type Status struct {
	AskCount  int
	AskAmount dec.Dec
	BidCount  int
	BidAmount dec.Dec
}

// Market is a single traded pair's full configuration plus live book.
type Market struct {
	Symbol string
	Name   string

	Stock     string
	Money     string
	StockPrec int
	MoneyPrec int
	FeePrec   int

	MinAmount dec.Dec
	MinTotal  dec.Dec
	InitPrice dec.Dec

	LastPrice    dec.Dec
	ClosingPrice dec.Dec

	IncludeFee  bool
	DelistingTS uint32

	asks *btree.BTreeG[*Order]
	bids *btree.BTreeG[*Order]

	orderByID    map[uint64]*Order
	ordersByUser map[uint64]*btree.BTreeG[*Order]
}

// New constructs an empty market for symbol.
func New(symbol, name, stock, money string, stockPrec, moneyPrec, feePrec int, minAmount, minTotal, initPrice dec.Dec, includeFee bool, delistingTS uint32) *Market {
	return &Market{
		Symbol:       symbol,
		Name:         name,
		Stock:        stock,
		Money:        money,
		StockPrec:    stockPrec,
		MoneyPrec:    moneyPrec,
		FeePrec:      feePrec,
		MinAmount:    minAmount,
		MinTotal:     minTotal,
		InitPrice:    initPrice,
		LastPrice:    initPrice,
		ClosingPrice: dec.Zero,
		IncludeFee:   includeFee,
		DelistingTS:  delistingTS,
		asks:         btree.NewBTreeG(asksLess),
		bids:         btree.NewBTreeG(bidsLess),
		orderByID:    make(map[uint64]*Order),
		ordersByUser: make(map[uint64]*btree.BTreeG[*Order]),
	}
}

// treeFor returns the book side the order belongs to.
func (m *Market) treeFor(o *Order) *btree.BTreeG[*Order] {
	if o.Side == common.Ask {
		return m.asks
	}
	return m.bids
}

// Insert adds a live order to its side, the by-id index, and the
// per-user index. The invariant is that a live order appears in
// exactly one book side and in both indexes at the same time.
func (m *Market) Insert(o *Order) error {
	if _, exists := m.orderByID[o.ID]; exists {
		return fmt.Errorf("%w: id %d", ErrAlreadyExists, o.ID)
	}
	m.treeFor(o).Set(o)
	m.orderByID[o.ID] = o

	userTree, ok := m.ordersByUser[o.UserID]
	if !ok {
		userTree = btree.NewBTreeG(byIDLess)
		m.ordersByUser[o.UserID] = userTree
	}
	userTree.Set(o)
	return nil
}

// Remove deletes an order from the book and all indexes.
func (m *Market) Remove(o *Order) error {
	if _, exists := m.orderByID[o.ID]; !exists {
		return fmt.Errorf("%w: id %d", ErrNotFound, o.ID)
	}
	m.treeFor(o).Delete(o)
	delete(m.orderByID, o.ID)
	if userTree, ok := m.ordersByUser[o.UserID]; ok {
		userTree.Delete(o)
		if userTree.Len() == 0 {
			delete(m.ordersByUser, o.UserID)
		}
	}
	return nil
}

// GetByID looks up a live order by id.
func (m *Market) GetByID(id uint64) (*Order, bool) {
	o, ok := m.orderByID[id]
	return o, ok
}

// ListByUser returns a user's live orders in id (time) order, optionally
// paginated with offset/limit (limit <= 0 means unbounded).
func (m *Market) ListByUser(user uint64, offset, limit int) (orders []*Order, total int) {
	tree, ok := m.ordersByUser[user]
	if !ok {
		return nil, 0
	}
	total = tree.Len()
	i := 0
	tree.Scan(func(o *Order) bool {
		if i >= offset {
			if limit > 0 && len(orders) >= limit {
				return false
			}
			orders = append(orders, o)
		}
		i++
		return true
	})
	return orders, total
}

// BestAsk returns the lowest-priced, earliest ask, or false if empty.
func (m *Market) BestAsk() (*Order, bool) { return m.asks.Min() }

// BestBid returns the highest-priced, earliest bid, or false if empty.
func (m *Market) BestBid() (*Order, bool) { return m.bids.Min() }

// Asks returns every live ask in (price ASC, id ASC) order.
func (m *Market) Asks() []*Order { return scanAll(m.asks) }

// Bids returns every live bid in (price DESC, id ASC) order.
func (m *Market) Bids() []*Order { return scanAll(m.bids) }

func scanAll(tree *btree.BTreeG[*Order]) []*Order {
	out := make([]*Order, 0, tree.Len())
	tree.Scan(func(o *Order) bool {
		out = append(out, o)
		return true
	})
	return out
}

// BookStatus reports the order-book-level status.
func (m *Market) BookStatus() Status {
	st := Status{AskAmount: dec.Zero, BidAmount: dec.Zero}
	m.asks.Scan(func(o *Order) bool {
		st.AskCount++
		st.AskAmount = st.AskAmount.Add(o.Left)
		return true
	})
	m.bids.Scan(func(o *Order) bool {
		st.BidCount++
		st.BidAmount = st.BidAmount.Add(o.Left)
		return true
	})
	return st
}
