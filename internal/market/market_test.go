package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/common"
	dec "fenrir/internal/decimal"
)

func p(t *testing.T, s string) dec.Dec {
	t.Helper()
	d, err := dec.Parse(s)
	require.NoError(t, err)
	return d
}

func newOrder(t *testing.T, id, user uint64, side common.Side, price, amount string) *Order {
	return &Order{
		ID:     id,
		Side:   side,
		UserID: user,
		Price:  p(t, price),
		Amount: p(t, amount),
		Left:   p(t, amount),
	}
}

func TestAsksOrderedByPriceThenTime(t *testing.T) {
	m := New("BTCUSD", "BTC/USD", "BTC", "USD", 8, 2, 2, dec.Zero, dec.Zero, dec.Zero, false, 0)
	o1 := newOrder(t, 1, 1, common.Ask, "100", "1")
	o2 := newOrder(t, 2, 2, common.Ask, "90", "1")
	o3 := newOrder(t, 3, 3, common.Ask, "90", "1")
	require.NoError(t, m.Insert(o1))
	require.NoError(t, m.Insert(o2))
	require.NoError(t, m.Insert(o3))

	asks := m.Asks()
	require.Len(t, asks, 3)
	assert.Equal(t, uint64(2), asks[0].ID)
	assert.Equal(t, uint64(3), asks[1].ID)
	assert.Equal(t, uint64(1), asks[2].ID)
}

func TestBidsOrderedByPriceDescending(t *testing.T) {
	m := New("BTCUSD", "BTC/USD", "BTC", "USD", 8, 2, 2, dec.Zero, dec.Zero, dec.Zero, false, 0)
	o1 := newOrder(t, 1, 1, common.Bid, "100", "1")
	o2 := newOrder(t, 2, 2, common.Bid, "110", "1")
	require.NoError(t, m.Insert(o1))
	require.NoError(t, m.Insert(o2))

	bids := m.Bids()
	require.Len(t, bids, 2)
	assert.Equal(t, uint64(2), bids[0].ID)
	best, ok := m.BestBid()
	require.True(t, ok)
	assert.Equal(t, uint64(2), best.ID)
}

func TestRemoveDeletesFromAllIndexes(t *testing.T) {
	m := New("BTCUSD", "BTC/USD", "BTC", "USD", 8, 2, 2, dec.Zero, dec.Zero, dec.Zero, false, 0)
	o := newOrder(t, 1, 1, common.Ask, "100", "1")
	require.NoError(t, m.Insert(o))
	require.NoError(t, m.Remove(o))

	_, ok := m.GetByID(1)
	assert.False(t, ok)
	orders, total := m.ListByUser(1, 0, 0)
	assert.Empty(t, orders)
	assert.Equal(t, 0, total)
	assert.ErrorIs(t, m.Remove(o), ErrNotFound)
}

func TestListByUserPagination(t *testing.T) {
	m := New("BTCUSD", "BTC/USD", "BTC", "USD", 8, 2, 2, dec.Zero, dec.Zero, dec.Zero, false, 0)
	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, m.Insert(newOrder(t, i, 1, common.Ask, "100", "1")))
	}
	page, total := m.ListByUser(1, 1, 2)
	require.Len(t, page, 2)
	assert.Equal(t, 5, total)
	assert.Equal(t, uint64(2), page[0].ID)
	assert.Equal(t, uint64(3), page[1].ID)
}

func TestBookStatus(t *testing.T) {
	m := New("BTCUSD", "BTC/USD", "BTC", "USD", 8, 2, 2, dec.Zero, dec.Zero, dec.Zero, false, 0)
	require.NoError(t, m.Insert(newOrder(t, 1, 1, common.Ask, "100", "2")))
	require.NoError(t, m.Insert(newOrder(t, 2, 2, common.Bid, "90", "3")))

	st := m.BookStatus()
	assert.Equal(t, 1, st.AskCount)
	assert.True(t, st.AskAmount.Equal(p(t, "2")))
	assert.Equal(t, 1, st.BidCount)
	assert.True(t, st.BidAmount.Equal(p(t, "3")))
}
