package depth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/common"
	dec "fenrir/internal/decimal"
	"fenrir/internal/market"
)

func parse(t *testing.T, s string) dec.Dec {
	t.Helper()
	d, err := dec.Parse(s)
	require.NoError(t, err)
	return d
}

func order(t *testing.T, id uint64, side common.Side, price, left string) *market.Order {
	return &market.Order{ID: id, Side: side, Price: parse(t, price), Amount: parse(t, left), Left: parse(t, left)}
}

func buildBook(t *testing.T) *market.Market {
	m := market.New("BTCUSD", "BTC/USD", "BTC", "USD", 8, 2, 2, dec.Zero, dec.Zero, dec.Zero, false, 0)
	require.NoError(t, m.Insert(order(t, 1, common.Ask, "100", "1")))
	require.NoError(t, m.Insert(order(t, 2, common.Ask, "100", "2")))
	require.NoError(t, m.Insert(order(t, 3, common.Ask, "101", "1")))
	require.NoError(t, m.Insert(order(t, 4, common.Bid, "99", "5")))
	return m
}

func TestGetGroupsSamePriceLevels(t *testing.T) {
	m := buildBook(t)
	book := Get(m, 0)
	require.Len(t, book.Asks, 2)
	assert.Equal(t, Level{"100", "3"}, book.Asks[0])
	assert.Equal(t, Level{"101", "1"}, book.Asks[1])
	require.Len(t, book.Bids, 1)
	assert.Equal(t, Level{"99", "5"}, book.Bids[0])
}

func TestGetRespectsLimit(t *testing.T) {
	m := buildBook(t)
	book := Get(m, 1)
	require.Len(t, book.Asks, 1)
	assert.Equal(t, Level{"100", "3"}, book.Asks[0])
}

func TestGetMergeRoundsAsksUpAndBidsDown(t *testing.T) {
	m := buildBook(t)
	interval := parse(t, "10")
	book := GetMerge(m, 0, interval)
	require.Len(t, book.Asks, 2)
	assert.Equal(t, Level{"100", "3"}, book.Asks[0])
	assert.Equal(t, Level{"110", "1"}, book.Asks[1])

	require.Len(t, book.Bids, 1)
	assert.Equal(t, "90", book.Bids[0][0])
}
