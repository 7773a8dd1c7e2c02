package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/asset"
	"fenrir/internal/common"
	dec "fenrir/internal/decimal"
	"fenrir/internal/ledger"
	"fenrir/internal/sinks"
)

func parseDec(t *testing.T, s string) dec.Dec {
	t.Helper()
	d, err := dec.Parse(s)
	require.NoError(t, err)
	return d
}

func newTestEngine(t *testing.T) (*Engine, *ledger.Ledger) {
	t.Helper()
	assets := asset.New()
	require.NoError(t, assets.Register("BTC", "Bitcoin", 8, 8, "0.00000001"))
	require.NoError(t, assets.Register("USD", "US Dollar", 2, 2, "0.01"))

	led := ledger.New()
	s := sinks.NewMemory()
	eng := New(assets, led, s, PriceLimits{})
	require.NoError(t, eng.RegisterMarket("BTCUSD", "BTC/USD", "BTC", "USD",
		parseDec(t, "0.001"), parseDec(t, "10"), parseDec(t, "10000"), false, 0))
	return eng, led
}

// TestRestingLimitOrderFreezesMoney checks that a BID with no resting
// counter-order freezes the full notional and leaves the order resting
// in full on the book.
func TestRestingLimitOrderFreezesMoney(t *testing.T) {
	eng, led := newTestEngine(t)
	s := sinks.NewMemory()
	_ = s
	res := led.Update(sinks.NewMemory(), true, 1, "USD", "deposit", 1, parseDec(t, "50000"), nil)
	require.Equal(t, common.CodeOK, res.Code)

	code, o := eng.PlaceLimit(PlaceParams{
		UserID: 1, Market: "BTCUSD", Side: common.Bid,
		Amount: parseDec(t, "1"), Price: parseDec(t, "10000"),
		TakerFee: parseDec(t, "0.001"), MakerFee: parseDec(t, "0.001"),
	})
	require.Equal(t, common.CodeOK, code)
	require.NotNil(t, o)
	assert.True(t, o.Left.Equal(parseDec(t, "1")))

	assert.True(t, led.Available(1, "USD").Equal(parseDec(t, "40000")))
	assert.True(t, led.Get(1, ledger.Freeze, "USD").Equal(parseDec(t, "10000")))
}

// TestCrossingLimitOrderSettlesFeesFromFreezeAndAvailable checks that a
// crossing LIMIT order settles the maker from its frozen balance and the
// taker from its available balance, each side's fee charged on the
// currency it receives.
func TestCrossingLimitOrderSettlesFeesFromFreezeAndAvailable(t *testing.T) {
	eng, led := newTestEngine(t)
	require.Equal(t, common.CodeOK, led.Update(sinks.NewMemory(), true, 1, "USD", "deposit", 1, parseDec(t, "50000"), nil).Code)
	require.Equal(t, common.CodeOK, led.Update(sinks.NewMemory(), true, 2, "BTC", "deposit", 2, parseDec(t, "2"), nil).Code)

	code, maker := eng.PlaceLimit(PlaceParams{
		UserID: 1, Market: "BTCUSD", Side: common.Bid,
		Amount: parseDec(t, "1"), Price: parseDec(t, "10000"),
		TakerFee: parseDec(t, "0.001"), MakerFee: parseDec(t, "0.001"),
	})
	require.Equal(t, common.CodeOK, code)
	require.True(t, maker.Left.Sign() > 0)

	code, taker := eng.PlaceLimit(PlaceParams{
		UserID: 2, Market: "BTCUSD", Side: common.Ask,
		Amount: parseDec(t, "1"), Price: parseDec(t, "10000"),
		TakerFee: parseDec(t, "0.002"), MakerFee: parseDec(t, "0.001"),
	})
	require.Equal(t, common.CodeOK, code)
	require.NotNil(t, taker)
	assert.True(t, taker.Left.IsZero())

	// user2 (taker, ASK) receives USD: 10000 - 0.002*10000 = 9980.
	assert.True(t, led.Available(2, "USD").Equal(parseDec(t, "9980")))
	// user1 (maker, BID) receives BTC: 1 - 0.001*1 = 0.999.
	assert.True(t, led.Available(1, "BTC").Equal(parseDec(t, "0.999")))

	m, ok := eng.Market("BTCUSD")
	require.True(t, ok)
	assert.True(t, m.LastPrice.Equal(parseDec(t, "10000")))
	_, onBook := m.GetByID(maker.ID)
	assert.False(t, onBook)
}

// TestFOKRejectsWhenBookCannotFillCompletely checks that a FOK order is
// rejected outright, with no partial fill and no balance effect, when
// the book cannot cover its full amount.
func TestFOKRejectsWhenBookCannotFillCompletely(t *testing.T) {
	eng, led := newTestEngine(t)
	require.Equal(t, common.CodeOK, led.Update(sinks.NewMemory(), true, 2, "BTC", "deposit", 1, parseDec(t, "3"), nil).Code)
	code, o := eng.PlaceLimit(PlaceParams{
		UserID: 2, Market: "BTCUSD", Side: common.Ask,
		Amount: parseDec(t, "3"), Price: parseDec(t, "10000"),
		TakerFee: parseDec(t, "0.001"), MakerFee: parseDec(t, "0.001"),
	})
	require.Equal(t, common.CodeOK, code)
	require.NotNil(t, o)

	require.Equal(t, common.CodeOK, led.Update(sinks.NewMemory(), true, 1, "USD", "deposit", 1, parseDec(t, "100000"), nil).Code)
	code, fok := eng.PlaceFOK(PlaceParams{
		UserID: 1, Market: "BTCUSD", Side: common.Bid,
		Amount: parseDec(t, "5"), Price: parseDec(t, "10000"),
		TakerFee: parseDec(t, "0.001"),
	})
	assert.Equal(t, common.CodeNoOrders, code)
	assert.Nil(t, fok)
	assert.True(t, led.Available(1, "USD").Equal(parseDec(t, "100000")))
}

// TestMarketOrderWithEmptyBookReturnsNoOrders checks that a MARKET order
// against an empty opposite book is rejected rather than left resting.
func TestMarketOrderWithEmptyBookReturnsNoOrders(t *testing.T) {
	eng, led := newTestEngine(t)
	require.Equal(t, common.CodeOK, led.Update(sinks.NewMemory(), true, 1, "USD", "deposit", 1, parseDec(t, "1000"), nil).Code)
	code, o := eng.PlaceMarket(PlaceParams{
		UserID: 1, Market: "BTCUSD", Side: common.Bid,
		Amount: parseDec(t, "1"), TakerFee: parseDec(t, "0.001"),
	})
	assert.Equal(t, common.CodeNoOrders, code)
	assert.Nil(t, o)
}

func TestAONOrderRestsAndIsNeverConsumedByGenericSweep(t *testing.T) {
	eng, led := newTestEngine(t)
	require.Equal(t, common.CodeOK, led.Update(sinks.NewMemory(), true, 2, "BTC", "deposit", 1, parseDec(t, "1"), nil).Code)
	code, aon := eng.PlaceAON(PlaceParams{
		UserID: 2, Market: "BTCUSD", Side: common.Ask,
		Amount: parseDec(t, "1"), Price: parseDec(t, "10000"),
		TakerFee: parseDec(t, "0.001"), MakerFee: parseDec(t, "0.001"),
	})
	require.Equal(t, common.CodeOK, code)
	require.NotNil(t, aon)

	require.Equal(t, common.CodeOK, led.Update(sinks.NewMemory(), true, 1, "USD", "deposit", 1, parseDec(t, "20000"), nil).Code)
	code, taker := eng.PlaceLimit(PlaceParams{
		UserID: 1, Market: "BTCUSD", Side: common.Bid,
		Amount: parseDec(t, "1"), Price: parseDec(t, "10000"),
		TakerFee: parseDec(t, "0.001"), MakerFee: parseDec(t, "0.001"),
	})
	require.Equal(t, common.CodeOK, code)
	require.NotNil(t, taker)
	assert.True(t, taker.Left.Equal(parseDec(t, "1")), "AON maker must not be consumed by the generic sweep")

	m, _ := eng.Market("BTCUSD")
	_, stillResting := m.GetByID(aon.ID)
	assert.True(t, stillResting)
}

func TestCancelUnfreezesBalanceAndRejectsWrongUser(t *testing.T) {
	eng, led := newTestEngine(t)
	require.Equal(t, common.CodeOK, led.Update(sinks.NewMemory(), true, 1, "USD", "deposit", 1, parseDec(t, "50000"), nil).Code)
	code, o := eng.PlaceLimit(PlaceParams{
		UserID: 1, Market: "BTCUSD", Side: common.Bid,
		Amount: parseDec(t, "1"), Price: parseDec(t, "10000"),
		TakerFee: parseDec(t, "0.001"), MakerFee: parseDec(t, "0.001"),
	})
	require.Equal(t, common.CodeOK, code)

	cancelCode, _ := eng.Cancel(2, "BTCUSD", o.ID)
	assert.Equal(t, common.CodeUserMismatch, cancelCode)

	cancelCode, canceled := eng.Cancel(1, "BTCUSD", o.ID)
	require.Equal(t, common.CodeOK, cancelCode)
	require.NotNil(t, canceled)
	assert.True(t, led.Available(1, "USD").Equal(parseDec(t, "50000")))
	assert.True(t, led.Get(1, ledger.Freeze, "USD").IsZero())

	missingCode, _ := eng.Cancel(1, "BTCUSD", o.ID)
	assert.Equal(t, common.CodeNotFound, missingCode)
}
