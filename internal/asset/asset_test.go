package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dec "fenrir/internal/decimal"
)

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("BTC", "Bitcoin", 8, 8, "0.00000001"))
	assert.True(t, r.Exist("BTC"))

	prec, err := r.Prec("BTC")
	require.NoError(t, err)
	assert.Equal(t, 8, prec)

	tick, err := r.TickSize("BTC")
	require.NoError(t, err)
	assert.True(t, tick.Equal(mustParse(t, "0.00000001")))
}

func TestRegisterRejectsDuplicateAndBadTick(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("BTC", "Bitcoin", 8, 8, "0.00000001"))
	assert.ErrorIs(t, r.Register("BTC", "Bitcoin", 8, 8, "0.00000001"), ErrExists)
	assert.ErrorIs(t, r.Register("ETH", "Ether", 8, 8, "0"), ErrInvalidTick)
}

func TestPrecShowDefaultsToPrecSave(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("USD", "US Dollar", 2, 0, "0.01"))
	show, err := r.PrecShow("USD")
	require.NoError(t, err)
	assert.Equal(t, 2, show)
}

type fakeScanner struct {
	total, avail, freeze int
	available, frozen    dec.Dec
}

func (f fakeScanner) Scan(asset string) (int, int, int, dec.Dec, dec.Dec) {
	return f.total, f.avail, f.freeze, f.available, f.frozen
}

func TestSummarize(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("BTC", "Bitcoin", 8, 8, "0.00000001"))

	scanner := fakeScanner{total: 3, avail: 2, freeze: 1, available: mustParse(t, "10"), frozen: mustParse(t, "1")}
	sum, err := r.Summarize(scanner, "BTC")
	require.NoError(t, err)
	assert.Equal(t, 3, sum.TotalCount)
	assert.True(t, sum.Total.Equal(mustParse(t, "11")))

	_, err = r.Summarize(scanner, "ETH")
	assert.ErrorIs(t, err, ErrNotFound)
}

func mustParse(t *testing.T, s string) dec.Dec {
	t.Helper()
	d, err := dec.Parse(s)
	require.NoError(t, err)
	return d
}
