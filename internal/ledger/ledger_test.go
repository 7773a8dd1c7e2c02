package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/common"
	dec "fenrir/internal/decimal"
	"fenrir/internal/sinks"
)

func d(t *testing.T, s string) dec.Dec {
	t.Helper()
	v, err := dec.Parse(s)
	require.NoError(t, err)
	return v
}

func TestAddRejectsNegativeResult(t *testing.T) {
	l := New()
	require.NoError(t, l.Add(1, Available, "BTC", d(t, "5")))
	assert.ErrorIs(t, l.Add(1, Available, "BTC", d(t, "-10")), ErrNegativeResult)
	assert.True(t, l.Get(1, Available, "BTC").Equal(d(t, "5")))
}

func TestFreezeAndUnfreeze(t *testing.T) {
	l := New()
	require.NoError(t, l.Add(1, Available, "BTC", d(t, "10")))
	require.NoError(t, l.FreezeAmount(1, "BTC", d(t, "4")))
	assert.True(t, l.Available(1, "BTC").Equal(d(t, "6")))
	assert.True(t, l.Get(1, Freeze, "BTC").Equal(d(t, "4")))

	assert.ErrorIs(t, l.FreezeAmount(1, "BTC", d(t, "100")), ErrInsufficientBalance)

	require.NoError(t, l.UnfreezeAmount(1, "BTC", d(t, "4")))
	assert.True(t, l.Available(1, "BTC").Equal(d(t, "10")))
	assert.ErrorIs(t, l.UnfreezeAmount(1, "BTC", d(t, "1")), ErrInsufficientBalance)
}

func TestUpdateIsIdempotentOnBusinessKey(t *testing.T) {
	l := New()
	s := sinks.NewMemory()

	res1 := l.Update(s, true, 1, "BTC", "deposit", 100, d(t, "5"), nil)
	assert.Equal(t, common.CodeOK, res1.Code)

	res2 := l.Update(s, true, 1, "BTC", "deposit", 100, d(t, "5"), nil)
	assert.Equal(t, UpdateRepeat, res2.Code)
	assert.True(t, l.Available(1, "BTC").Equal(d(t, "5")))
}

func TestUpdateRejectsInsufficientNegativeChange(t *testing.T) {
	l := New()
	s := sinks.NewMemory()
	res := l.Update(s, true, 1, "BTC", "withdraw", 1, d(t, "-5"), nil)
	assert.Equal(t, UpdateInsufficient, res.Code)
}

func TestScanAggregatesAcrossUsers(t *testing.T) {
	l := New()
	require.NoError(t, l.Add(1, Available, "BTC", d(t, "3")))
	require.NoError(t, l.Add(2, Available, "BTC", d(t, "7")))
	require.NoError(t, l.FreezeAmount(2, "BTC", d(t, "2")))

	total, availCount, freezeCount, available, freeze := l.Scan("BTC")
	assert.Equal(t, 2, total)
	assert.Equal(t, 2, availCount)
	assert.Equal(t, 1, freezeCount)
	assert.True(t, available.Equal(d(t, "8")))
	assert.True(t, freeze.Equal(d(t, "2")))
}
