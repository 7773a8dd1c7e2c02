package decimal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	d, err := Parse("1.2345")
	require.NoError(t, err)
	assert.Equal(t, "1.2345", d.String())

	_, err = Parse("not-a-number")
	assert.Error(t, err)
}

func TestRescaleBankersRounding(t *testing.T) {
	d, _ := Parse("1.005")
	assert.Equal(t, "1", Rescale(d, 2).String())

	d, _ = Parse("1.015")
	assert.Equal(t, "1.02", Rescale(d, 2).String())
}

func TestDivisibleBy(t *testing.T) {
	amount, _ := Parse("1.50")
	step, _ := Parse("0.10")
	assert.True(t, DivisibleBy(amount, step))

	bad, _ := Parse("1.55")
	assert.False(t, DivisibleBy(bad, step))

	assert.False(t, DivisibleBy(amount, Zero))
}

func TestCeilFloorToStep(t *testing.T) {
	step, _ := Parse("10")
	x, _ := Parse("101")
	assert.Equal(t, "110", CeilToStep(x, step).String())
	assert.Equal(t, "100", FloorToStep(x, step).String())

	exact, _ := Parse("100")
	assert.Equal(t, "100", CeilToStep(exact, step).String())
	assert.Equal(t, "100", FloorToStep(exact, step).String())
}
