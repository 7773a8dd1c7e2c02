// Package decimal provides the fixed-precision arithmetic used for every
// monetary and quantity field in the engine. It is a thin domain wrapper
// around shopspring/decimal that fixes one rounding mode process-wide.
package decimal

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Dec is a fixed-precision decimal value.
type Dec = decimal.Decimal

var (
	Zero = decimal.Zero
	One  = decimal.NewFromInt(1)
)

// Parse parses s as a Dec, failing on malformed input. The parsed value
// is returned as written, without quantization; callers that need it at
// an asset's storage precision (prec_save) call Rescale afterward.
func Parse(s string) (Dec, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Dec{}, fmt.Errorf("decimal: parse %q: %w", s, err)
	}
	return d, nil
}

// Rescale quantizes x to places digits after the decimal point using
// banker's rounding (round-half-to-even), the single rounding mode used
// consistently across the process.
func Rescale(x Dec, places int32) Dec {
	return x.RoundBank(places)
}

// Mod returns x modulo y using truncated division, matching the
// tick-size divisibility checks used throughout order validation.
func Mod(x, y Dec) Dec {
	return x.Mod(y)
}

// DivisibleBy reports whether x is an exact multiple of step (i.e. x mod
// step == 0). A zero or negative step never divides evenly.
func DivisibleBy(x, step Dec) bool {
	if step.Sign() <= 0 {
		return false
	}
	return x.Mod(step).IsZero()
}

// CeilToStep rounds x up to the next multiple of step (step > 0).
func CeilToStep(x, step Dec) Dec {
	if step.Sign() <= 0 {
		return x
	}
	q := x.Div(step)
	ceil := q.Ceil()
	return ceil.Mul(step)
}

// FloorToStep rounds x down to the next multiple of step (step > 0).
func FloorToStep(x, step Dec) Dec {
	if step.Sign() <= 0 {
		return x
	}
	q := x.Div(step)
	floor := q.Floor()
	return floor.Mul(step)
}
