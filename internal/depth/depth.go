// Package depth computes aggregated order-book snapshots and caches
// them for a short TTL, keyed by request fingerprint.
package depth

import (
	dec "fenrir/internal/decimal"
	"fenrir/internal/market"
)

// Level is one aggregated price level: [price, summed_left].
type Level [2]string

// Book is a depth snapshot for one market.
type Book struct {
	Asks []Level `json:"asks"`
	Bids []Level `json:"bids"`
}

// Get returns up to limit price levels per side, grouping consecutive
// orders that share a price.
func Get(m *market.Market, limit int) Book {
	return Book{
		Asks: groupLevels(m.Asks(), limit, nil),
		Bids: groupLevels(m.Bids(), limit, nil),
	}
}

// GetMerge rounds each ask price up to the next multiple of interval
// and each bid price down, then groups and sums.
func GetMerge(m *market.Market, limit int, interval dec.Dec) Book {
	return Book{
		Asks: groupLevels(m.Asks(), limit, func(p dec.Dec) dec.Dec { return dec.CeilToStep(p, interval) }),
		Bids: groupLevels(m.Bids(), limit, func(p dec.Dec) dec.Dec { return dec.FloorToStep(p, interval) }),
	}
}

// groupLevels walks orders (already in price-time order) and emits up
// to limit aggregated levels, applying round to each order's price
// before grouping (round may be nil for the unmerged case).
func groupLevels(orders []*market.Order, limit int, round func(dec.Dec) dec.Dec) []Level {
	var levels []Level
	var curPrice dec.Dec
	var curSum dec.Dec
	have := false

	flush := func() {
		if have {
			levels = append(levels, Level{curPrice.String(), curSum.String()})
		}
	}

	for _, o := range orders {
		price := o.Price
		if round != nil {
			price = round(price)
		}
		if have && price.Equal(curPrice) {
			curSum = curSum.Add(o.Left)
			continue
		}
		if have {
			if limit > 0 && len(levels) >= limit {
				return levels
			}
			flush()
		}
		curPrice = price
		curSum = o.Left
		have = true
	}
	if have && (limit <= 0 || len(levels) < limit) {
		flush()
	}
	return levels
}
