// Package asset is the catalog of tradable assets: storage precision,
// display precision, and tick size.
package asset

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	dec "fenrir/internal/decimal"
)

var (
	ErrExists      = errors.New("asset: symbol already registered")
	ErrInvalidTick = errors.New("asset: tick size must be positive")
	ErrNotFound    = errors.New("asset: symbol not registered")
)

// Asset is one entry in the registry.
type Asset struct {
	Symbol   string
	Name     string
	PrecSave int
	PrecShow int
	Tick     dec.Dec
	id       int
}

// Registry is the process-wide asset catalog. It holds no balance data
// itself; Summarize is handed a Scanner so it can aggregate without a
// direct dependency on the ledger package.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Asset
	order  []string
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{byName: make(map[string]*Asset)}
}

// Register adds a new asset. PrecShow defaults to PrecSave when <= 0 or
// greater than PrecSave; tick_size <= 0 or a symbol collision fails.
func (r *Registry) Register(symbol, name string, precSave, precShow int, tickSizeStr string) error {
	tick, err := dec.Parse(tickSizeStr)
	if err != nil {
		return err
	}
	if tick.Sign() <= 0 {
		return ErrInvalidTick
	}
	if precShow <= 0 || precShow > precSave {
		precShow = precSave
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[symbol]; ok {
		return fmt.Errorf("%w: %s", ErrExists, symbol)
	}
	r.byName[symbol] = &Asset{
		Symbol:   symbol,
		Name:     name,
		PrecSave: precSave,
		PrecShow: precShow,
		Tick:     tick,
		id:       len(r.order),
	}
	r.order = append(r.order, symbol)
	return nil
}

// Exist reports whether symbol is registered.
func (r *Registry) Exist(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byName[symbol]
	return ok
}

func (r *Registry) get(symbol string) (*Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byName[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}
	return a, nil
}

// Prec returns the storage precision (prec_save) of symbol.
func (r *Registry) Prec(symbol string) (int, error) {
	a, err := r.get(symbol)
	if err != nil {
		return 0, err
	}
	return a.PrecSave, nil
}

// PrecShow returns the display precision of symbol.
func (r *Registry) PrecShow(symbol string) (int, error) {
	a, err := r.get(symbol)
	if err != nil {
		return 0, err
	}
	return a.PrecShow, nil
}

// TickSize returns the minimal price/amount increment for symbol.
func (r *Registry) TickSize(symbol string) (dec.Dec, error) {
	a, err := r.get(symbol)
	if err != nil {
		return dec.Dec{}, err
	}
	return a.Tick, nil
}

// ID returns symbol's registration index, or -1 if unregistered.
func (r *Registry) ID(symbol string) int {
	a, err := r.get(symbol)
	if err != nil {
		return -1
	}
	return a.id
}

// List returns every registered asset in registration order.
func (r *Registry) List() []Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Asset, 0, len(r.order))
	for _, s := range r.order {
		out = append(out, *r.byName[s])
	}
	return out
}

// Symbols returns every registered symbol, sorted, for deterministic
// iteration (e.g. ASSET_SUMMARY with no arguments).
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for s := range r.byName {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Scanner is the minimal ledger view Summary needs: total accounting
// across every user for one asset.
type Scanner interface {
	Scan(asset string) (totalCount, availableCount, freezeCount int, available, freeze dec.Dec)
}

// Summary is the ASSET_SUMMARY aggregation: per-asset counts/totals
// obtained by scanning the ledger.
type Summary struct {
	Symbol         string
	TotalCount     int
	AvailableCount int
	Available      dec.Dec
	FreezeCount    int
	Freeze         dec.Dec
	Total          dec.Dec
}

// Summarize builds the Summary for symbol by scanning s.
func (r *Registry) Summarize(s Scanner, symbol string) (Summary, error) {
	if !r.Exist(symbol) {
		return Summary{}, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}
	totalCount, availableCount, freezeCount, available, freeze := s.Scan(symbol)
	return Summary{
		Symbol:         symbol,
		TotalCount:     totalCount,
		AvailableCount: availableCount,
		Available:      available,
		FreezeCount:    freezeCount,
		Freeze:         freeze,
		Total:          available.Add(freeze),
	}, nil
}
