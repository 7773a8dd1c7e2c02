// Package ledger is the per-(user, asset) balance store: an available
// and a freeze partition, with an idempotent Update keyed on
// (business, business_id).
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"fenrir/internal/common"
	dec "fenrir/internal/decimal"
	"fenrir/internal/sinks"
)

var (
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrNegativeResult      = errors.New("ledger: resulting balance would be negative")
)

// Kind selects which partition of a user's balance an operation targets.
type Kind int

const (
	Available Kind = iota
	Freeze
)

type account struct {
	available dec.Dec
	freeze    dec.Dec
}

type businessKey struct {
	business   string
	businessID uint64
}

// Ledger is the balance store for every (user, asset) pair.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[uint64]map[string]*account
	dedup    map[businessKey]common.Code
}

// New constructs an empty ledger.
func New() *Ledger {
	return &Ledger{
		accounts: make(map[uint64]map[string]*account),
		dedup:    make(map[businessKey]common.Code),
	}
}

func (l *Ledger) account(user uint64, asset string) *account {
	byAsset, ok := l.accounts[user]
	if !ok {
		byAsset = make(map[string]*account)
		l.accounts[user] = byAsset
	}
	a, ok := byAsset[asset]
	if !ok {
		a = &account{available: dec.Zero, freeze: dec.Zero}
		byAsset[asset] = a
	}
	return a
}

// Get returns the balance of kind for (user, asset); absent entries are
// zero, not an error.
func (l *Ledger) Get(user uint64, kind Kind, asset string) dec.Dec {
	l.mu.RLock()
	defer l.mu.RUnlock()
	byAsset, ok := l.accounts[user]
	if !ok {
		return dec.Zero
	}
	a, ok := byAsset[asset]
	if !ok {
		return dec.Zero
	}
	if kind == Available {
		return a.available
	}
	return a.freeze
}

// Add applies delta to the given partition. A negative delta is only
// applied if the resulting balance would stay non-negative.
func (l *Ledger) Add(user uint64, kind Kind, asset string, delta dec.Dec) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.account(user, asset)
	target := &a.available
	if kind == Freeze {
		target = &a.freeze
	}
	next := target.Add(delta)
	if next.Sign() < 0 {
		return fmt.Errorf("%w: user %d asset %s", ErrNegativeResult, user, asset)
	}
	*target = next
	return nil
}

// FreezeAmount moves amount from available to freeze for (user, asset).
func (l *Ledger) FreezeAmount(user uint64, asset string, amount dec.Dec) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.account(user, asset)
	if a.available.LessThan(amount) {
		return fmt.Errorf("%w: user %d asset %s", ErrInsufficientBalance, user, asset)
	}
	a.available = a.available.Sub(amount)
	a.freeze = a.freeze.Add(amount)
	return nil
}

// UnfreezeAmount reverses FreezeAmount, moving amount back to available.
func (l *Ledger) UnfreezeAmount(user uint64, asset string, amount dec.Dec) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.account(user, asset)
	if a.freeze.LessThan(amount) {
		return fmt.Errorf("%w: user %d asset %s freeze", ErrInsufficientBalance, user, asset)
	}
	a.freeze = a.freeze.Sub(amount)
	a.available = a.available.Add(amount)
	return nil
}

// Available is a convenience accessor used throughout order validation.
func (l *Ledger) Available(user uint64, asset string) dec.Dec {
	return l.Get(user, Available, asset)
}

// UpdateResult is the outcome of Update.
type UpdateResult struct {
	Code    common.Code
	Balance dec.Dec
}

const (
	UpdateRepeat       common.Code = -1
	UpdateInsufficient common.Code = -2
)

// Update applies change to available(user, asset), deduplicated on
// (business, business_id): a repeat of the same key returns
// UpdateRepeat without reapplying. A negative change larger in
// magnitude than the current available balance returns
// UpdateInsufficient. On success with real == true, the history,
// operlog and message sinks are notified after the mutation commits.
func (l *Ledger) Update(s sinks.Sinks, real bool, user uint64, asset, business string, businessID uint64, change dec.Dec, detail []byte) UpdateResult {
	key := businessKey{business: business, businessID: businessID}

	l.mu.Lock()
	if _, seen := l.dedup[key]; seen {
		l.mu.Unlock()
		return UpdateResult{Code: UpdateRepeat}
	}

	a := l.account(user, asset)
	if change.Sign() < 0 && change.Abs().GreaterThan(a.available) {
		l.dedup[key] = UpdateInsufficient
		l.mu.Unlock()
		return UpdateResult{Code: UpdateInsufficient}
	}

	a.available = a.available.Add(change)
	result := a.available
	l.dedup[key] = common.CodeOK
	l.mu.Unlock()

	if real && s != nil {
		payload := fmt.Appendf(nil, `{"user":%d,"asset":%q,"business":%q,"business_id":%d,"change":%q,"detail":%s}`,
			user, asset, business, businessID, change.String(), detailOrNull(detail))
		s.AppendHistory("balance_update", payload)
		s.AppendOperlog("balance_update", payload)
		s.PushMessage("balance."+asset, payload)
	}

	return UpdateResult{Code: common.CodeOK, Balance: result}
}

func detailOrNull(detail []byte) []byte {
	if len(detail) == 0 {
		return []byte("null")
	}
	return detail
}

// Scan implements asset.Scanner: it aggregates every user's balance of
// asset into counts and totals for ASSET_SUMMARY.
func (l *Ledger) Scan(asset string) (totalCount, availableCount, freezeCount int, available, freeze dec.Dec) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	available, freeze = dec.Zero, dec.Zero
	for _, byAsset := range l.accounts {
		a, ok := byAsset[asset]
		if !ok {
			continue
		}
		touched := false
		if a.available.Sign() > 0 {
			availableCount++
			available = available.Add(a.available)
			touched = true
		}
		if a.freeze.Sign() > 0 {
			freezeCount++
			freeze = freeze.Add(a.freeze)
			touched = true
		}
		if touched {
			totalCount++
		}
	}
	return
}
