// Package sinks defines the contracts for the durability collaborators
// the core observes but does not own: the operation log, trade/balance
// history, and the pub-sub message bus. Their actual persistence is out
// of scope; this package only gives the core something to call
// and a health signal to gate mutating requests on.
package sinks

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Sinks is the set of durability collaborators a mutating command must
// check and emit to. A mutating command must only emit after its
// in-memory mutation has committed, so replay from the operlog
// regenerates identical state.
type Sinks interface {
	AppendOperlog(opName string, paramsJSON []byte)
	AppendHistory(kind string, payload []byte)
	PushMessage(topic string, payload []byte)

	IsOperlogBlocked() bool
	IsHistoryBlocked() bool
	IsMessageBlocked() bool

	// SignalBlock reports whether a shutdown signal is pending, gating
	// mutation so a final snapshot can be written before exit.
	SignalBlock() bool
}

// ringEntry is one retained emission, kept for introspection/tests.
type ringEntry struct {
	name    string
	payload []byte
}

// ring is a small fixed-capacity ring buffer, standing in for the real
// durable sink without pretending to be one.
type ring struct {
	mu      sync.Mutex
	entries []ringEntry
	cap     int
}

func newRing(capacity int) *ring {
	return &ring{cap: capacity}
}

func (r *ring) push(name string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, ringEntry{name: name, payload: payload})
	if len(r.entries) > r.cap {
		r.entries = r.entries[len(r.entries)-r.cap:]
	}
}

func (r *ring) snapshot() []ringEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ringEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

const defaultRingCapacity = 4096

// Memory is the in-process stand-in for the durable sinks: it logs every
// emission via zerolog and retains a bounded trailing window of each
// kind for inspection, and exposes atomically-settable block flags so
// tests (and an operator) can simulate backpressure or shutdown.
type Memory struct {
	operlog *ring
	history *ring
	message *ring

	operlogBlocked atomic.Bool
	historyBlocked atomic.Bool
	messageBlocked atomic.Bool
	signalBlocked  atomic.Bool
}

// NewMemory constructs a Memory sink set in the not-blocked state.
func NewMemory() *Memory {
	return &Memory{
		operlog: newRing(defaultRingCapacity),
		history: newRing(defaultRingCapacity),
		message: newRing(defaultRingCapacity),
	}
}

func (m *Memory) AppendOperlog(opName string, paramsJSON []byte) {
	m.operlog.push(opName, paramsJSON)
	log.Debug().Str("op", opName).Bytes("params", paramsJSON).Msg("operlog append")
}

func (m *Memory) AppendHistory(kind string, payload []byte) {
	m.history.push(kind, payload)
	log.Debug().Str("kind", kind).Bytes("payload", payload).Msg("history append")
}

func (m *Memory) PushMessage(topic string, payload []byte) {
	m.message.push(topic, payload)
	log.Debug().Str("topic", topic).Bytes("payload", payload).Msg("message push")
}

func (m *Memory) IsOperlogBlocked() bool { return m.operlogBlocked.Load() }
func (m *Memory) IsHistoryBlocked() bool { return m.historyBlocked.Load() }
func (m *Memory) IsMessageBlocked() bool { return m.messageBlocked.Load() }
func (m *Memory) SignalBlock() bool      { return m.signalBlocked.Load() }

// SetOperlogBlocked toggles operlog backpressure, for tests and the
// admin path that precedes a snapshot.
func (m *Memory) SetOperlogBlocked(v bool) { m.operlogBlocked.Store(v) }
func (m *Memory) SetHistoryBlocked(v bool) { m.historyBlocked.Store(v) }
func (m *Memory) SetMessageBlocked(v bool) { m.messageBlocked.Store(v) }

// RequestShutdown sets the signal-block flag so that any further
// mutating command is rejected with SERVICE_UNAVAILABLE, giving the
// caller a window to write a final snapshot before exit.
func (m *Memory) RequestShutdown() { m.signalBlocked.Store(true) }

// Unavailable reports whether any sink is currently unhealthy or a
// shutdown is pending — the single gate dispatch checks before any
// mutating command.
func Unavailable(s Sinks) bool {
	return s.IsOperlogBlocked() || s.IsHistoryBlocked() || s.IsMessageBlocked() || s.SignalBlock()
}
