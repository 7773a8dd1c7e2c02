package sinks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnavailableReflectsAnyBlockedFlag(t *testing.T) {
	m := NewMemory()
	assert.False(t, Unavailable(m))

	m.SetOperlogBlocked(true)
	assert.True(t, Unavailable(m))
	m.SetOperlogBlocked(false)

	m.SetHistoryBlocked(true)
	assert.True(t, Unavailable(m))
	m.SetHistoryBlocked(false)

	m.SetMessageBlocked(true)
	assert.True(t, Unavailable(m))
	m.SetMessageBlocked(false)

	m.RequestShutdown()
	assert.True(t, Unavailable(m))
}

func TestRingRetainsBoundedWindow(t *testing.T) {
	m := NewMemory()
	for i := 0; i < defaultRingCapacity+10; i++ {
		m.AppendHistory("trade", []byte("x"))
	}
	assert.Len(t, m.history.snapshot(), defaultRingCapacity)
}
