package depth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheGetSetRoundTrip(t *testing.T) {
	c := NewCache(time.Minute)
	_, ok := c.Get("fp1")
	assert.False(t, ok)

	c.Set("fp1", 1.0, []byte(`{"asks":[]}`))
	val, ok := c.Get("fp1")
	assert.True(t, ok)
	assert.Equal(t, 1.0, val.Time)
	assert.Equal(t, []byte(`{"asks":[]}`), val.Result)
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	c := NewCache(10 * time.Millisecond)
	c.Set("fp1", 1.0, []byte("x"))
	time.Sleep(30 * time.Millisecond)
	_, ok := c.Get("fp1")
	assert.False(t, ok)
}

func TestCachePurgeClearsEverything(t *testing.T) {
	c := NewCache(time.Minute)
	c.Set("fp1", 1.0, []byte("x"))
	c.Purge()
	_, ok := c.Get("fp1")
	assert.False(t, ok)
}
