package apicache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_PutGetWithinTTL(t *testing.T) {
	c := New()
	c.Put("weather_Minsk,BY", []byte(`{"temp":20}`), 30*time.Minute)

	got, ok := c.Get("weather_Minsk,BY")
	require.True(t, ok)
	assert.Equal(t, []byte(`{"temp":20}`), got)
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c := New()
	base := time.Now()
	c.now = func() time.Time { return base }
	c.Put("currency_rates", []byte(`{}`), time.Hour)

	c.now = func() time.Time { return base.Add(time.Hour - time.Second) }
	_, ok := c.Get("currency_rates")
	assert.True(t, ok)

	c.now = func() time.Time { return base.Add(time.Hour) }
	_, ok = c.Get("currency_rates")
	assert.False(t, ok, "entry is invalid once now - fetchedAt >= ttl")
}

func TestCache_OverwriteReplacesWholesale(t *testing.T) {
	c := New()
	c.Put("k", []byte("old"), time.Millisecond)
	c.Put("k", []byte("new"), time.Hour)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("new"), got)
}

func TestCache_InvalidateSingleKey(t *testing.T) {
	c := New()
	c.Put("a", []byte("1"), time.Hour)
	c.Put("b", []byte("2"), time.Hour)

	c.Invalidate("a")

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
}

func TestCache_InvalidateAll(t *testing.T) {
	c := New()
	c.Put("a", []byte("1"), time.Hour)
	c.Put("b", []byte("2"), time.Hour)

	c.InvalidateAll()

	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.False(t, ok)
}
