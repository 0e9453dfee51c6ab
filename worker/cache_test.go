package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeepAliveCacheMissWhenEmpty(t *testing.T) {
	c := newKeepAliveCache()
	_, _, ok := c.Get()
	require.False(t, ok)
}

func TestKeepAliveCacheHit(t *testing.T) {
	c := newKeepAliveCache()
	c.Put([]byte("pong"), "text/plain")

	body, contentType, ok := c.Get()
	require.True(t, ok)
	require.Equal(t, []byte("pong"), body)
	require.Equal(t, "text/plain", contentType)
}

func TestKeepAliveCacheExpiryFromLastUse(t *testing.T) {
	clock := time.Now()
	c := newKeepAliveCache()
	c.now = func() time.Time { return clock }

	c.Put([]byte("pong"), "text/plain")

	// Just inside the window: hit, and the hit refreshes the expiry.
	clock = clock.Add(keepAliveMaxAge - time.Hour)
	_, _, ok := c.Get()
	require.True(t, ok)

	// The same offset again is still inside the refreshed window.
	clock = clock.Add(keepAliveMaxAge - time.Hour)
	_, _, ok = c.Get()
	require.True(t, ok)

	// Past the window with no use in between: gone.
	clock = clock.Add(keepAliveMaxAge + time.Hour)
	_, _, ok = c.Get()
	require.False(t, ok)
}

func TestKeepAliveCacheReset(t *testing.T) {
	c := newKeepAliveCache()
	c.Put([]byte("pong"), "text/plain")
	c.Reset()
	_, _, ok := c.Get()
	require.False(t, ok)
}
