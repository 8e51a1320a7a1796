package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T) *PayloadCache {
	t.Helper()
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestKey(t *testing.T) {
	day := time.Date(2025, 2, 1, 15, 30, 0, 0, time.UTC)
	assert.Equal(t, "payload:IT001E12345678:2025-02-01", Key("IT001E12345678", day))
}

func TestSetAndGet(t *testing.T) {
	c := openTestCache(t)

	key := Key("POD", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	payload := []byte(`{"data":{}}`)

	require.NoError(t, c.Set(key, payload, time.Hour))

	got, ok, err := c.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestGet_Missing(t *testing.T) {
	c := openTestCache(t)

	_, ok, err := c.Get("payload:POD:2025-01-01")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClosedCacheIsInert(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, c.Close())

	assert.NoError(t, c.Set("k", []byte("v"), time.Hour))
	_, ok, err := c.Get("k")
	assert.NoError(t, err)
	assert.False(t, ok)

	// Double close is safe
	assert.NoError(t, c.Close())
}
