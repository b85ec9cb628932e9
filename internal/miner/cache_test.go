package miner

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCache(t *testing.T) *FetchCache {
	t.Helper()
	c, err := NewFetchCache(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestFetchCache_SetGet(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "https://example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "https://example.com", []byte("body"), time.Hour))

	body, ok, err := c.Get(ctx, "https://example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "body", string(body))
}

func TestFetchCache_Overwrite(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "https://example.com", []byte("v1"), time.Hour))
	require.NoError(t, c.Set(ctx, "https://example.com", []byte("v2"), time.Hour))

	body, ok, err := c.Get(ctx, "https://example.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", string(body))
}

func TestFetchCache_Expiry(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "https://example.com", []byte("body"), -time.Minute))

	_, ok, err := c.Get(ctx, "https://example.com")
	require.NoError(t, err)
	assert.False(t, ok, "expired entries are misses")

	n, err := c.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
