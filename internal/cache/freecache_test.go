package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreeCache(t *testing.T) {
	c := NewFreeCache(1)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	require.NoError(t, c.Set("kategori", []byte(`[{"id":"1"}]`), time.Minute))
	v, ok := c.Get("kategori")
	require.True(t, ok)
	assert.Equal(t, `[{"id":"1"}]`, string(v))

	c.Del("kategori")
	_, ok = c.Get("kategori")
	assert.False(t, ok)

	require.NoError(t, c.Set("a", []byte("1"), time.Minute))
	require.NoError(t, c.Set("b", []byte("2"), time.Minute))
	c.Clear()
	_, ok = c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestFreeCache_ValueTooLarge(t *testing.T) {
	c := NewFreeCache(1)
	// freecache rejects entries larger than 1/1024 of the cache size
	err := c.Set("big", make([]byte, 2*1024), time.Minute)
	assert.Error(t, err)
}
