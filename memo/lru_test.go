package memo

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUEvictsOldest(t *testing.T) {
	c := newLRUCache(3, 0, nil)
	c.put("a", "1")
	c.put("b", "2")
	c.put("c", "3")

	// Touch "a" so "b" becomes the eviction candidate
	_, ok := c.get("a")
	require.True(t, ok)

	c.put("d", "4")
	assert.Equal(t, 3, c.len())

	_, ok = c.get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	for _, key := range []string{"a", "c", "d"} {
		_, ok := c.get(key)
		assert.True(t, ok, key)
	}
}

func TestLRUUpdateRefreshes(t *testing.T) {
	c := newLRUCache(2, 0, nil)
	c.put("a", "1")
	c.put("b", "2")
	c.put("a", "updated") // refreshes recency, no new entry
	c.put("c", "3")       // evicts "b"

	v, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, "updated", v)
	_, ok = c.get("b")
	assert.False(t, ok)
}

func TestLRUExpiresByTTL(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := newLRUCache(10, 30*time.Minute, func() time.Time { return now })
	c.put("a", "1")

	now = now.Add(29 * time.Minute)
	_, ok := c.get("a")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.len(), "expired entry is removed on read")
}

func TestCacheKeyStability(t *testing.T) {
	a := CacheKey("#2AjsZqmEm...")
	assert.Equal(t, a, CacheKey("#2AjsZqmEm..."))
	assert.NotEqual(t, a, CacheKey("#different"))
}

func TestCacheKeyLongCiphertexts(t *testing.T) {
	base := make([]byte, keyPrefixLen)
	for i := range base {
		base[i] = byte('a' + i%26)
	}

	// Ciphertexts differing only beyond the prefix share a key
	long1 := fmt.Sprintf("%s-tail-one", base)
	long2 := fmt.Sprintf("%s-tail-two", base)
	assert.Equal(t, CacheKey(long1), CacheKey(long2))

	// A difference inside the prefix changes the key
	other := append([]byte{}, base...)
	other[0] = 'z'
	assert.NotEqual(t, CacheKey(string(base)), CacheKey(string(other)))
}
