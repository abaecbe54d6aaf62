package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Entry is a cached value with the version tag it was stored under.
type Entry struct {
	Value      json.RawMessage `json:"value"`
	VersionTag string          `json:"version_tag"`
	StoredAt   time.Time       `json:"stored_at"`
}

// Cache stores versioned values on top of a Store.
type Cache struct {
	store Store
	now   func() time.Time
}

// New creates a cache over store.
func New(store Store) *Cache {
	return &Cache{store: store, now: time.Now}
}

// Store returns the underlying key-value store.
func (c *Cache) Store() Store {
	return c.store
}

// Get returns the live entry for key.
func (c *Cache) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A corrupt entry is a miss; drop it so the next Set can replace it.
		_ = c.store.Delete(ctx, key)
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Set stores value under key with its version tag until ttl elapses.
func (c *Cache) Set(ctx context.Context, key string, value []byte, versionTag string, ttl time.Duration) error {
	if !json.Valid(value) {
		return fmt.Errorf("cache value for %s is not valid JSON", key)
	}
	raw, err := json.Marshal(Entry{
		Value:      value,
		VersionTag: versionTag,
		StoredAt:   c.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return c.store.Set(ctx, key, raw, ttl)
}

// Invalidate deletes every key matching pattern and returns how many were removed.
func (c *Cache) Invalidate(ctx context.Context, pattern string) (int, error) {
	keys, err := c.store.Keys(ctx, pattern)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, key := range keys {
		if err := c.store.Delete(ctx, key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// VersionTag derives a short content hash used as a conditional-fetch token.
func VersionTag(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

// Key joins parts into a namespaced cache key, hashing the free-text tail so
// keys stay bounded and glob-safe.
func Key(namespace string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(strings.TrimSpace(strings.ToLower(p))))
		h.Write([]byte{0})
	}
	return namespace + ":" + hex.EncodeToString(h.Sum(nil))[:32]
}
