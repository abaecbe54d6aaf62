// Package cache holds synthesized answers and degraded fallbacks behind a
// TTL key-value store.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("cache store closed")

// Store is the key-value collaborator behind the answer cache and the
// degradation fallback cache. Entries expire strictly by TTL; a zero TTL
// means no expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// Keys lists live keys matching a glob pattern such as "answer:*".
	Keys(ctx context.Context, pattern string) ([]string, error)

	Close() error
}
