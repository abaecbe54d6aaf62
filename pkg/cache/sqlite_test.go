package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache", "kv.db")

	s, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s.now = clock.now

	require.NoError(t, s.Set(ctx, "answer:a", []byte(`{"x":1}`), time.Minute))
	require.NoError(t, s.Set(ctx, "answer:a", []byte(`{"x":2}`), time.Minute))
	require.NoError(t, s.Set(ctx, "answer:b", []byte(`{}`), 0))

	got, ok, err := s.Get(ctx, "answer:a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"x":2}`, string(got))

	clock.advance(time.Minute)
	_, ok, err = s.Get(ctx, "answer:a")
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := s.Keys(ctx, "answer:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"answer:b"}, keys)

	purged, err := s.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	require.NoError(t, s.Delete(ctx, "answer:b"))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	keys, err = reopened.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
