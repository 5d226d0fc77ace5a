package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, capacity int) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "", capacity), srv
}

func TestRedisStoreTrimsToCapacity(t *testing.T) {
	store, srv := newRedisStore(t, 3)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		_, err := store.Append(ctx, entryAt(fmt.Sprintf("e%d", i), ActionView, baseTime.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	items, err := srv.List(DefaultRedisKey)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 3)
	assert.Equal(t, "e3", snap[0].ID)
	assert.Equal(t, "e5", snap[2].ID)
}

func TestRedisStoreQueryAndPurge(t *testing.T) {
	store, _ := newRedisStore(t, 10)
	ctx := context.Background()
	old := entryAt("old", ActionLogin, baseTime.Add(-40*24*time.Hour))
	old.Details = map[string]any{"source": "sso"}
	_, _ = store.Append(ctx, old)
	_, _ = store.Append(ctx, entryAt("mid", ActionView, baseTime.Add(-time.Hour)))
	_, _ = store.Append(ctx, entryAt("new", ActionView, baseTime))

	got, err := store.Query(ctx, Filters{Action: ActionView})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ID)

	got, err = store.Query(ctx, Filters{Action: ActionLogin})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "sso", got[0].Details["source"])

	removed, err := store.Purge(ctx, baseTime.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 2)
	assert.Equal(t, "mid", snap[0].ID)

	removed, err = store.Purge(ctx, baseTime.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRedisStoreSurfacesCorruptEntries(t *testing.T) {
	store, srv := newRedisStore(t, 10)
	_, err := srv.Push(DefaultRedisKey, "{not json")
	require.NoError(t, err)

	_, err = store.Snapshot(context.Background())
	assert.ErrorContains(t, err, "decode entry")
}
