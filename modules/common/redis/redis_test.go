package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb), mr
}

func TestLockIsExclusive(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	token, ok, err := store.Lock(ctx, "studio:inflight:u1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = store.Lock(ctx, "studio:inflight:u1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	released, err := store.Unlock(ctx, "studio:inflight:u1", token)
	require.NoError(t, err)
	assert.True(t, released)

	_, ok, err = store.Lock(ctx, "studio:inflight:u1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnlockAfterExpiryKeepsNewOwner(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	stale, ok, err := store.Lock(ctx, "studio:inflight:u1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	current, ok, err := store.Lock(ctx, "studio:inflight:u1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := store.Unlock(ctx, "studio:inflight:u1", stale)
	require.NoError(t, err)
	assert.False(t, released)

	value, err := mr.Get("studio:inflight:u1")
	require.NoError(t, err)
	assert.Equal(t, current, value)
}

func TestClaimReportsRemainingTTL(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ok, _, err := store.Claim(ctx, "bonus:u1", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	ok, remaining, err := store.Claim(ctx, "bonus:u1", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Hour, remaining)
}

func TestRemoveMember(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	added, err := store.AddMember(ctx, "likes:p1", "u1")
	require.NoError(t, err)
	require.True(t, added)

	require.NoError(t, store.RemoveMember(ctx, "likes:p1", "u1"))

	member, err := store.IsMember(ctx, "likes:p1", "u1")
	require.NoError(t, err)
	assert.False(t, member)

	added, err = store.AddMember(ctx, "likes:p1", "u1")
	require.NoError(t, err)
	assert.True(t, added)
}
