package lb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DimaJoyti/contractfabric/pkg/clock"
)

func TestMemorySessionStore_PutGet(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	store := NewMemorySessionStore(c)
	ctx := context.Background()

	sess := Session{Key: "k1", InstanceID: "i1", ContractID: "c1", ExpiresAt: c.Now().Add(10 * time.Second)}
	require.NoError(t, store.Put(ctx, sess))

	got, ok, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "i1", got.InstanceID)
}

func TestMemorySessionStore_ExpiresAfterTTL(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	store := NewMemorySessionStore(c)
	ctx := context.Background()

	sess := Session{Key: "k1", InstanceID: "i1", ContractID: "c1", ExpiresAt: c.Now().Add(5 * time.Second)}
	require.NoError(t, store.Put(ctx, sess))

	c.Advance(6 * time.Second)
	_, ok, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemorySessionStore_Purge(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	store := NewMemorySessionStore(c)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Session{Key: "expired", ExpiresAt: c.Now().Add(-1 * time.Second)}))
	require.NoError(t, store.Put(ctx, Session{Key: "alive", ExpiresAt: c.Now().Add(time.Hour)}))

	removed, err := store.Purge(ctx, c.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok, _ := store.Get(ctx, "alive")
	assert.True(t, ok)
}

func TestMemorySessionStore_Delete(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	store := NewMemorySessionStore(c)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Session{Key: "k1", ExpiresAt: c.Now().Add(time.Hour)}))
	require.NoError(t, store.Delete(ctx, "k1"))

	_, ok, _ := store.Get(ctx, "k1")
	assert.False(t, ok)
}
