package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduweave/eduweave/core"
	"github.com/eduweave/eduweave/core/session"
)

func TestOpen_unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Open(ctx, core.CredentialsConfig{RedisAddress: "127.0.0.1:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connecting to redis at 127.0.0.1:1")
}

// TestStore runs against the server at $REDIS_TEST_ADDRESS.
func TestStore(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDRESS not set")
	}
	ctx := context.Background()

	store, err := Open(ctx, core.CredentialsConfig{RedisAddress: addr, RedisPrefix: "eduweave-test:"})
	require.NoError(t, err)
	defer store.Close()
	t.Cleanup(func() { _ = store.RemoveItem(ctx, session.TokenKey) })

	_, err = store.GetItem(ctx, session.TokenKey)
	assert.ErrorIs(t, err, session.ErrItemNotFound)

	require.NoError(t, store.SetItem(ctx, session.TokenKey, "tok"))
	got, err := store.GetItem(ctx, session.TokenKey)
	require.NoError(t, err)
	assert.Equal(t, "tok", got)

	raw, err := store.client.Get(ctx, "eduweave-test:"+session.TokenKey).Result()
	require.NoError(t, err)
	assert.Equal(t, "tok", raw)

	require.NoError(t, store.RemoveItem(ctx, session.TokenKey))
	_, err = store.GetItem(ctx, session.TokenKey)
	assert.ErrorIs(t, err, session.ErrItemNotFound)
}
