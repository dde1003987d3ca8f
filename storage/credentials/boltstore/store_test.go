package boltstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduweave/eduweave/core/session"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "creds.db")

	s, err := Open(path)
	require.NoError(t, err)

	_, err = s.GetItem(ctx, session.TokenKey)
	assert.ErrorIs(t, err, session.ErrItemNotFound)

	require.NoError(t, s.SetItem(ctx, session.TokenKey, "tok"))
	got, err := s.GetItem(ctx, session.TokenKey)
	require.NoError(t, err)
	assert.Equal(t, "tok", got)

	// survives a restart
	require.NoError(t, s.Close())
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err = s.GetItem(ctx, session.TokenKey)
	require.NoError(t, err)
	assert.Equal(t, "tok", got)

	require.NoError(t, s.RemoveItem(ctx, session.TokenKey))
	require.NoError(t, s.RemoveItem(ctx, session.TokenKey), "removing a missing key is not an error")
	_, err = s.GetItem(ctx, session.TokenKey)
	assert.ErrorIs(t, err, session.ErrItemNotFound)
}
