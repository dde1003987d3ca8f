package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduweave/eduweave/core/session"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.GetItem(ctx, session.UserKey)
	assert.ErrorIs(t, err, session.ErrItemNotFound)

	require.NoError(t, s.SetItem(ctx, session.UserKey, `{"id":"u1"}`))
	got, err := s.GetItem(ctx, session.UserKey)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"u1"}`, got)

	require.NoError(t, s.RemoveItem(ctx, session.UserKey))
	_, err = s.GetItem(ctx, session.UserKey)
	assert.ErrorIs(t, err, session.ErrItemNotFound)
}
