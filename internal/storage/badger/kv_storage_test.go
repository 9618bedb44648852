package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/bidscout/bidscout/internal/interfaces"
)

func TestKVStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewKVStorage(newTestDB(t), arbor.NewLogger())

	require.NoError(t, s.Set(ctx, "portal:cookies", `[{"name":"session"}]`))

	got, err := s.Get(ctx, "portal:cookies")
	require.NoError(t, err)
	assert.Equal(t, `[{"name":"session"}]`, got)

	exists, err := s.Exists(ctx, "portal:cookies")
	require.NoError(t, err)
	assert.True(t, exists)

	// Overwrite in place
	require.NoError(t, s.Set(ctx, "portal:cookies", `[]`))
	got, err = s.Get(ctx, "portal:cookies")
	require.NoError(t, err)
	assert.Equal(t, `[]`, got)

	require.NoError(t, s.Delete(ctx, "portal:cookies"))
	_, err = s.Get(ctx, "portal:cookies")
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
}

func TestKVStorage_MissingKey(t *testing.T) {
	ctx := context.Background()
	s := NewKVStorage(newTestDB(t), arbor.NewLogger())

	_, err := s.Get(ctx, "absent")
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)

	exists, err := s.Exists(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.ErrorIs(t, s.Delete(ctx, "absent"), interfaces.ErrKeyNotFound)
}

func TestKVStorage_ListByPrefix(t *testing.T) {
	ctx := context.Background()
	s := NewKVStorage(newTestDB(t), arbor.NewLogger())

	require.NoError(t, s.Set(ctx, "doc:12345:0", "a"))
	require.NoError(t, s.Set(ctx, "doc:12345:1", "b"))
	require.NoError(t, s.Set(ctx, "doc:67890:0", "c"))
	require.NoError(t, s.Set(ctx, "portal:cookies", "d"))

	keys, err := s.ListByPrefix(ctx, "doc:12345:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"doc:12345:0", "doc:12345:1"}, keys)

	keys, err = s.ListByPrefix(ctx, "doc:")
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}
