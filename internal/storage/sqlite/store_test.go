package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a SQLite store in a temporary directory.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(filepath.Join(t.TempDir(), "data", "scopemap.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})
	return store
}

func TestNewStore(t *testing.T) {
	_, err := NewStore("")
	assert.Error(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "scopemap.db")

	store, err := NewStore(path)
	require.NoError(t, err)
	assert.Equal(t, path, store.Path())
	require.NoError(t, store.Close())

	// Reopening must not re-run applied migrations
	store, err = NewStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestPendingBreakpoints(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	url := "http://example.com/src/app.js"

	require.NoError(t, store.Save(ctx, PendingBreakpoint{URL: url, Line: 10, Column: 2}))
	require.NoError(t, store.Save(ctx, PendingBreakpoint{URL: url, Line: 3, Condition: "x > 1"}))
	require.NoError(t, store.Save(ctx, PendingBreakpoint{URL: "http://example.com/other.js", Line: 1}))

	list, err := store.ListByURL(ctx, url)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 3, list[0].Line)
	assert.Equal(t, "x > 1", list[0].Condition)
	assert.Equal(t, 10, list[1].Line)
	assert.Equal(t, 2, list[1].Column)
	assert.WithinDuration(t, time.Now(), list[1].UpdatedAt, time.Minute)

	t.Run("upsert", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, PendingBreakpoint{URL: url, Line: 3, Disabled: true}))

		list, err := store.ListByURL(ctx, url)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.True(t, list[0].Disabled)
		assert.Empty(t, list[0].Condition)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, url, 10, 2))
		require.NoError(t, store.Delete(ctx, url, 99, 0))

		list, err := store.ListByURL(ctx, url)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, 3, list[0].Line)
	})

	t.Run("missing url", func(t *testing.T) {
		assert.Error(t, store.Save(ctx, PendingBreakpoint{Line: 1}))

		list, err := store.ListByURL(ctx, "http://nowhere/")
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}
