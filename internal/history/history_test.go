package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T, path string, limit int) *Store {
	t.Helper()
	s, err := Open(path, limit)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func lines(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Line
	}
	return out
}

func TestAddAndRecent(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, filepath.Join(t.TempDir(), "h.db"), 0)

	for _, l := range []string{"x = 1", "print(x)", "x + 1"} {
		require.NoError(t, s.Add(ctx, l))
	}

	entries, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"print(x)", "x + 1"}, lines(entries))
	assert.Equal(t, s.Session(), entries[0].Session)
	assert.False(t, entries[0].CreatedAt.IsZero())
}

func TestSessionIsUUID(t *testing.T) {
	s := openTemp(t, ":memory:", 0)
	_, err := uuid.Parse(s.Session())
	assert.NoError(t, err)
}

func TestLimitTrimsOldest(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, filepath.Join(t.TempDir(), "h.db"), 3)

	for _, l := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, s.Add(ctx, l))
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	entries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d", "e"}, lines(entries))
}

func TestSessionsShareFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "h.db")

	first := openTemp(t, path, 0)
	require.NoError(t, first.Add(ctx, "one"))
	require.NoError(t, first.Close())

	second := openTemp(t, path, 0)
	require.NoError(t, second.Add(ctx, "two"))
	assert.NotEqual(t, first.Session(), second.Session())

	all, err := second.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, lines(all))

	mine, err := second.SessionEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"two"}, lines(mine))
}
