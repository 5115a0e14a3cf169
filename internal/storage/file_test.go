package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSetGetDelete(t *testing.T) {
	ctx := context.Background()
	f, err := NewFile(t.TempDir())
	require.NoError(t, err)

	_, err = f.Get(ctx, "state/abc")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, f.Set(ctx, "state/abc", []byte(`{"energyLevel":5}`)))
	got, err := f.Get(ctx, "state/abc")
	require.NoError(t, err)
	assert.Equal(t, `{"energyLevel":5}`, string(got))

	require.NoError(t, f.Set(ctx, "state/abc", []byte(`{"energyLevel":3}`)))
	got, err = f.Get(ctx, "state/abc")
	require.NoError(t, err)
	assert.Equal(t, `{"energyLevel":3}`, string(got))

	require.NoError(t, f.Delete(ctx, "state/abc"))
	_, err = f.Get(ctx, "state/abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileDeleteMissingIsNoop(t *testing.T) {
	f, err := NewFile(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, f.Delete(context.Background(), "state/never-saved"))
}

func TestFileKeysStayInsideDataDir(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	require.NoError(t, err)

	require.NoError(t, f.Set(context.Background(), "state/../escape", []byte("x")))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state_.._escape.json", entries[0].Name())
}

func TestFileLeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, f.Set(context.Background(), "profile/s", []byte("{}")))
	}
	matches, err := filepath.Glob(filepath.Join(dir, ".tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMemorySetGetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Set(ctx, "k", []byte("v1")))
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got))

	// The stored copy must not alias the caller's slice.
	got[0] = 'X'
	again, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(again))

	require.NoError(t, m.Delete(ctx, "k"))
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}
