package burrow

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvCloseIdempotent(t *testing.T) {
	env, err := NewEnv()
	require.NoError(t, err)
	require.NoError(t, env.Close())
	require.NoError(t, env.Close())

	_, err = env.CreateDb()
	require.Equal(t, ErrNotInitialized, Code(err))
}

func TestEnvHeapPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.heap")
	env, err := NewEnv(WithHeapPath(path))
	require.NoError(t, err)
	defer env.Close()

	db, err := env.CreateDb()
	require.NoError(t, err)
	insert(t, db, "k", "a value big enough to land in the heap file")

	c := db.NewCursor(nil)
	defer c.Close()
	requireAt(t, c, CursorFirst, "k", "a value big enough to land in the heap file")

	// the heap file exists at the configured path
	require.FileExists(t, path)
}

func TestEnvCollectors(t *testing.T) {
	env := newTestEnv(t)
	require.NotEmpty(t, env.Collectors())
	require.Same(t, env.Metrics().CursorCouples, env.Collectors()[0])
}

func TestEnvBegin(t *testing.T) {
	env := newTestEnv(t)
	t1 := env.Begin()
	t2 := env.Begin()
	require.Less(t, t1.ID(), t2.ID())
}

func TestVersionString(t *testing.T) {
	require.Contains(t, Version(), "burrow")
}
