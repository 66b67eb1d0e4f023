package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/cheerfeed/internal/testutil"
)

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := store.Get(ctx, KeyMainUserName)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, KeyMainUserName, "Mika"))
	require.NoError(t, store.Set(ctx, KeyDailyCallCount, "3"))

	v, ok, err := store.Get(ctx, KeyMainUserName)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Mika", v)

	require.NoError(t, store.Set(ctx, KeyMainUserName, "Rin"))
	v, _, err = store.Get(ctx, KeyMainUserName)
	require.NoError(t, err)
	require.Equal(t, "Rin", v)

	require.NoError(t, store.Delete(ctx, KeyMainUserName))
	_, ok, err = store.Get(ctx, KeyMainUserName)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Delete(ctx, "missing"))

	v, ok, err = store.Get(ctx, KeyDailyCallCount)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "3", v)
}

// plainStore hides the Batcher methods of the wrapped store.
type plainStore struct{ Store }

func TestSetMany(t *testing.T) {
	ctx := context.Background()
	values := map[string]string{KeyDailyCallCount: "4", KeyLastCallDate: "2026-03-01"}

	file, err := OpenFile(filepath.Join(t.TempDir(), "cheerfeed.json"))
	require.NoError(t, err)

	for name, store := range map[string]Store{
		"memory":   NewMemory(),
		"file":     file,
		"fallback": plainStore{NewMemory()},
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, SetMany(ctx, store, values))
			for key, want := range values {
				v, ok, err := store.Get(ctx, key)
				require.NoError(t, err)
				require.True(t, ok)
				require.Equal(t, want, v)
			}
		})
	}

	closed := NewMemory()
	require.NoError(t, closed.Close())
	require.ErrorIs(t, SetMany(ctx, closed, values), ErrClosed)
}

func TestMemory(t *testing.T) {
	store := NewMemory()
	exerciseStore(t, store)
	require.Equal(t, []string{KeyDailyCallCount}, store.Keys())

	require.NoError(t, store.Close())
	require.ErrorIs(t, store.Set(context.Background(), "k", "v"), ErrClosed)
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "cheerfeed.json")
	store, err := OpenFile(path)
	require.NoError(t, err)
	exerciseStore(t, store)

	reopened, err := OpenFile(path)
	require.NoError(t, err)
	v, ok, err := reopened.Get(context.Background(), KeyDailyCallCount)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "3", v)

	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err), "temp file should be renamed away")
}

func TestFileToleratesMalformedDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cheerfeed.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store, err := OpenFile(path)
	require.NoError(t, err)

	_, ok, err := store.Get(context.Background(), KeyLastCallDate)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(context.Background(), KeyLastCallDate, "2026-01-02"))
	v, ok, err := store.Get(context.Background(), KeyLastCallDate)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2026-01-02", v)
}

func TestFileRequiresPath(t *testing.T) {
	_, err := OpenFile("  ")
	require.Error(t, err)
}

func TestPostgres(t *testing.T) {
	dsn := testutil.PostgresDSN(t)
	ctx := context.Background()
	store, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	defer store.Close()

	for _, key := range []string{KeyMainUserName, KeyDailyCallCount} {
		require.NoError(t, store.Delete(ctx, key))
	}
	exerciseStore(t, store)

	require.NoError(t, store.SetMany(ctx, map[string]string{KeyDailyCallCount: "7", KeyLastCallDate: "2026-03-01"}))
	v, _, err := store.Get(ctx, KeyLastCallDate)
	require.NoError(t, err)
	require.Equal(t, "2026-03-01", v)
}
