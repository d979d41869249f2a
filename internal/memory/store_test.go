package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.json")
	store, err := Open(path, nil)
	require.NoError(t, err)
	return store, path
}

func TestGet_UnknownUserIsEmpty(t *testing.T) {
	t.Parallel()

	store, _ := openTemp(t)
	got := store.Get("nobody")
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAppend_EvictsOldestFirst(t *testing.T) {
	t.Parallel()

	store, _ := openTemp(t)
	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, store.Append("u1", p, 2))
	}
	assert.Equal(t, []string{"b", "c"}, store.Get("u1"))
}

func TestAppend_LengthIsMinOfCountAndCap(t *testing.T) {
	t.Parallel()

	const limit = 5
	store, _ := openTemp(t)
	var all []string
	for n := 1; n <= 12; n++ {
		prompt := fmt.Sprintf("prompt-%d", n)
		all = append(all, prompt)
		require.NoError(t, store.Append("u1", prompt, limit))

		got := store.Get("u1")
		want := all
		if len(want) > limit {
			want = want[len(want)-limit:]
		}
		require.Len(t, got, min(n, limit))
		require.Equal(t, want, got)
	}
}

func TestAppend_NonPositiveCapKeepsLatest(t *testing.T) {
	t.Parallel()

	store, _ := openTemp(t)
	require.NoError(t, store.Append("u1", "a", 0))
	require.NoError(t, store.Append("u1", "b", -3))
	assert.Equal(t, []string{"b"}, store.Get("u1"))
}

func TestAppend_PersistsAndReloads(t *testing.T) {
	t.Parallel()

	store, path := openTemp(t)
	require.NoError(t, store.Append("alice", "hello", 10))
	require.NoError(t, store.Append("alice", "again", 10))
	require.NoError(t, store.Append("bob", "hi", 10))

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "again"}, reopened.Get("alice"))
	assert.Equal(t, []string{"hi"}, reopened.Get("bob"))
	assert.Equal(t, []string{"alice", "bob"}, reopened.Users())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string][]string
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, map[string][]string{
		"alice": {"hello", "again"},
		"bob":   {"hi"},
	}, onDisk)
}

func TestAppend_LeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	store, path := openTemp(t)
	require.NoError(t, store.Append("u1", "a", 3))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "memory.json", entries[0].Name())
}

func TestAppend_CreatesParentDirectories(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "memory.json")
	store, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.Append("u1", "a", 3))
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_CorruptFileIsStorageError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "memory.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Open(path, nil)
	require.Error(t, err)
	var serr *StorageError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "load", serr.Op)
	assert.Equal(t, path, serr.Path)
}

func TestOpen_EmptyFileIsEmptyHistory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "memory.json")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o644))

	store, err := Open(path, nil)
	require.NoError(t, err)
	assert.Empty(t, store.Users())
}

func TestAppend_UnwritablePathIsStorageError(t *testing.T) {
	t.Parallel()

	store, path := openTemp(t)
	// A directory sitting at the target path makes the final rename fail.
	require.NoError(t, os.Mkdir(path, 0o755))

	err := store.Append("u1", "a", 3)
	var serr *StorageError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "save", serr.Op)
}

func TestFailedSaveLeavesHistoryUnchanged(t *testing.T) {
	t.Parallel()

	store, path := openTemp(t)
	require.NoError(t, store.Append("u1", "first", 3))
	require.NoError(t, store.Append("u2", "other", 3))

	// Swap the file for a directory so every later write fails.
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0o755))

	assert.Error(t, store.Append("u1", "second", 3))
	assert.Equal(t, []string{"first"}, store.Get("u1"))
	assert.Error(t, store.Append("u3", "new", 3))
	assert.Empty(t, store.Get("u3"))
	assert.Equal(t, []string{"u1", "u2"}, store.Users())

	assert.Error(t, store.Clear("u2"))
	assert.Equal(t, []string{"other"}, store.Get("u2"))
}

func TestWritable(t *testing.T) {
	t.Parallel()

	store, _ := openTemp(t)
	assert.NoError(t, store.Writable())

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	broken := &Store{path: filepath.Join(blocker, "memory.json"), history: History{}}
	assert.Error(t, broken.Writable())
}

func TestClear_RemovesUser(t *testing.T) {
	t.Parallel()

	store, path := openTemp(t)
	require.NoError(t, store.Append("u1", "a", 3))
	require.NoError(t, store.Append("u2", "b", 3))
	require.NoError(t, store.Clear("u1"))
	require.NoError(t, store.Clear("missing"))

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, reopened.Users())
}

func TestGet_ReturnsCopy(t *testing.T) {
	t.Parallel()

	store, _ := openTemp(t)
	require.NoError(t, store.Append("u1", "a", 3))
	got := store.Get("u1")
	got[0] = "mutated"
	assert.Equal(t, []string{"a"}, store.Get("u1"))
}

func TestAppend_ConcurrentUsers(t *testing.T) {
	t.Parallel()

	store, path := openTemp(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i)
			for j := 0; j < 5; j++ {
				assert.NoError(t, store.Append(user, fmt.Sprintf("p%d", j), 3))
			}
		}(i)
	}
	wg.Wait()

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	require.Len(t, reopened.Users(), 8)
	for _, user := range reopened.Users() {
		assert.Equal(t, []string{"p2", "p3", "p4"}, reopened.Get(user))
	}
}
