package index

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInsertAndLookup(t *testing.T) {
	s := New("")

	require.NoError(t, s.Insert(Entry{Hash: "xxh64:aa", DstPath: "2024/06/a.jpg", Size: 100}))

	e, ok := s.Lookup("xxh64:aa")
	require.True(t, ok)
	assert.Equal(t, "2024/06/a.jpg", e.DstPath)
	assert.False(t, e.FirstSeen.IsZero())

	_, ok = s.Lookup("xxh64:bb")
	assert.False(t, ok)
}

func TestInsertSameMappingIdempotent(t *testing.T) {
	s := New("")

	require.NoError(t, s.Insert(Entry{Hash: "xxh64:aa", DstPath: "a.jpg", Size: 100}))
	require.NoError(t, s.Insert(Entry{Hash: "xxh64:aa", DstPath: "a.jpg", Size: 100}))
	assert.Equal(t, 1, s.Len())
}

func TestInsertConflictKeepsFirstEntry(t *testing.T) {
	s := New("")

	require.NoError(t, s.Insert(Entry{Hash: "xxh64:aa", DstPath: "a.jpg", Size: 100}))
	err := s.Insert(Entry{Hash: "xxh64:aa", DstPath: "elsewhere/b.jpg", Size: 100})
	assert.ErrorIs(t, err, ErrHashExists)

	// The original mapping survives: one entry per hash, always.
	e, ok := s.Lookup("xxh64:aa")
	require.True(t, ok)
	assert.Equal(t, "a.jpg", e.DstPath)
	assert.Equal(t, 1, s.Len())
}

func TestByDst(t *testing.T) {
	s := New("")
	require.NoError(t, s.Insert(Entry{Hash: "xxh64:aa", DstPath: "2024/a.jpg", Size: 1}))

	e, ok := s.ByDst("2024/a.jpg")
	require.True(t, ok)
	assert.Equal(t, "xxh64:aa", e.Hash)

	_, ok = s.ByDst("2024/missing.jpg")
	assert.False(t, ok)
}

func TestAddAlias(t *testing.T) {
	s := New("")
	require.NoError(t, s.Insert(Entry{Hash: "xxh64:aa", DstPath: "a.jpg", Size: 1}))

	assert.True(t, s.AddAlias("xxh64:aa", "copy of a.jpg"))
	assert.True(t, s.AddAlias("xxh64:aa", "copy of a.jpg")) // deduped
	assert.False(t, s.AddAlias("xxh64:zz", "nope"))

	e, _ := s.Lookup("xxh64:aa")
	assert.Equal(t, []string{"copy of a.jpg"}, e.Aliases)
}

func TestRemove(t *testing.T) {
	s := New("")
	require.NoError(t, s.Insert(Entry{Hash: "xxh64:aa", DstPath: "a.jpg", Size: 1}))

	assert.True(t, s.Remove("xxh64:aa"))
	assert.False(t, s.Remove("xxh64:aa"))
	_, ok := s.ByDst("a.jpg")
	assert.False(t, ok)
}

func TestPersistAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.json")

	s := New(path)
	require.NoError(t, s.Insert(Entry{Hash: "xxh64:aa", DstPath: "2024/a.jpg", Size: 100, SrcPath: "/photos/a.jpg"}))
	require.NoError(t, s.Insert(Entry{Hash: "xxh64:bb", DstPath: "2024/b.jpg", Size: 200}))
	s.AddAlias("xxh64:aa", "dup.jpg")
	s.CachePut("/photos/a.jpg", 100, time.Unix(1700000000, 42), "xxh64:aa")
	require.NoError(t, s.Persist())

	loaded := LoadOrNew(path, discardLogger())
	assert.Equal(t, 2, loaded.Len())

	e, ok := loaded.Lookup("xxh64:aa")
	require.True(t, ok)
	assert.Equal(t, "2024/a.jpg", e.DstPath)
	assert.Equal(t, []string{"dup.jpg"}, e.Aliases)

	h, ok := loaded.CacheGet("/photos/a.jpg", 100, time.Unix(1700000000, 42))
	require.True(t, ok)
	assert.Equal(t, "xxh64:aa", h)

	// byDst map is rebuilt on load.
	_, ok = loaded.ByDst("2024/b.jpg")
	assert.True(t, ok)
}

func TestLoadMissingFile(t *testing.T) {
	s := LoadOrNew(filepath.Join(t.TempDir(), "absent.json"), discardLogger())
	assert.Equal(t, 0, s.Len())
}

func TestLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	s := LoadOrNew(path, discardLogger())
	assert.Equal(t, 0, s.Len())

	// The broken file is moved aside, not silently destroyed.
	_, err := os.Stat(path + ".corrupt")
	assert.NoError(t, err)
}

func TestPersistNoopWhenClean(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.json")

	s := New(path)
	require.NoError(t, s.Persist())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestHeal(t *testing.T) {
	dst := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dst, "2024"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "2024", "good.jpg"), []byte("good bytes"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "2024", "shrunk.jpg"), []byte("x"), 0644))

	s := New("")
	require.NoError(t, s.Insert(Entry{Hash: "xxh64:aa", DstPath: "2024/good.jpg", Size: int64(len("good bytes"))}))
	require.NoError(t, s.Insert(Entry{Hash: "xxh64:bb", DstPath: "2024/shrunk.jpg", Size: 9999}))
	require.NoError(t, s.Insert(Entry{Hash: "xxh64:cc", DstPath: "2024/gone.jpg", Size: 10}))

	dropped := s.Heal(dst)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, 1, s.Len())

	_, ok := s.Lookup("xxh64:aa")
	assert.True(t, ok)
}

func TestCacheInvalidation(t *testing.T) {
	s := New("")
	mtime := time.Unix(1700000000, 0)
	s.CachePut("/photos/a.jpg", 100, mtime, "xxh64:aa")

	_, ok := s.CacheGet("/photos/a.jpg", 100, mtime)
	assert.True(t, ok)

	// Size change invalidates.
	_, ok = s.CacheGet("/photos/a.jpg", 101, mtime)
	assert.False(t, ok)

	// mtime change invalidates.
	_, ok = s.CacheGet("/photos/a.jpg", 100, mtime.Add(time.Second))
	assert.False(t, ok)

	// Unknown path misses.
	_, ok = s.CacheGet("/photos/b.jpg", 100, mtime)
	assert.False(t, ok)
}

func TestEntriesSorted(t *testing.T) {
	s := New("")
	require.NoError(t, s.Insert(Entry{Hash: "xxh64:bb", DstPath: "b.jpg", Size: 1}))
	require.NoError(t, s.Insert(Entry{Hash: "xxh64:aa", DstPath: "a.jpg", Size: 1}))
	require.NoError(t, s.Insert(Entry{Hash: "xxh64:cc", DstPath: "c.jpg", Size: 1}))

	got := s.Entries()
	require.Len(t, got, 3)
	assert.Equal(t, "a.jpg", got[0].DstPath)
	assert.Equal(t, "b.jpg", got[1].DstPath)
	assert.Equal(t, "c.jpg", got[2].DstPath)
}
