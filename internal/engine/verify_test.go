package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photosync/internal/event"
	"photosync/internal/hasher"
	"photosync/internal/index"
)

func seedEntry(t *testing.T, idx *index.Store, dst, rel, content string) {
	t.Helper()
	writeFile(t, dst, rel, content)
	h, n, err := hasher.New(hasher.XXH64).HashFile(context.Background(), filepath.Join(dst, filepath.FromSlash(rel)))
	require.NoError(t, err)
	require.NoError(t, idx.Insert(index.Entry{Hash: h, DstPath: rel, Size: n}))
}

func newTestIndex(t *testing.T) *index.Store {
	t.Helper()
	return index.New(filepath.Join(t.TempDir(), "index.json"))
}

func TestVerifyCleanIndex(t *testing.T) {
	dst := t.TempDir()
	idx := newTestIndex(t)
	seedEntry(t, idx, dst, "2024/a.jpg", "alpha")
	seedEntry(t, idx, dst, "2024/b.jpg", "bravo")

	res := Verify(context.Background(), VerifyConfig{Index: idx, DstRoot: dst})
	assert.Equal(t, int64(2), res.Checked)
	assert.Equal(t, int64(0), res.Failed)
	assert.Empty(t, res.Errors)
}

func TestVerifyDetectsCorruption(t *testing.T) {
	dst := t.TempDir()
	idx := newTestIndex(t)
	seedEntry(t, idx, dst, "a.jpg", "alpha")
	require.NoError(t, os.WriteFile(filepath.Join(dst, "a.jpg"), []byte("rotte"), 0o644))

	res := Verify(context.Background(), VerifyConfig{Index: idx, DstRoot: dst})
	assert.Equal(t, int64(1), res.Checked)
	assert.Equal(t, int64(1), res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "a.jpg", res.Errors[0].DstPath)
	assert.NotEqual(t, res.Errors[0].Want, res.Errors[0].Got)
}

func TestVerifyReportsMissing(t *testing.T) {
	dst := t.TempDir()
	idx := newTestIndex(t)
	require.NoError(t, idx.Insert(index.Entry{Hash: "xxh64:feedfacefeedface", DstPath: "gone.jpg", Size: 5}))

	res := Verify(context.Background(), VerifyConfig{Index: idx, DstRoot: dst})
	assert.Equal(t, int64(0), res.Checked)
	assert.Equal(t, int64(1), res.Failed)
	assert.Equal(t, int64(1), res.Missing)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "missing", res.Errors[0].Got)
}

func TestVerifyUnknownAlgorithm(t *testing.T) {
	dst := t.TempDir()
	idx := newTestIndex(t)
	writeFile(t, dst, "a.jpg", "alpha")
	require.NoError(t, idx.Insert(index.Entry{Hash: "md5:0a1b2c", DstPath: "a.jpg", Size: 5}))

	res := Verify(context.Background(), VerifyConfig{Index: idx, DstRoot: dst})
	assert.Equal(t, int64(1), res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "unknown algorithm", res.Errors[0].Got)
}

func TestVerifyMixedAlgorithms(t *testing.T) {
	dst := t.TempDir()
	idx := newTestIndex(t)
	seedEntry(t, idx, dst, "old.jpg", "alpha")

	writeFile(t, dst, "new.jpg", "bravo")
	h, n, err := hasher.New(hasher.BLAKE3).HashFile(context.Background(), filepath.Join(dst, "new.jpg"))
	require.NoError(t, err)
	require.NoError(t, idx.Insert(index.Entry{Hash: h, DstPath: "new.jpg", Size: n}))

	res := Verify(context.Background(), VerifyConfig{Index: idx, DstRoot: dst})
	assert.Equal(t, int64(2), res.Checked)
	assert.Equal(t, int64(0), res.Failed, "each entry must be verified with its own algorithm")
}

func TestVerifyEmitsEvents(t *testing.T) {
	dst := t.TempDir()
	idx := newTestIndex(t)
	seedEntry(t, idx, dst, "ok.jpg", "alpha")
	require.NoError(t, idx.Insert(index.Entry{Hash: "xxh64:feedfacefeedface", DstPath: "gone.jpg", Size: 5}))

	events := make(chan event.Event, 16)
	Verify(context.Background(), VerifyConfig{Index: idx, DstRoot: dst, Events: events})

	counts := make(map[event.Type]int)
	for {
		select {
		case e := <-events:
			counts[e.Type]++
			continue
		default:
		}
		break
	}
	assert.Equal(t, 1, counts[event.VerifyStarted])
	assert.Equal(t, 1, counts[event.VerifyOK])
	assert.Equal(t, 1, counts[event.VerifyFailed])
}
