package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photosync/internal/filter"
	"photosync/internal/stats"
)

func collect(t *testing.T, s *Scanner) ([]FileDesc, []error) {
	t.Helper()
	descs, errs := s.Scan(context.Background())

	var descList []FileDesc
	done := make(chan struct{})
	go func() {
		for d := range descs {
			descList = append(descList, d)
		}
		close(done)
	}()

	var errList []error
	for err := range errs {
		errList = append(errList, err)
	}
	<-done
	return descList, errList
}

func TestScanFlatDir(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.jpg"), []byte("A"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "b.jpg"), []byte("B"), 0644))

	descs, errs := collect(t, New(Config{Root: src}))
	require.Empty(t, errs)
	require.Len(t, descs, 2)

	// Lexicographic order with gapless sequence numbers.
	assert.Equal(t, "a.jpg", descs[0].RelPath)
	assert.Equal(t, "b.jpg", descs[1].RelPath)
	assert.Equal(t, int64(1), descs[0].Seq)
	assert.Equal(t, int64(2), descs[1].Seq)
}

func TestScanDeterministicOrder(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "2023"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "2024"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "2023", "x.jpg"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "2024", "y.jpg"), []byte("y"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "zz.jpg"), []byte("z"), 0644))

	first, errs := collect(t, New(Config{Root: src}))
	require.Empty(t, errs)
	second, errs := collect(t, New(Config{Root: src}))
	require.Empty(t, errs)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].RelPath, second[i].RelPath)
		assert.Equal(t, first[i].Seq, second[i].Seq)
	}
}

func TestScanAppliesFilter(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "keep.jpg"), []byte("keep"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "drop.txt"), []byte("drop"), 0644))

	chain := filter.NewChain()
	chain.AllowExts("jpg")

	col := stats.NewCollector()
	descs, errs := collect(t, New(Config{Root: src, Filter: chain, Stats: col}))
	require.Empty(t, errs)
	require.Len(t, descs, 1)
	assert.Equal(t, "keep.jpg", descs[0].RelPath)

	s := col.Snapshot()
	assert.Equal(t, int64(1), s.FilesScanned)
	assert.Equal(t, int64(1), s.FilesFiltered)
	assert.True(t, s.WalkDone)
}

func TestScanSeqSkipsFilteredFiles(t *testing.T) {
	// Filtered files must not consume sequence numbers.
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "b.jpg"), []byte("b"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "c.jpg"), []byte("c"), 0644))

	chain := filter.NewChain()
	chain.AllowExts("jpg")

	descs, errs := collect(t, New(Config{Root: src, Filter: chain}))
	require.Empty(t, errs)
	require.Len(t, descs, 2)
	assert.Equal(t, int64(1), descs[0].Seq)
	assert.Equal(t, int64(2), descs[1].Seq)
}

func TestScanPrunesDirs(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "@eaDir", "deep"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "@eaDir", "deep", "thumb.jpg"), []byte("t"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "real.jpg"), []byte("r"), 0644))

	chain := filter.NewChain()
	chain.SkipDirs("@eaDir")

	descs, errs := collect(t, New(Config{Root: src, Filter: chain}))
	require.Empty(t, errs)
	require.Len(t, descs, 1)
	assert.Equal(t, "real.jpg", descs[0].RelPath)
}

func TestScanIgnoresSymlinks(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "target.jpg"), []byte("target"), 0644))
	require.NoError(t, os.Symlink("target.jpg", filepath.Join(src, "link.jpg")))

	descs, errs := collect(t, New(Config{Root: src}))
	require.Empty(t, errs)
	require.Len(t, descs, 1)
	assert.Equal(t, "target.jpg", descs[0].RelPath)
}

func TestScanPermissionDenied(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("running as root, cannot test permission denied")
	}

	src := t.TempDir()
	forbidden := filepath.Join(src, "forbidden")
	require.NoError(t, os.Mkdir(forbidden, 0000))
	defer func() { _ = os.Chmod(forbidden, 0755) }()
	require.NoError(t, os.WriteFile(filepath.Join(src, "ok.jpg"), []byte("ok"), 0644))

	descs, errs := collect(t, New(Config{Root: src}))

	// The unreadable dir is reported but the walk continues.
	assert.NotEmpty(t, errs)
	require.Len(t, descs, 1)
	assert.Equal(t, "ok.jpg", descs[0].RelPath)
}

func TestScanContextCancel(t *testing.T) {
	src := t.TempDir()
	for i := range 100 {
		require.NoError(t, os.WriteFile(filepath.Join(src, fmt.Sprintf("f%03d.jpg", i)), []byte("data"), 0644))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	descs, errs := New(Config{Root: src, Buffer: 1}).Scan(ctx)
	count := 0
	for range descs {
		count++
	}
	for range errs {
	}

	assert.Less(t, count, 100)
}

func TestScanWalkDoneNotSetOnCancel(t *testing.T) {
	src := t.TempDir()
	for i := range 50 {
		require.NoError(t, os.WriteFile(filepath.Join(src, fmt.Sprintf("f%03d.jpg", i)), []byte("data"), 0644))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	col := stats.NewCollector()
	descs, errs := New(Config{Root: src, Stats: col, Buffer: 1}).Scan(ctx)
	for range descs {
	}
	for range errs {
	}

	assert.False(t, col.Snapshot().WalkDone)
}
