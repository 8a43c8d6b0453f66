package engine

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"photosync/internal/filter"
	"photosync/internal/index"
	"photosync/internal/scanner"
)

const tmpSuffix = ".psync-tmp"

// adoptCand is a destination file observed during re-index.
type adoptCand struct {
	seq   int64
	rel   string
	size  int64
	mtime time.Time
	hash  string
}

// reindex walks the destination and adopts any stored content the
// index does not know about, closing the crash window between a
// rename and its index insert. Known files whose stat matches their
// entry cost one map lookup; unknown files are hashed through the
// cache. Adoption runs in scan order so ties between equal-content
// destination files settle the same way every run.
func (r *run) reindex(ctx context.Context) (int, error) {
	chain := filter.Default()
	for _, dir := range r.excludeUnder {
		// Anchor at the root so an unlucky basename elsewhere in the
		// tree is not pruned with it.
		if err := chain.AddExclude("/" + dir + "/"); err != nil {
			return 0, err
		}
	}

	sc := scanner.New(scanner.Config{Root: r.cfg.Dst, Filter: chain, Buffer: 256})
	descs, scanErrs := sc.Scan(ctx)

	var (
		mu    sync.Mutex
		cands []adoptCand
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.HashWorkers)

	go func() {
		for err := range scanErrs {
			r.log.Warn("reindex walk", slog.Any("error", err))
		}
	}()

	for desc := range descs {
		rel := desc.RelPath
		if e, ok := r.idx.ByDst(rel); ok && !r.cfg.NoCache && e.Size == desc.Size {
			continue // already indexed
		}

		g.Go(func() error {
			hash, err := r.hashCached(gctx, desc.Path, desc.Size, desc.ModTime)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				r.log.Warn("reindex hash", slog.String("path", desc.Path), slog.Any("error", err))
				return nil
			}
			mu.Lock()
			cands = append(cands, adoptCand{
				seq:   desc.Seq,
				rel:   rel,
				size:  desc.Size,
				mtime: desc.ModTime,
				hash:  hash,
			})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}

	sort.Slice(cands, func(i, j int) bool { return cands[i].seq < cands[j].seq })

	adopted := 0
	for _, c := range cands {
		if e, ok := r.idx.ByDst(c.rel); ok {
			if e.Hash == c.hash {
				continue // re-verified, already indexed
			}
			// The destination file changed in place; retire the entry
			// so the fresh content can claim the name.
			r.idx.Remove(e.Hash)
		}
		err := r.idx.Insert(index.Entry{Hash: c.hash, DstPath: c.rel, Size: c.size})
		switch {
		case err == nil:
			adopted++
		case errors.Is(err, index.ErrHashExists):
			// Duplicate content already materialized on disk; remember
			// the extra name.
			if r.idx.AddAlias(c.hash, c.rel) {
				adopted++
			}
		default:
			r.log.Warn("reindex insert", slog.String("path", c.rel), slog.Any("error", err))
		}
	}

	if adopted > 0 {
		r.st.AddFilesReindexed(int64(adopted))
	}
	return adopted, nil
}

// sweepTmps removes temp files a previous interrupted run left in the
// destination tree.
func sweepTmps(root string) int {
	removed := 0
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), tmpSuffix) {
			return nil
		}
		if os.Remove(p) == nil {
			removed++
		}
		return nil
	})
	return removed
}
