// Package scanner walks a photo tree in deterministic lexicographic
// order, so repeated runs over an unchanged tree visit files in the
// same sequence.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"photosync/internal/filter"
	"photosync/internal/stats"
)

// FileDesc describes one candidate source file. Seq is the position
// in scan order, starting at 1; when two files carry identical
// content, the lower Seq becomes the canonical copy.
type FileDesc struct {
	Path    string // absolute
	RelPath string // slash-separated, relative to the scan root
	Size    int64
	ModTime time.Time
	Seq     int64
}

// Config controls a walk.
type Config struct {
	Root   string
	Filter *filter.Chain    // nil accepts everything
	Stats  *stats.Collector // nil disables walk accounting
	Buffer int              // descriptor channel capacity
}

// Scanner emits FileDescs through a bounded channel; the walk blocks
// when the channel is full, so memory stays bounded on huge trees.
type Scanner struct {
	cfg   Config
	descs chan FileDesc
	errs  chan error
}

// New creates a scanner with the given config.
func New(cfg Config) *Scanner {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	return &Scanner{
		cfg:   cfg,
		descs: make(chan FileDesc, cfg.Buffer),
		errs:  make(chan error, cfg.Buffer),
	}
}

// Scan starts the walk and returns the descriptor and error channels.
// The caller must consume from both until they close. Unreadable
// entries surface on the error channel and never abort the walk;
// symlinks and other non-regular entries are ignored.
func (s *Scanner) Scan(ctx context.Context) (<-chan FileDesc, <-chan error) {
	go func() {
		defer close(s.descs)
		defer close(s.errs)
		s.walk(ctx)
		if s.cfg.Stats != nil && ctx.Err() == nil {
			s.cfg.Stats.SetWalkDone()
		}
	}()

	return s.descs, s.errs
}

func (s *Scanner) walk(ctx context.Context) {
	var seq int64

	_ = filepath.WalkDir(s.cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return filepath.SkipAll
		}

		if err != nil {
			s.sendErr(ctx, fmt.Errorf("scan %s: %w", path, err))
			return nil
		}

		rel, rerr := filepath.Rel(s.cfg.Root, path)
		if rerr != nil {
			s.sendErr(ctx, fmt.Errorf("scan %s: %w", path, rerr))
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if path == s.cfg.Root {
				return nil
			}
			if s.cfg.Filter != nil && !s.cfg.Filter.Match(rel, true, 0) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, ierr := d.Info()
		if ierr != nil {
			// Raced with a deletion; report and move on.
			s.sendErr(ctx, fmt.Errorf("stat %s: %w", path, ierr))
			return nil
		}

		if s.cfg.Filter != nil && !s.cfg.Filter.Match(rel, false, info.Size()) {
			if s.cfg.Stats != nil {
				s.cfg.Stats.AddFilesFiltered(1)
			}
			return nil
		}

		seq++
		if s.cfg.Stats != nil {
			s.cfg.Stats.AddFilesScanned(1)
			s.cfg.Stats.AddFilesTotal(1)
			s.cfg.Stats.AddBytesTotal(info.Size())
		}

		desc := FileDesc{
			Path:    path,
			RelPath: rel,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Seq:     seq,
		}
		select {
		case s.descs <- desc:
			return nil
		case <-ctx.Done():
			return filepath.SkipAll
		}
	})
}

func (s *Scanner) sendErr(ctx context.Context, err error) {
	select {
	case s.errs <- err:
	case <-ctx.Done():
	}
}
