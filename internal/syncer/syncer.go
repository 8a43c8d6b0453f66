// Package syncer lands photo bytes in the destination tree: temp file,
// fsync, atomic rename, with collision-stepped names and preserved
// modification times.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"photosync/internal/hasher"
	"photosync/internal/index"
	"photosync/internal/platform"
	"photosync/internal/scanner"
)

// WriteError marks a destination-side failure. Runs abort after too
// many of these in a row, since a streak usually means the destination
// volume is full or gone.
type WriteError struct {
	Op   string
	Path string
	Err  error
}

func (e *WriteError) Error() string { return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// Outcome reports where the bytes landed.
type Outcome struct {
	FinalRel string
	Bytes    int64
	Method   platform.CopyMethod
	Existing bool // identical content was already there; nothing written
}

// Config wires a Syncer.
type Config struct {
	DstRoot string
	Index   *index.Store
	Hash    *hasher.Hasher
	Limiter *rate.Limiter // optional aggregate bandwidth cap
	DryRun  bool
	Log     *slog.Logger
}

// Syncer materializes content in the destination tree. Safe for use
// from multiple workers.
type Syncer struct {
	cfg   Config
	tmps  tmpRegistry
	names nameRegistry
	dirs  dirRegistry
}

func New(cfg Config) *Syncer {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Syncer{cfg: cfg}
}

// Materialize writes the source file's content at rel under the
// destination root, stepping to _1, _2, ... suffixes while the name is
// held by different content. If a candidate name already holds
// identical content nothing is written and the outcome says so.
//
// In dry-run mode the name is chosen and reserved but nothing touches
// the disk.
func (s *Syncer) Materialize(ctx context.Context, desc scanner.FileDesc, rel, hash string) (Outcome, error) {
	for n := 0; ; n++ {
		cand := collide(rel, n)
		if !s.names.claim(cand) {
			continue // another worker is writing this name
		}
		out, done, err := s.tryCandidate(ctx, desc, cand, hash)
		if err != nil {
			s.names.release(cand)
			return out, err
		}
		if done {
			return out, nil
		}
		s.names.release(cand)
	}
}

// Close removes temp files left by interrupted copies.
func (s *Syncer) Close() {
	s.tmps.sweep()
}

// tryCandidate resolves one candidate name: write there if it is free,
// finish early if it already holds our content, or step on.
func (s *Syncer) tryCandidate(ctx context.Context, desc scanner.FileDesc, cand, hash string) (Outcome, bool, error) {
	abs := s.abs(cand)

	fi, err := os.Lstat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		out, err := s.write(ctx, desc, cand)
		return out, true, err
	case err != nil:
		return Outcome{}, true, &WriteError{Op: "stat", Path: abs, Err: err}
	case !fi.Mode().IsRegular():
		return Outcome{}, false, nil
	case fi.Size() == desc.Size:
		got, err := s.contentHash(ctx, abs, fi)
		if err == nil && got == hash {
			return Outcome{FinalRel: cand, Existing: true}, true, nil
		}
		if err != nil {
			s.cfg.Log.Warn("unreadable destination candidate, stepping past",
				slog.String("path", abs), slog.Any("error", err))
		}
		return Outcome{}, false, nil
	default:
		return Outcome{}, false, nil
	}
}

func (s *Syncer) write(ctx context.Context, desc scanner.FileDesc, cand string) (Outcome, error) {
	if s.cfg.DryRun {
		return Outcome{FinalRel: cand, Bytes: desc.Size}, nil
	}

	// The hash was computed from a stat snapshot; refuse to copy a
	// source that changed since, the next run will pick it up fresh.
	if fi, err := os.Stat(desc.Path); err != nil {
		return Outcome{}, fmt.Errorf("stat source %s: %w", desc.Path, err)
	} else if fi.Size() != desc.Size || !fi.ModTime().Equal(desc.ModTime) {
		return Outcome{}, fmt.Errorf("source changed during sync: %s", desc.Path)
	}

	abs := s.abs(cand)
	dir := filepath.Dir(abs)
	if err := s.dirs.ensure(dir); err != nil {
		return Outcome{}, &WriteError{Op: "mkdir", Path: dir, Err: err}
	}

	base := filepath.Base(abs)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.psync-tmp", base, uuid.New().String()[:8]))

	s.tmps.register(tmpPath)
	defer func() {
		s.tmps.deregister(tmpPath)
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	fd, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Outcome{}, &WriteError{Op: "create tmp", Path: tmpPath, Err: err}
	}

	var (
		written int64
		method  platform.CopyMethod
	)
	if desc.Size > 0 {
		written, method, err = s.copyData(ctx, desc, fd)
		if err != nil {
			fd.Close()
			return Outcome{}, s.classify(err, desc, tmpPath)
		}
	}
	if written != desc.Size {
		fd.Close()
		return Outcome{}, fmt.Errorf("short copy %s: wrote %d of %d bytes", desc.Path, written, desc.Size)
	}

	if err := fd.Sync(); err != nil {
		fd.Close()
		return Outcome{}, &WriteError{Op: "fsync", Path: tmpPath, Err: err}
	}
	if err := setTimes(fd, desc.ModTime); err != nil {
		fd.Close()
		return Outcome{}, &WriteError{Op: "set times", Path: tmpPath, Err: err}
	}
	if err := fd.Close(); err != nil {
		return Outcome{}, &WriteError{Op: "close tmp", Path: tmpPath, Err: err}
	}

	if err := os.Rename(tmpPath, abs); err != nil {
		return Outcome{}, &WriteError{Op: "rename", Path: abs, Err: err}
	}

	return Outcome{FinalRel: cand, Bytes: written, Method: method}, nil
}

func (s *Syncer) copyData(ctx context.Context, desc scanner.FileDesc, fd *os.File) (int64, platform.CopyMethod, error) {
	if s.cfg.Limiter != nil {
		n, err := s.copyThrottled(ctx, desc, fd)
		return n, platform.ReadWrite, err
	}
	res, err := platform.CopyFile(platform.CopyFileParams{
		SrcPath: desc.Path,
		DstFd:   fd,
		SrcSize: desc.Size,
	})
	return res.BytesWritten, res.Method, err
}

// copyThrottled streams through the shared limiter instead of using
// kernel-side copy, which cannot be paced.
func (s *Syncer) copyThrottled(ctx context.Context, desc scanner.FileDesc, fd *os.File) (int64, error) {
	src, err := os.Open(desc.Path)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	bufSize := 256 << 10
	if b := s.cfg.Limiter.Burst(); b < bufSize {
		bufSize = b
	}
	r := newRateLimitedReader(ctx, io.LimitReader(src, desc.Size), s.cfg.Limiter)
	return io.CopyBuffer(fd, r, make([]byte, bufSize))
}

// contentHash resolves the digest of an existing destination file,
// through the index cache when its stat still matches.
func (s *Syncer) contentHash(ctx context.Context, abs string, fi os.FileInfo) (string, error) {
	if h, ok := s.cfg.Index.CacheGet(abs, fi.Size(), fi.ModTime()); ok {
		return h, nil
	}
	h, _, err := s.cfg.Hash.HashFile(ctx, abs)
	if err != nil {
		return "", err
	}
	s.cfg.Index.CachePut(abs, fi.Size(), fi.ModTime(), h)
	return h, nil
}

// classify keeps source-side read failures apart from destination
// failures, which count toward the abort streak.
func (s *Syncer) classify(err error, desc scanner.FileDesc, tmpPath string) error {
	var pe *os.PathError
	if errors.As(err, &pe) && pe.Path == desc.Path {
		return fmt.Errorf("read source %s: %w", desc.Path, err)
	}
	return &WriteError{Op: "copy", Path: tmpPath, Err: err}
}

func (s *Syncer) abs(rel string) string {
	return filepath.Join(s.cfg.DstRoot, filepath.FromSlash(rel))
}

// collide derives the nth collision-avoidance name: img.jpg, then
// img_1.jpg, img_2.jpg, ...
func collide(rel string, n int) string {
	if n == 0 {
		return rel
	}
	ext := path.Ext(rel)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(rel, ext), n, ext)
}

// setTimes stamps the copy with the source modification time before
// the rename makes it visible.
func setTimes(fd *os.File, mtime time.Time) error {
	ts := unix.NsecToTimespec(mtime.UnixNano())
	times := []unix.Timespec{ts, ts}
	if err := unix.UtimesNanoAt(int(fd.Fd()), "", times, unix.AT_EMPTY_PATH); err != nil {
		// Some systems don't support AT_EMPTY_PATH.
		if err2 := unix.UtimesNanoAt(unix.AT_FDCWD, fd.Name(), times, 0); err2 != nil {
			return fmt.Errorf("utimensat: %w", err)
		}
	}
	return nil
}
