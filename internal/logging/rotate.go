package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/pgzip"
)

const (
	// DefaultMaxSize caps the active log file before rotation.
	DefaultMaxSize = 5 * 1024 * 1024
	// DefaultBackups is how many compressed generations survive.
	DefaultBackups = 3
)

// RotatingWriter is an append-only log file that rotates once it
// exceeds maxSize. The active file stays plain so it can be tailed;
// rotated generations are compressed to <path>.N.gz, oldest dropped.
type RotatingWriter struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	backups int
	f       *os.File
	size    int64
}

// NewRotatingWriter opens path for appending, creating its directory
// as needed.
func NewRotatingWriter(path string, maxSize int64, backups int) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	w := &RotatingWriter{path: path, maxSize: maxSize, backups: backups}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	w.f = f
	w.size = fi.Size()
	return nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the active file. The writer is unusable afterwards.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

func (w *RotatingWriter) rotate() error {
	if err := w.f.Close(); err != nil {
		return err
	}

	if w.backups == 0 {
		if err := os.Remove(w.path); err != nil {
			return err
		}
		return w.open()
	}

	// Shift the generation chain, dropping the oldest.
	os.Remove(w.gen(w.backups))
	for i := w.backups - 1; i >= 1; i-- {
		os.Rename(w.gen(i), w.gen(i+1))
	}
	if err := compressFile(w.path, w.gen(1)); err != nil {
		return err
	}
	if err := os.Remove(w.path); err != nil {
		return err
	}
	return w.open()
}

func (w *RotatingWriter) gen(n int) string {
	return fmt.Sprintf("%s.%d.gz", w.path, n)
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	zw := pgzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		zw.Close()
		out.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
