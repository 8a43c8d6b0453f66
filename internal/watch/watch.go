// Package watch turns filesystem activity under the source root into
// coalesced sync triggers. Any burst of events collapses into a single
// trigger once the tree has been quiet for the debounce window.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet window before a trigger fires. Camera
// imports land files in bursts; one run per burst is enough.
const DefaultDebounce = 2 * time.Second

// Config describes what to watch.
type Config struct {
	Root     string
	Debounce time.Duration
	Ignore   []string // absolute path prefixes never watched or reported
	Log      *slog.Logger
}

// Watcher follows a directory tree recursively, picking up new
// subdirectories as they appear.
type Watcher struct {
	cfg     Config
	fw      *fsnotify.Watcher
	trigger chan struct{}
}

// New creates a watcher over cfg.Root and registers the existing tree.
func New(cfg Config) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{cfg: cfg, fw: fw, trigger: make(chan struct{}, 1)}
	if err := w.addRecursive(cfg.Root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// Triggers delivers one value per quiet-window expiry. The channel is
// never closed; stop consuming when Run returns.
func (w *Watcher) Triggers() <-chan struct{} {
	return w.trigger
}

// Run pumps filesystem events until ctx is done, firing the trigger
// after each burst settles.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fw.Close()

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	arm := func() {
		if timer == nil {
			timer = time.NewTimer(w.cfg.Debounce)
			timerC = timer.C
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.cfg.Debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if w.ignored(ev.Name) {
				continue
			}
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(ev.Name); err != nil {
						w.log().Warn("watch new directory", slog.String("path", ev.Name), slog.Any("error", err))
					}
				}
			}
			if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) &&
				!ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
				continue // chmod noise
			}
			arm()

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.log().Warn("watcher", slog.Any("error", err))

		case <-timerC:
			timer, timerC = nil, nil
			select {
			case w.trigger <- struct{}{}:
			default: // a trigger is already pending
			}
		}
	}
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) ignored(path string) bool {
	for _, p := range w.cfg.Ignore {
		if p == "" {
			continue
		}
		if path == p || strings.HasPrefix(path, p+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *Watcher) log() *slog.Logger {
	if w.cfg.Log != nil {
		return w.cfg.Log
	}
	return slog.Default()
}
