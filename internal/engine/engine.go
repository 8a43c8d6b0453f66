// Package engine orchestrates a sync run: re-indexing the destination,
// scanning the source, hashing, deciding each file's fate against the
// content index and materializing the winners at the destination.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"photosync/internal/event"
	"photosync/internal/filter"
	"photosync/internal/hasher"
	"photosync/internal/index"
	"photosync/internal/reconcile"
	"photosync/internal/stats"
	"photosync/internal/syncer"
)

// DefaultWorkers is the copy pool size when Config.Workers is zero.
const DefaultWorkers = 4

// StateDirName is the directory under the destination root that holds
// the content index. It is invisible to both the source scan and the
// re-index walk.
const StateDirName = ".photosync"

// Mode selects what happens to a source file once its content is
// settled at the destination.
type Mode int

const (
	ModeCopy Mode = iota
	ModeMove
)

func (m Mode) String() string {
	if m == ModeMove {
		return "move"
	}
	return "copy"
}

// ParseMode parses a mode name as given on the command line.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "copy":
		return ModeCopy, nil
	case "move":
		return ModeMove, nil
	}
	return ModeCopy, fmt.Errorf("unknown mode %q (want copy or move)", s)
}

// Config describes a sync run.
type Config struct {
	Src         string
	Dst         string
	Mode        Mode
	Layout      Layout
	Policy      reconcile.DupPolicy
	Algo        hasher.Algorithm
	Workers     int // copy pool size
	HashWorkers int // hash pool size, defaults to Workers
	Rules       *filter.Chain
	BWLimit     int64 // aggregate copy throughput cap in bytes/sec, 0 = unlimited
	DryRun      bool
	NoCache     bool   // bypass the stat cache and re-hash everything
	StatePath   string // index file, defaults to <dst>/.photosync/index.json
	Events      chan<- event.Event
	Stats       *stats.Collector
	Log         *slog.Logger
}

// FileError records one file that could not be settled.
type FileError struct {
	Path string
	Err  string
}

// Report is the outcome of a run. Stats and the housekeeping counters
// are valid even when Err is set.
type Report struct {
	Stats      stats.Snapshot
	Adopted    int // destination files adopted into the index
	Healed     int // index entries dropped because their file was gone
	TmpsSwept  int // abandoned temp files removed from the destination
	PrunedDirs int // emptied source directories removed (move mode)
	Duration   time.Duration
	Errors     []FileError
	Err        error
}

// Run executes a sync run, blocking until complete.
func Run(ctx context.Context, cfg Config) Report {
	start := time.Now()
	fail := func(err error) Report {
		return Report{Err: err, Duration: time.Since(start)}
	}

	if cfg.Log == nil {
		cfg.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.HashWorkers <= 0 {
		cfg.HashWorkers = cfg.Workers
	}
	if cfg.Algo == "" {
		cfg.Algo = hasher.DefaultAlgorithm
	}
	if _, err := hasher.Parse(string(cfg.Algo)); err != nil {
		return fail(err)
	}
	if cfg.Rules == nil {
		cfg.Rules = filter.Default()
	}

	var err error
	if cfg.Src, err = filepath.Abs(cfg.Src); err != nil {
		return fail(fmt.Errorf("source: %w", err))
	}
	if cfg.Dst, err = filepath.Abs(cfg.Dst); err != nil {
		return fail(fmt.Errorf("destination: %w", err))
	}
	srcInfo, err := os.Stat(cfg.Src)
	if err != nil {
		return fail(fmt.Errorf("source: %w", err))
	}
	if !srcInfo.IsDir() {
		return fail(fmt.Errorf("source %s is not a directory", cfg.Src))
	}
	if cfg.Src == cfg.Dst {
		return fail(errors.New("source and destination are the same directory"))
	}
	if cfg.StatePath == "" {
		cfg.StatePath = filepath.Join(cfg.Dst, StateDirName, "index.json")
	}
	stateDir := filepath.Dir(cfg.StatePath)

	r := &run{cfg: cfg, log: cfg.Log, st: cfg.Stats, hasher: hasher.New(cfg.Algo)}

	// Nested roots are allowed, but neither walk may see the other
	// side's output, and nothing may see the state directory.
	if rel, ok := underRoot(cfg.Src, cfg.Dst); ok && rel != "." {
		if err := cfg.Rules.PrependExclude("/" + rel + "/"); err != nil {
			return fail(err)
		}
	}
	if rel, ok := underRoot(cfg.Dst, cfg.Src); ok && rel != "." {
		r.excludeUnder = append(r.excludeUnder, rel)
	}
	if rel, ok := underRoot(cfg.Dst, stateDir); ok && rel != "." {
		r.excludeUnder = append(r.excludeUnder, rel)
	}
	if rel, ok := underRoot(cfg.Src, stateDir); ok && rel != "." {
		if err := cfg.Rules.PrependExclude("/" + rel + "/"); err != nil {
			return fail(err)
		}
	}

	if !cfg.DryRun {
		if err := os.MkdirAll(cfg.Dst, 0o755); err != nil {
			return fail(fmt.Errorf("create destination: %w", err))
		}
		if err := os.MkdirAll(stateDir, 0o755); err != nil {
			return fail(fmt.Errorf("create state dir: %w", err))
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.cancel = cancel

	// Phase 1: bring the index in line with what is on disk.
	r.st.SetPhase(stats.PhaseReindex)
	r.emit(event.Event{Type: event.ReindexStarted})

	rep := Report{}
	r.idx = index.LoadOrNew(cfg.StatePath, r.log)
	rep.Healed = r.idx.Heal(cfg.Dst)
	if !cfg.DryRun {
		rep.TmpsSwept = sweepTmps(cfg.Dst)
	}
	rep.Adopted, err = r.reindex(ctx)
	if err != nil {
		rep.Stats = r.st.Snapshot()
		rep.Duration = time.Since(start)
		rep.Err = err
		return rep
	}
	r.emit(event.Event{Type: event.ReindexComplete, Total: int64(r.idx.Len())})

	// Phase 2: scan, hash, decide, copy.
	r.st.SetPhase(stats.PhaseSync)
	r.emit(event.Event{Type: event.ScanStarted})

	scfg := syncer.Config{
		DstRoot: cfg.Dst,
		Index:   r.idx,
		Hash:    r.hasher,
		DryRun:  cfg.DryRun,
		Log:     r.log,
	}
	if cfg.BWLimit > 0 {
		scfg.Limiter = syncer.NewBWLimiter(cfg.BWLimit)
	}
	r.sync = syncer.New(scfg)
	r.dec = reconcile.New(reconcile.Config{
		Index:   r.idx,
		DstRoot: cfg.Dst,
		Dest:    destFunc(cfg.Layout),
		Policy:  cfg.Policy,
		Log:     r.log,
	})

	r.syncPipeline(ctx, cfg.Rules)

	snap := r.st.Snapshot()
	r.emit(event.Event{Type: event.ScanComplete, Total: snap.FilesTotal, TotalSize: snap.BytesTotal})

	// Phase 3: wrap up.
	if cfg.Mode == ModeMove && r.fatal == nil && ctx.Err() == nil {
		rep.PrunedDirs = r.sync.PruneEmptyDirs(cfg.Src)
	}
	r.sync.Close()

	var persistErr error
	if !cfg.DryRun {
		if err := r.idx.Persist(); err != nil {
			persistErr = fmt.Errorf("persist index: %w", err)
		}
	}
	r.st.SetPhase(stats.PhaseDone)

	rep.Stats = r.st.Snapshot()
	rep.Duration = time.Since(start)
	r.errMu.Lock()
	rep.Errors = r.fileErrs
	if r.errDropped > 0 {
		r.log.Warn("file error list truncated", slog.Int("dropped", r.errDropped))
	}
	r.errMu.Unlock()

	switch {
	case r.fatal != nil:
		rep.Err = r.fatal
	case ctx.Err() != nil:
		rep.Err = ctx.Err()
	case persistErr != nil:
		rep.Err = persistErr
	}
	return rep
}

// underRoot reports whether p lies inside root, returning its
// root-relative slash path.
func underRoot(root, p string) (string, bool) {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
