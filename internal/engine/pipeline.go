package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"photosync/internal/event"
	"photosync/internal/filter"
	"photosync/internal/hasher"
	"photosync/internal/index"
	"photosync/internal/reconcile"
	"photosync/internal/scanner"
	"photosync/internal/stats"
	"photosync/internal/syncer"
)

const (
	// admissionWindow bounds how many files may be past the scanner
	// but not yet decided, which caps the decider's reorder buffer.
	admissionWindow = 4096
	// flushEvery persists the index after this many pending mutations.
	flushEvery = 256
	// maxWriteStreak aborts the run after this many consecutive
	// destination write failures.
	maxWriteStreak = 5
	// maxFileErrors caps the per-file error list carried in the report.
	maxFileErrors = 1000
)

// run carries the state of one sync run.
type run struct {
	cfg    Config
	log    *slog.Logger
	st     *stats.Collector
	idx    *index.Store
	hasher *hasher.Hasher
	sync   *syncer.Syncer
	dec    *reconcile.Decider
	cancel context.CancelFunc

	excludeUnder []string // dst-relative dirs the re-index walk skips

	jobs chan reconcile.Action
	done chan reconcile.Outcome

	inFlight    int
	writeStreak int
	fatal       error

	errMu      sync.Mutex
	fileErrs   []FileError
	errDropped int
}

func (r *run) emit(e event.Event) { emitEvent(r.cfg.Events, e) }

func (r *run) addFileError(path string, err error) {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	if len(r.fileErrs) >= maxFileErrors {
		r.errDropped++
		return
	}
	r.fileErrs = append(r.fileErrs, FileError{Path: path, Err: err.Error()})
}

// hashCached resolves a file's digest through the stat cache, falling
// back to a full read. Safe for concurrent use.
func (r *run) hashCached(ctx context.Context, path string, size int64, mtime time.Time) (string, error) {
	if !r.cfg.NoCache {
		if h, ok := r.idx.CacheGet(path, size, mtime); ok {
			return h, nil
		}
	}
	h, n, err := r.hasher.HashFile(ctx, path)
	if err != nil {
		return "", err
	}
	r.st.AddFilesHashed(1)
	r.st.AddBytesHashed(n)
	r.idx.CachePut(path, size, mtime, h)
	return h, nil
}

// syncPipeline runs scan → hash pool → decider → copy pool to
// completion. The decider goroutine is the sole owner of index entry
// mutations and claim bookkeeping; everything else feeds or drains it.
func (r *run) syncPipeline(ctx context.Context, chain *filter.Chain) {
	sc := scanner.New(scanner.Config{Root: r.cfg.Src, Filter: chain, Stats: r.st, Buffer: 64})
	descs, scanErrs := sc.Scan(ctx)

	var scanWg sync.WaitGroup
	scanWg.Add(1)
	go func() {
		defer scanWg.Done()
		for err := range scanErrs {
			r.st.AddFilesFailed(1)
			r.addFileError("", err)
			r.emit(event.Event{Type: event.FileFailed, Error: err})
		}
	}()

	window := make(chan struct{}, admissionWindow)
	hashCh := make(chan scanner.FileDesc, r.cfg.HashWorkers*2)
	results := make(chan reconcile.Result, admissionWindow)
	r.jobs = make(chan reconcile.Action, r.cfg.Workers*2)
	r.done = make(chan reconcile.Outcome, cap(r.jobs)+r.cfg.Workers+1)

	// Feeder: one admission slot per scanned file, released when the
	// decider consumes its sequence number.
	go func() {
		defer close(hashCh)
		for d := range descs {
			select {
			case window <- struct{}{}:
			case <-ctx.Done():
				for range descs {
				}
				return
			}
			select {
			case hashCh <- d:
			case <-ctx.Done():
				<-window
				for range descs {
				}
				return
			}
		}
	}()

	// Hash pool.
	var hashWg sync.WaitGroup
	for range r.cfg.HashWorkers {
		hashWg.Add(1)
		go func() {
			defer hashWg.Done()
			for d := range hashCh {
				res := reconcile.Result{Desc: d}
				res.Hash, res.Err = r.hashCached(ctx, d.Path, d.Size, d.ModTime)
				select {
				case results <- res:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		hashWg.Wait()
		close(results)
	}()

	// Copy pool. Workers never block reporting outcomes: the done
	// channel has room for every job they could be holding.
	var copyWg sync.WaitGroup
	for i := range r.cfg.Workers {
		copyWg.Add(1)
		go func() {
			defer copyWg.Done()
			for a := range r.jobs {
				r.emit(event.Event{
					Type:     event.FileStarted,
					Path:     a.Desc.RelPath,
					Size:     a.Desc.Size,
					WorkerID: i,
				})
				out, err := r.sync.Materialize(ctx, a.Desc, a.DstRel, a.Hash)
				r.done <- reconcile.Outcome{
					Action:   a,
					FinalRel: out.FinalRel,
					Bytes:    out.Bytes,
					Existing: out.Existing,
					Err:      err,
				}
			}
		}()
	}

	// Decider loop. Exits once every hashed result is decided and
	// every dispatched copy has reported back, cancelled or not.
	resultsCh := results
	for resultsCh != nil || r.inFlight > 0 {
		select {
		case res, ok := <-resultsCh:
			if !ok {
				resultsCh = nil
				continue
			}
			acts, decided := r.dec.Offer(res)
			for range decided {
				<-window
			}
			r.dispatch(ctx, acts)
		case o := <-r.done:
			r.inFlight--
			r.settleOutcome(o)
			r.dispatch(ctx, r.dec.Resolve(o))
		}
		r.maybeFlush()
	}

	close(r.jobs)
	copyWg.Wait()
	scanWg.Wait()
}

// dispatch routes decided actions: terminal ones are accounted
// immediately, executable ones go to the copy pool.
func (r *run) dispatch(ctx context.Context, acts []reconcile.Action) {
	for _, a := range acts {
		if !a.Kind.NeedsExec() {
			r.finish(a)
			continue
		}
		if ctx.Err() != nil {
			continue // winding down; the file stays for the next run
		}
		select {
		case r.jobs <- a:
			r.inFlight++
		case <-ctx.Done():
		}
	}
}

// finish accounts a terminal action.
func (r *run) finish(a reconcile.Action) {
	switch a.Kind {
	case reconcile.Skip:
		r.st.AddFilesSkipped(1)
		r.emit(event.Event{Type: event.FileSkipped, Path: a.Desc.RelPath, DstPath: a.DstRel})
		r.removeIfMove(a.Desc)
	case reconcile.AliasDuplicate:
		r.st.AddDuplicates(1)
		r.emit(event.Event{Type: event.FileDuplicate, Path: a.Desc.RelPath, DstPath: a.DstRel})
		r.removeIfMove(a.Desc)
	case reconcile.Error:
		r.st.AddFilesFailed(1)
		r.addFileError(a.Desc.Path, a.Err)
		r.emit(event.Event{Type: event.FileFailed, Path: a.Desc.RelPath, Error: a.Err})
	}
}

// settleOutcome accounts an executed copy action.
func (r *run) settleOutcome(o reconcile.Outcome) {
	a := o.Action
	if o.Err != nil {
		r.noteWriteError(o.Err)
		r.st.AddFilesFailed(1)
		r.addFileError(a.Desc.Path, o.Err)
		r.emit(event.Event{Type: event.FileFailed, Path: a.Desc.RelPath, Error: o.Err})
		return
	}
	r.writeStreak = 0

	switch {
	case o.Existing:
		r.st.AddFilesSkipped(1)
		r.emit(event.Event{Type: event.FileSkipped, Path: a.Desc.RelPath, DstPath: o.FinalRel})
	case a.Kind == reconcile.Copy:
		r.st.AddFilesCopied(1)
		r.st.AddBytesCopied(o.Bytes)
		r.emit(event.Event{Type: event.FileCopied, Path: a.Desc.RelPath, DstPath: o.FinalRel, Size: o.Bytes})
	default: // CopyDuplicate
		r.st.AddDuplicates(1)
		r.emit(event.Event{Type: event.FileDuplicate, Path: a.Desc.RelPath, DstPath: o.FinalRel})
	}
	r.removeIfMove(a.Desc)
}

// removeIfMove drains a settled source file in move mode.
func (r *run) removeIfMove(d scanner.FileDesc) {
	if r.cfg.Mode != ModeMove {
		return
	}
	if err := r.sync.RemoveSource(d.Path); err != nil {
		r.st.AddFilesFailed(1)
		r.addFileError(d.Path, err)
		r.emit(event.Event{Type: event.FileFailed, Path: d.RelPath, Error: err})
		return
	}
	r.st.AddFilesMoved(1)
	r.emit(event.Event{Type: event.FileMoved, Path: d.RelPath})
}

// noteWriteError tracks consecutive destination failures and aborts
// the run when the streak says the destination itself is dying.
func (r *run) noteWriteError(err error) {
	var we *syncer.WriteError
	if !errors.As(err, &we) {
		r.writeStreak = 0
		return
	}
	r.writeStreak++
	if r.writeStreak >= maxWriteStreak && r.fatal == nil {
		r.fatal = fmt.Errorf("aborting after %d consecutive destination write failures: %w", r.writeStreak, err)
		r.log.Error("destination looks unwritable, aborting run", slog.Any("error", err))
		r.cancel()
	}
}

func (r *run) maybeFlush() {
	if r.cfg.DryRun || r.idx.Dirty() < flushEvery {
		return
	}
	if err := r.idx.Persist(); err != nil {
		r.log.Warn("index flush", slog.Any("error", err))
	}
}
