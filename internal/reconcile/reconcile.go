// Package reconcile decides what to do with each scanned file by
// consulting the content index: skip it, copy it, or resolve it as a
// duplicate of content already stored.
package reconcile

import (
	"container/heap"
	"log/slog"
	"os"
	"path/filepath"

	"photosync/internal/index"
	"photosync/internal/scanner"
)

// DestFunc maps a source descriptor to its destination path relative
// to the destination root, in slash form.
type DestFunc func(scanner.FileDesc) string

// Config wires a Decider.
type Config struct {
	Index   *index.Store
	DstRoot string
	Dest    DestFunc
	Policy  DupPolicy
	Log     *slog.Logger
}

// Decider turns hashed results into actions, strictly in scan order.
// Results may arrive in any order; a reorder buffer holds early
// arrivals until every lower sequence number has been decided. The
// first file in scan order therefore becomes the canonical copy for
// its content no matter how hashing was scheduled.
//
// When a file's content matches a copy still in flight, the file is
// parked on that claim and re-decided once the claim settles, so ties
// between concurrent same-content files always resolve to the lower
// sequence number.
//
// All index mutations for entries and aliases happen here. The
// decider is driven from a single goroutine and is not safe for
// concurrent use.
type Decider struct {
	cfg    Config
	next   int64
	buf    resultHeap
	claims map[string]*claim
}

// claim marks content whose first copy has been dispatched but not
// yet committed.
type claim struct {
	owner   Result
	waiters []Result // ascending seq
}

func New(cfg Config) *Decider {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Decider{cfg: cfg, next: 1, claims: make(map[string]*claim)}
}

// Offer feeds one hashed result in. It returns the actions that
// became decidable, which may include earlier results that were
// buffered waiting on this sequence number, plus the number of
// sequence slots consumed. Parked duplicates consume their slot
// without producing an action until their claim settles.
func (d *Decider) Offer(r Result) ([]Action, int) {
	heap.Push(&d.buf, r)

	var (
		acts    []Action
		decided int
	)
	for d.buf.Len() > 0 && d.buf[0].Desc.Seq == d.next {
		r := heap.Pop(&d.buf).(Result)
		d.next++
		decided++
		if a, ok := d.decide(r); ok {
			acts = append(acts, a)
		}
	}
	return acts, decided
}

// Resolve reports an executor outcome back. A committed copy inserts
// its index entry and settles files waiting on the content; a failed
// copy promotes the next waiter in scan order to owner. The returned
// actions are the settled waiters; the outcome's own action is the
// caller's to account.
func (d *Decider) Resolve(o Outcome) []Action {
	switch o.Action.Kind {
	case Copy:
		if o.Err == nil {
			d.commit(o)
		}
		return d.settle(o.Action.Hash)
	case CopyDuplicate:
		if o.Err == nil {
			d.cfg.Index.AddAlias(o.Action.Hash, o.Action.DstRel)
		}
	}
	return nil
}

// Pending reports open claims, i.e. first copies still in flight.
func (d *Decider) Pending() int { return len(d.claims) }

// Buffered reports results held in the reorder buffer.
func (d *Decider) Buffered() int { return d.buf.Len() }

func (d *Decider) decide(r Result) (Action, bool) {
	if r.Err != nil {
		return Action{Kind: Error, Desc: r.Desc, Err: r.Err}, true
	}

	if c, ok := d.claims[r.Hash]; ok {
		c.waiters = append(c.waiters, r)
		return Action{}, false
	}

	rel := d.cfg.Dest(r.Desc)
	e, ok := d.cfg.Index.Lookup(r.Hash)
	if !ok {
		d.claims[r.Hash] = &claim{owner: r}
		return Action{Kind: Copy, Desc: r.Desc, Hash: r.Hash, DstRel: rel}, true
	}

	// Content already stored. The file is settled if its identity is
	// the canonical name or a recorded alias and the bytes are still
	// on disk.
	if rel == e.DstPath || hasAlias(e, rel) {
		target := e.DstPath
		if d.cfg.Policy == PolicyCopy && rel != e.DstPath {
			target = rel // the materialized duplicate itself
		}
		if d.present(target, e.Size) {
			return Action{Kind: Skip, Desc: r.Desc, Hash: r.Hash, DstRel: e.DstPath}, true
		}
		if target == e.DstPath {
			// Canonical bytes are gone or resized. Drop the stale
			// entry and store this file as the new canonical copy.
			d.cfg.Log.Warn("index entry stale, copying again",
				slog.String("hash", r.Hash),
				slog.String("dst", e.DstPath))
			d.cfg.Index.Remove(r.Hash)
			d.claims[r.Hash] = &claim{owner: r}
			return Action{Kind: Copy, Desc: r.Desc, Hash: r.Hash, DstRel: rel}, true
		}
		// A materialized duplicate went missing; rebuild it below.
	}

	if d.cfg.Policy == PolicyCopy {
		return Action{Kind: CopyDuplicate, Desc: r.Desc, Hash: r.Hash, DstRel: rel}, true
	}
	d.cfg.Index.AddAlias(r.Hash, rel)
	return Action{Kind: AliasDuplicate, Desc: r.Desc, Hash: r.Hash, DstRel: rel}, true
}

func (d *Decider) commit(o Outcome) {
	r := o.Action
	err := d.cfg.Index.Insert(index.Entry{
		Hash:    r.Hash,
		DstPath: o.FinalRel,
		Size:    r.Desc.Size,
		SrcPath: r.Desc.Path,
	})
	if err != nil {
		// Claims serialize first copies, so a conflicting mapping
		// means the store was mutated behind our back. Keep the first
		// mapping and say so.
		d.cfg.Log.Error("index conflict", slog.Any("error", err),
			slog.String("src", r.Desc.Path))
		return
	}
	if o.FinalRel != r.DstRel {
		// Collision pushed the copy to a suffixed name; remember the
		// identity it answers to as well.
		d.cfg.Index.AddAlias(r.Hash, r.DstRel)
	}
	// The copy preserves the source mtime, so the destination file
	// can be cache-hashed without reading it back.
	d.cfg.Index.CachePut(d.abs(o.FinalRel), r.Desc.Size, r.Desc.ModTime, r.Hash)
}

// settle closes the claim for hash and re-decides its waiters in scan
// order. After a commit they resolve against the fresh entry; after a
// failure the first waiter finds no entry and no claim, becomes the
// new owner, and the rest park on its claim.
func (d *Decider) settle(hash string) []Action {
	c, ok := d.claims[hash]
	if !ok {
		return nil
	}
	delete(d.claims, hash)

	var acts []Action
	for _, w := range c.waiters {
		if a, ok := d.decide(w); ok {
			acts = append(acts, a)
		}
	}
	return acts
}

func (d *Decider) present(rel string, size int64) bool {
	fi, err := os.Stat(d.abs(rel))
	return err == nil && fi.Mode().IsRegular() && fi.Size() == size
}

func (d *Decider) abs(rel string) string {
	return filepath.Join(d.cfg.DstRoot, filepath.FromSlash(rel))
}

func hasAlias(e index.Entry, rel string) bool {
	for _, a := range e.Aliases {
		if a == rel {
			return true
		}
	}
	return false
}

type resultHeap []Result

func (h resultHeap) Len() int           { return len(h) }
func (h resultHeap) Less(i, j int) bool { return h[i].Desc.Seq < h[j].Desc.Seq }
func (h resultHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(x any) { *h = append(*h, x.(Result)) }

func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	*h = old[:n-1]
	return r
}
