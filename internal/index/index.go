// Package index is the persistent content catalog of the destination
// store: one entry per content hash, mapping to the destination file
// that holds those bytes, plus a path cache that lets unchanged files
// skip re-hashing across runs.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const formatVersion = 1

// ErrHashExists is returned by Insert when the content is already
// indexed under a different destination path.
var ErrHashExists = errors.New("content hash already indexed")

// Entry records where the bytes behind one content hash live in the
// destination tree.
type Entry struct {
	Hash      string    `json:"hash"`
	DstPath   string    `json:"dst_path"` // slash-separated, relative to the destination root
	Size      int64     `json:"size"`
	SrcPath   string    `json:"src_path,omitempty"` // last source path seen with this content
	FirstSeen time.Time `json:"first_seen"`
	Aliases   []string  `json:"aliases,omitempty"` // duplicate source names resolved to this entry
}

// CacheEntry remembers the hash of a path at a given size and mtime.
// Any change to either invalidates it.
type CacheEntry struct {
	Size    int64  `json:"size"`
	MTimeNS int64  `json:"mtime_ns"`
	Hash    string `json:"hash"`
}

// document is the on-disk JSON shape. External tools (the gallery
// reads this) see either the old document or the new one, never a mix.
type document struct {
	Version   int                   `json:"version"`
	UpdatedAt time.Time             `json:"updated_at"`
	Entries   map[string]*Entry     `json:"entries"`
	Cache     map[string]CacheEntry `json:"cache,omitempty"`
}

// Store holds the index in memory and persists it atomically. All
// mutation goes through one mutex; lookups return copies.
type Store struct {
	mu      sync.Mutex
	path    string // backing file, "" keeps the store memory-only
	entries map[string]*Entry
	byDst   map[string]string // dst rel path → hash
	cache   map[string]CacheEntry
	dirty   int
}

// New creates an empty store backed by path.
func New(path string) *Store {
	return &Store{
		path:    path,
		entries: make(map[string]*Entry),
		byDst:   make(map[string]string),
		cache:   make(map[string]CacheEntry),
	}
}

// LoadOrNew reads the persisted index at path. A missing file yields
// an empty store. A corrupt or future-versioned file is moved aside
// and logged, and an empty store returned: a damaged index must never
// block a run, the re-index pass rebuilds it from the destination
// tree without re-copying anything.
func LoadOrNew(path string, log *slog.Logger) *Store {
	s := New(path)
	if path == "" {
		return s
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s
	}
	if err != nil {
		log.Warn("index unreadable, starting empty", "path", path, "error", err)
		return s
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil || doc.Version > formatVersion {
		quarantine(path, log)
		return s
	}

	for h, e := range doc.Entries {
		e.Hash = h
		s.entries[h] = e
		s.byDst[e.DstPath] = h
	}
	if doc.Cache != nil {
		s.cache = doc.Cache
	}
	return s
}

func quarantine(path string, log *slog.Logger) {
	bad := path + ".corrupt"
	if err := os.Rename(path, bad); err != nil {
		log.Warn("index corrupt and could not be moved aside, starting empty",
			"path", path, "error", err)
		return
	}
	log.Warn("index corrupt, moved aside and starting empty",
		"path", path, "moved_to", bad)
}

// Heal drops entries whose destination file is missing or has changed
// size, and returns how many were dropped. Content that still exists
// under dstRoot is re-adopted by the re-index pass.
func (s *Store) Heal(dstRoot string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	for h, e := range s.entries {
		fi, err := os.Stat(filepath.Join(dstRoot, filepath.FromSlash(e.DstPath)))
		if err == nil && fi.Size() == e.Size {
			continue
		}
		delete(s.entries, h)
		delete(s.byDst, e.DstPath)
		s.dirty++
		dropped++
	}
	return dropped
}

// Lookup returns the entry for a content hash.
func (s *Store) Lookup(hash string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[hash]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// ByDst returns the entry occupying a destination-relative path.
func (s *Store) ByDst(rel string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.byDst[rel]
	if !ok {
		return Entry{}, false
	}
	return *s.entries[h], true
}

// Insert adds an entry. Re-inserting the same hash→destination
// mapping is a no-op; a hash already mapped elsewhere returns
// ErrHashExists, which callers treat as "content already stored".
func (s *Store) Insert(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.entries[e.Hash]; ok {
		if cur.DstPath == e.DstPath {
			return nil
		}
		return fmt.Errorf("%w: %s maps to %s", ErrHashExists, e.Hash, cur.DstPath)
	}

	if e.FirstSeen.IsZero() {
		e.FirstSeen = time.Now()
	}
	cp := e
	s.entries[e.Hash] = &cp
	s.byDst[e.DstPath] = e.Hash
	s.dirty++
	return nil
}

// AddAlias records a duplicate source name against an entry.
func (s *Store) AddAlias(hash, alias string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[hash]
	if !ok {
		return false
	}
	for _, a := range e.Aliases {
		if a == alias {
			return true
		}
	}
	e.Aliases = append(e.Aliases, alias)
	s.dirty++
	return true
}

// Remove deletes an entry by hash.
func (s *Store) Remove(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[hash]
	if !ok {
		return false
	}
	delete(s.entries, hash)
	delete(s.byDst, e.DstPath)
	s.dirty++
	return true
}

// Len returns the number of indexed entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Entries returns a snapshot of all entries, sorted by destination
// path.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DstPath < out[j].DstPath })
	return out
}

// CacheGet returns the remembered hash for path if size and mtime
// still match.
func (s *Store) CacheGet(path string, size int64, mtime time.Time) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ce, ok := s.cache[path]
	if !ok || ce.Size != size || ce.MTimeNS != mtime.UnixNano() {
		return "", false
	}
	return ce.Hash, true
}

// CachePut remembers the hash of path at its current size and mtime.
func (s *Store) CachePut(path string, size int64, mtime time.Time, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache[path] = CacheEntry{Size: size, MTimeNS: mtime.UnixNano(), Hash: hash}
	s.dirty++
}

// Dirty returns the number of mutations since the last persist.
// Callers use it to batch Persist calls.
func (s *Store) Dirty() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Persist writes the store to its backing file via a temp file and
// rename, so a concurrent reader sees the old document or the new
// one, never a torn mix. No-op when nothing changed or the store is
// memory-only.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" || s.dirty == 0 {
		return nil
	}

	doc := document{
		Version:   formatVersion,
		UpdatedAt: time.Now().UTC(),
		Entries:   s.entries,
		Cache:     s.cache,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("create index temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close index temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace index: %w", err)
	}

	s.dirty = 0
	return nil
}
