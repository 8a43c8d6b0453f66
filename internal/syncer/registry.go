package syncer

import (
	"os"
	"sync"

	"golang.org/x/sync/singleflight"
)

// tmpRegistry tracks in-progress temporary files so they can be
// removed if the run is torn down mid-copy.
type tmpRegistry struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

func (r *tmpRegistry) register(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paths == nil {
		r.paths = make(map[string]struct{})
	}
	r.paths[path] = struct{}{}
}

func (r *tmpRegistry) deregister(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.paths, path)
}

func (r *tmpRegistry) sweep() {
	r.mu.Lock()
	paths := make([]string, 0, len(r.paths))
	for p := range r.paths {
		paths = append(paths, p)
	}
	r.paths = nil
	r.mu.Unlock()

	for _, p := range paths {
		_ = os.Remove(p)
	}
}

// nameRegistry reserves destination names while a copy is in flight,
// so concurrent workers never pick the same collision-free name.
type nameRegistry struct {
	mu    sync.Mutex
	names map[string]struct{}
}

func (r *nameRegistry) claim(rel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.names == nil {
		r.names = make(map[string]struct{})
	}
	if _, taken := r.names[rel]; taken {
		return false
	}
	r.names[rel] = struct{}{}
	return true
}

func (r *nameRegistry) release(rel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.names, rel)
}

// dirRegistry deduplicates destination directory creation across the
// copy pool. Whole months share one directory under the date layout,
// so most files find it already created and skip the syscall.
type dirRegistry struct {
	mu      sync.Mutex
	created map[string]struct{}
	group   singleflight.Group
}

func (r *dirRegistry) ensure(dir string) error {
	r.mu.Lock()
	_, ok := r.created[dir]
	r.mu.Unlock()
	if ok {
		return nil
	}

	_, err, _ := r.group.Do(dir, func() (any, error) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		r.mu.Lock()
		if r.created == nil {
			r.created = make(map[string]struct{})
		}
		r.created[dir] = struct{}{}
		r.mu.Unlock()
		return nil, nil
	})
	return err
}
