package syncer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// RemoveSource unlinks a source file once its content is settled in
// the destination. Move mode calls this after every commit, skip, and
// duplicate resolution.
func (s *Syncer) RemoveSource(path string) error {
	if s.cfg.DryRun {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove source %s: %w", path, err)
	}
	return nil
}

// PruneEmptyDirs removes directories left empty under root after move
// mode drained their files. The root itself is kept. Returns the
// number of directories removed.
func (s *Syncer) PruneEmptyDirs(root string) int {
	if s.cfg.DryRun {
		return 0
	}

	var dirs []string
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && p != root {
			dirs = append(dirs, p)
		}
		return nil
	})

	// Children sort after parents, so delete in reverse order.
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))

	removed := 0
	for _, dir := range dirs {
		if err := os.Remove(dir); err == nil {
			removed++
		}
	}
	return removed
}
