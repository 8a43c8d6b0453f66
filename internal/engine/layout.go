package engine

import (
	"fmt"
	"path"

	"photosync/internal/reconcile"
	"photosync/internal/scanner"
)

// Layout selects how destination paths derive from source files.
type Layout int

const (
	// LayoutDate files photos under YYYY/MM taken from the source
	// modification time.
	LayoutDate Layout = iota
	// LayoutMirror preserves the source-relative path.
	LayoutMirror
)

func (l Layout) String() string {
	if l == LayoutMirror {
		return "mirror"
	}
	return "date"
}

// ParseLayout validates a layout name from config or flags.
func ParseLayout(s string) (Layout, error) {
	switch s {
	case "date":
		return LayoutDate, nil
	case "mirror":
		return LayoutMirror, nil
	}
	return 0, fmt.Errorf("unknown layout %q (want date or mirror)", s)
}

// destFunc returns the path-mapping function for a layout.
func destFunc(l Layout) reconcile.DestFunc {
	if l == LayoutMirror {
		return func(d scanner.FileDesc) string { return d.RelPath }
	}
	return func(d scanner.FileDesc) string {
		t := d.ModTime
		return path.Join(
			fmt.Sprintf("%04d", t.Year()),
			fmt.Sprintf("%02d", int(t.Month())),
			path.Base(d.RelPath),
		)
	}
}
