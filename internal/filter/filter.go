package filter

import (
	"path"
	"strings"
)

// Rule is a single user-supplied include or exclude pattern.
type Rule struct {
	Pattern *compiledPattern
	Include bool // true=include, false=exclude
}

// Chain decides which entries of a source tree are photos worth
// syncing. User rules run first in order (first match wins); the
// built-in extension, name and size policies apply only when no rule
// matched, so an explicit "+" rule can rescue a file the defaults
// would drop.
type Chain struct {
	rules     []Rule
	minSize   int64
	allowExts map[string]struct{}
	denyExts  map[string]struct{}
	denyNames map[string]struct{}
	skipDirs  map[string]struct{}
}

// NewChain creates an empty chain that includes everything.
func NewChain() *Chain {
	return &Chain{
		allowExts: make(map[string]struct{}),
		denyExts:  make(map[string]struct{}),
		denyNames: make(map[string]struct{}),
		skipDirs:  make(map[string]struct{}),
	}
}

// Default returns a chain loaded with the stock photo policy: media
// extensions only, sidecar extensions and junk names dropped, NAS
// metadata directories pruned, files under MinPhotoSize ignored.
func Default() *Chain {
	c := NewChain()
	c.AllowExts(MediaExtensions...)
	c.DenyExts(JunkExtensions...)
	c.DenyNames(JunkNames...)
	c.SkipDirs(JunkDirs...)
	c.SetMinSize(MinPhotoSize)
	return c
}

// AddExclude adds an exclude rule for the given pattern.
func (c *Chain) AddExclude(pattern string) error {
	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, Rule{Pattern: cp, Include: false})
	return nil
}

// AddInclude adds an include rule for the given pattern.
func (c *Chain) AddInclude(pattern string) error {
	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, Rule{Pattern: cp, Include: true})
	return nil
}

// PrependExclude adds an exclude rule ahead of all existing rules.
// The engine uses it for internal paths that must never be walked,
// so that no user include can rescue them.
func (c *Chain) PrependExclude(pattern string) error {
	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	c.rules = append([]Rule{{Pattern: cp, Include: false}}, c.rules...)
	return nil
}

// SetMinSize sets the size floor for regular files. Zero disables it.
func (c *Chain) SetMinSize(n int64) {
	c.minSize = n
}

// AllowExts restricts files to the given extensions. Extensions match
// case-insensitively, with or without the leading dot.
func (c *Chain) AllowExts(exts ...string) {
	for _, e := range exts {
		c.allowExts[normalizeExt(e)] = struct{}{}
	}
}

// DenyExts drops files with the given extensions.
func (c *Chain) DenyExts(exts ...string) {
	for _, e := range exts {
		c.denyExts[normalizeExt(e)] = struct{}{}
	}
}

// DenyNames drops files whose basename matches, case-insensitively.
func (c *Chain) DenyNames(names ...string) {
	for _, n := range names {
		c.denyNames[strings.ToLower(n)] = struct{}{}
	}
}

// SkipDirs prunes directories whose basename matches exactly.
func (c *Chain) SkipDirs(names ...string) {
	for _, n := range names {
		c.skipDirs[n] = struct{}{}
	}
}

// Empty reports whether the chain has no rules and no policies.
func (c *Chain) Empty() bool {
	return len(c.rules) == 0 && c.minSize == 0 &&
		len(c.allowExts) == 0 && len(c.denyExts) == 0 &&
		len(c.denyNames) == 0 && len(c.skipDirs) == 0
}

// Match reports whether the entry should be synced. relPath is
// slash-separated relative to the source root, isDir marks
// directories, and size is ignored for directories. A false result
// for a directory means the whole subtree is pruned.
func (c *Chain) Match(relPath string, isDir bool, size int64) bool {
	for _, rule := range c.rules {
		if rule.Pattern.match(relPath, isDir) {
			return rule.Include
		}
	}

	base := path.Base(relPath)
	if isDir {
		_, skip := c.skipDirs[base]
		return !skip
	}

	if _, deny := c.denyNames[strings.ToLower(base)]; deny {
		return false
	}
	ext := strings.ToLower(path.Ext(base))
	if _, deny := c.denyExts[ext]; deny {
		return false
	}
	if len(c.allowExts) > 0 {
		if _, ok := c.allowExts[ext]; !ok {
			return false
		}
	}
	if c.minSize > 0 && size < c.minSize {
		return false
	}
	return true
}

func normalizeExt(e string) string {
	e = strings.ToLower(strings.TrimSpace(e))
	if e != "" && !strings.HasPrefix(e, ".") {
		e = "." + e
	}
	return e
}
