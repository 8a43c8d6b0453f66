package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// compiledPattern matches slash-separated relative paths against an
// rsync-style glob.
type compiledPattern struct {
	re       *regexp.Regexp
	original string
	dirOnly  bool // pattern ends with /
}

// compilePattern converts a glob into a compiled matcher. A pattern
// containing a slash is anchored at the source root; a bare name
// matches at any depth.
func compilePattern(pattern string) (*compiledPattern, error) {
	cp := &compiledPattern{original: pattern}

	if strings.HasSuffix(pattern, "/") {
		cp.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}

	anchored := strings.Contains(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "/")

	expr := globExpr(pattern)
	if anchored {
		expr = "^" + expr + "$"
	} else {
		expr = "(^|/)" + expr + "$"
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", cp.original, err)
	}
	cp.re = re
	return cp, nil
}

// match tests a relative path against the pattern.
func (cp *compiledPattern) match(relPath string, isDir bool) bool {
	if cp.dirOnly && !isDir {
		return false
	}
	return cp.re.MatchString(relPath)
}

// globExpr translates glob syntax to a regular expression: * stops at
// path separators, ** crosses them, ? is one character.
func globExpr(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); {
		switch {
		case strings.HasPrefix(glob[i:], "**/"):
			b.WriteString("(.*/)?")
			i += 3
		case strings.HasPrefix(glob[i:], "**"):
			b.WriteString(".*")
			i += 2
		case glob[i] == '*':
			b.WriteString("[^/]*")
			i++
		case glob[i] == '?':
			b.WriteString("[^/]")
			i++
		default:
			b.WriteString(regexp.QuoteMeta(string(glob[i])))
			i++
		}
	}
	return b.String()
}
