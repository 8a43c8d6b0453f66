package filter

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadFile adds rules from a rule file to the chain, in file order.
// Format:
//
//	- pattern  → exclude
//	+ pattern  → include
//	# comment  → skip
//	no prefix  → exclude
func (c *Chain) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open rule file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		add := c.AddExclude
		switch {
		case strings.HasPrefix(text, "+ "):
			add = c.AddInclude
			text = strings.TrimSpace(text[2:])
		case strings.HasPrefix(text, "- "):
			text = strings.TrimSpace(text[2:])
		}

		if err := add(text); err != nil {
			return fmt.Errorf("rule file %s line %d: %w", path, line, err)
		}
	}
	return sc.Err()
}
