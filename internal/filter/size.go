package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// Suffixes use powers of 1024; "30K" and "30KiB" mean the same thing.
var sizeSuffixes = map[string]int64{
	"":    1,
	"B":   1,
	"K":   1 << 10,
	"KB":  1 << 10,
	"KIB": 1 << 10,
	"M":   1 << 20,
	"MB":  1 << 20,
	"MIB": 1 << 20,
	"G":   1 << 30,
	"GB":  1 << 30,
	"GIB": 1 << 30,
	"T":   1 << 40,
	"TB":  1 << 40,
	"TIB": 1 << 40,
}

// ParseSize converts a human-readable size like "30K" or "1.5G" into
// bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	split := len(s)
	for split > 0 {
		c := s[split-1]
		if (c >= '0' && c <= '9') || c == '.' {
			break
		}
		split--
	}
	num := s[:split]
	suffix := strings.ToUpper(strings.TrimSpace(s[split:]))

	mult, ok := sizeSuffixes[suffix]
	if !ok {
		return 0, fmt.Errorf("invalid size suffix in %q", s)
	}
	if num == "" {
		return 0, fmt.Errorf("invalid size: %q", s)
	}

	if n, err := strconv.ParseInt(num, 10, 64); err == nil {
		return n * mult, nil
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size: %q", s)
	}
	return int64(f * float64(mult)), nil
}
