package ui

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"photosync/internal/stats"
)

// FormatBytes renders a byte count for humans.
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// FormatRate renders a bytes-per-second rate.
func FormatRate(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	return humanize.Bytes(uint64(bytesPerSec)) + "/s"
}

// FormatCount renders an integer with comma separators.
func FormatCount(n int64) string {
	return humanize.Comma(n)
}

// FormatETA renders a duration as an ETA string, "--" when unknown.
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "--"
	}
	d = d.Round(time.Second)

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// FormatDuration renders an elapsed time compactly.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return FormatETA(d)
}

// CompletionSummary builds the final summary line from a snapshot.
// Format: done ✓  copied 48,917  duplicates 120  skipped 3,004  size 2.1 GB  avg 641 MB/s  time 3m17s  errors 0
func CompletionSummary(snap stats.Snapshot) string {
	avgSpeed := 0.0
	if snap.Elapsed.Seconds() > 0 {
		avgSpeed = float64(snap.BytesCopied) / snap.Elapsed.Seconds()
	}

	icon := "✓"
	if snap.FilesFailed > 0 {
		icon = "✗"
	}

	line := fmt.Sprintf("done %s  copied %s  duplicates %s  skipped %s  size %s  avg %s  time %s",
		icon,
		FormatCount(snap.FilesCopied),
		FormatCount(snap.Duplicates),
		FormatCount(snap.FilesSkipped),
		FormatBytes(snap.BytesCopied),
		FormatRate(avgSpeed),
		FormatDuration(snap.Elapsed),
	)
	if snap.FilesMoved > 0 {
		line += fmt.Sprintf("  moved %s", FormatCount(snap.FilesMoved))
	}
	line += fmt.Sprintf("  errors %d", snap.FilesFailed)
	return line
}
