package ui

import "golang.org/x/term"

// IsTTY reports whether the file descriptor refers to a terminal.
// Piped output gets plain lines without the progress heartbeat.
func IsTTY(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}
