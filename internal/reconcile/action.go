package reconcile

import (
	"fmt"

	"photosync/internal/scanner"
)

// DupPolicy says what happens to a source file whose content is
// already stored under a different name.
type DupPolicy int

const (
	// PolicyAlias stores the content once and records the duplicate's
	// name as an alias on the canonical entry. Nothing is written.
	PolicyAlias DupPolicy = iota
	// PolicyCopy materializes the duplicate under its own destination
	// name, reusing the known hash without re-hashing.
	PolicyCopy
)

func (p DupPolicy) String() string {
	if p == PolicyCopy {
		return "copy"
	}
	return "alias"
}

// ParsePolicy validates a policy name from config or flags.
func ParsePolicy(s string) (DupPolicy, error) {
	switch s {
	case "alias":
		return PolicyAlias, nil
	case "copy":
		return PolicyCopy, nil
	}
	return 0, fmt.Errorf("unknown duplicate policy %q (want alias or copy)", s)
}

// Kind classifies a decided action.
type Kind int

const (
	// Skip: content already stored under this file's identity.
	Skip Kind = iota + 1
	// Copy: new content, stream it to the destination.
	Copy
	// CopyDuplicate: known content under a new name, materialize a
	// second copy (PolicyCopy only).
	CopyDuplicate
	// AliasDuplicate: known content under a new name, alias recorded
	// (PolicyAlias only).
	AliasDuplicate
	// Error: the file failed before a decision could be made.
	Error
)

var kindNames = [...]string{
	Skip:           "skip",
	Copy:           "copy",
	CopyDuplicate:  "copy-duplicate",
	AliasDuplicate: "alias-duplicate",
	Error:          "error",
}

func (k Kind) String() string {
	if k > 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// NeedsExec reports whether the action requires destination I/O.
// Terminal actions are fully resolved the moment they are returned.
func (k Kind) NeedsExec() bool { return k == Copy || k == CopyDuplicate }

// Result is a hashed descriptor entering the decider. Err carries a
// hashing or read failure; the descriptor still occupies its slot in
// scan order so later decisions are not reordered by one bad file.
type Result struct {
	Desc scanner.FileDesc
	Hash string
	Err  error
}

// Action is a decision for one source file.
type Action struct {
	Kind   Kind
	Desc   scanner.FileDesc
	Hash   string
	DstRel string // identity-derived destination, before collision avoidance
	Err    error  // set for Kind Error
}

// Outcome reports how the executor finished a Copy or CopyDuplicate.
type Outcome struct {
	Action   Action
	FinalRel string // where the bytes actually landed
	Bytes    int64
	Existing bool // content was already materialized there; nothing written
	Err      error
}
