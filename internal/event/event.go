package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	ReindexStarted Type = iota + 1
	ReindexComplete
	ScanStarted
	ScanComplete
	FileStarted
	FileCopied
	FileSkipped
	FileDuplicate
	FileMoved
	FileFailed
	VerifyStarted
	VerifyOK
	VerifyFailed
)

var typeNames = [...]string{
	ReindexStarted:  "ReindexStarted",
	ReindexComplete: "ReindexComplete",
	ScanStarted:     "ScanStarted",
	ScanComplete:    "ScanComplete",
	FileStarted:     "FileStarted",
	FileCopied:      "FileCopied",
	FileSkipped:     "FileSkipped",
	FileDuplicate:   "FileDuplicate",
	FileMoved:       "FileMoved",
	FileFailed:      "FileFailed",
	VerifyStarted:   "VerifyStarted",
	VerifyOK:        "VerifyOK",
	VerifyFailed:    "VerifyFailed",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event is a single progress event from the sync engine.
type Event struct {
	Type      Type
	Timestamp time.Time
	Path      string // source path, relative to the source root
	DstPath   string // destination path, relative to the destination root
	Size      int64
	Total     int64 // total files (ScanComplete, ReindexComplete)
	TotalSize int64 // total bytes (ScanComplete)
	Error     error
	WorkerID  int
}
