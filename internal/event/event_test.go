package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypeString(t *testing.T) {
	tests := []struct {
		want string
		typ  Type
	}{
		{want: "ReindexStarted", typ: ReindexStarted},
		{want: "ReindexComplete", typ: ReindexComplete},
		{want: "ScanStarted", typ: ScanStarted},
		{want: "ScanComplete", typ: ScanComplete},
		{want: "FileStarted", typ: FileStarted},
		{want: "FileCopied", typ: FileCopied},
		{want: "FileSkipped", typ: FileSkipped},
		{want: "FileDuplicate", typ: FileDuplicate},
		{want: "FileMoved", typ: FileMoved},
		{want: "FileFailed", typ: FileFailed},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.String())
		})
	}
}

func TestTypeStringUnknown(t *testing.T) {
	assert.Equal(t, "Unknown", Type(999).String())
	assert.Equal(t, "Unknown", Type(0).String())
}

func TestEventFields(t *testing.T) {
	now := time.Now()
	e := Event{
		Type:      FileCopied,
		Timestamp: now,
		Path:      "2024/IMG_0001.jpg",
		DstPath:   "2024/06/IMG_0001.jpg",
		Size:      1024,
		WorkerID:  3,
	}
	assert.Equal(t, FileCopied, e.Type)
	assert.Equal(t, now, e.Timestamp)
	assert.Equal(t, "2024/IMG_0001.jpg", e.Path)
	assert.Equal(t, "2024/06/IMG_0001.jpg", e.DstPath)
	assert.Equal(t, int64(1024), e.Size)
	assert.Equal(t, 3, e.WorkerID)
}
