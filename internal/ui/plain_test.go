package ui

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photosync/internal/event"
	"photosync/internal/stats"
)

func runPresenter(t *testing.T, p Presenter, evs ...event.Event) {
	t.Helper()
	ch := make(chan event.Event, len(evs))
	for _, ev := range evs {
		ch <- ev
	}
	close(ch)
	require.NoError(t, p.Run(ch))
}

func TestPlainPresenterLines(t *testing.T) {
	var out, errOut bytes.Buffer
	p := NewPresenter(Config{Writer: &out, ErrWriter: &errOut, Stats: stats.NewCollector()})

	runPresenter(t, p,
		event.Event{Type: event.ReindexComplete, Total: 12},
		event.Event{Type: event.FileCopied, Path: "2024/a.jpg", Size: 2048},
		event.Event{Type: event.FileDuplicate, Path: "2024/b.jpg", DstPath: "2024/a.jpg"},
		event.Event{Type: event.FileSkipped, Path: "2024/c.jpg"},
		event.Event{Type: event.FileFailed, Path: "2024/d.jpg", Error: errors.New("read source: i/o error")},
	)

	assert.Contains(t, out.String(), "2024/a.jpg")
	assert.Contains(t, out.String(), "duplicate of 2024/a.jpg")
	assert.NotContains(t, out.String(), "2024/c.jpg", "skips are silent unless verbose")
	assert.Contains(t, errOut.String(), "index ready: 12 entries")
	assert.Contains(t, errOut.String(), "2024/d.jpg  read source: i/o error")
}

func TestPlainPresenterVerboseShowsSkips(t *testing.T) {
	var out, errOut bytes.Buffer
	p := NewPresenter(Config{Writer: &out, ErrWriter: &errOut, Stats: stats.NewCollector(), Verbose: true})

	runPresenter(t, p,
		event.Event{Type: event.FileSkipped, Path: "2024/c.jpg"},
		event.Event{Type: event.FileMoved, Path: "2024/c.jpg"},
	)

	assert.Contains(t, out.String(), "2024/c.jpg  up to date")
	assert.Contains(t, out.String(), "2024/c.jpg  source removed")
}

func TestPlainPresenterVerifyLines(t *testing.T) {
	var out, errOut bytes.Buffer
	p := NewPresenter(Config{Writer: &out, ErrWriter: &errOut, Stats: stats.NewCollector()})

	runPresenter(t, p,
		event.Event{Type: event.VerifyStarted},
		event.Event{Type: event.VerifyOK, DstPath: "2024/a.jpg"},
		event.Event{Type: event.VerifyFailed, DstPath: "2024/b.jpg"},
	)

	assert.Contains(t, out.String(), "verifying...")
	assert.NotContains(t, out.String(), "2024/a.jpg", "verify hits are silent")
	assert.Contains(t, out.String(), "MISMATCH: 2024/b.jpg")
}

func TestQuietPresenterStaysSilent(t *testing.T) {
	p := NewPresenter(Config{Quiet: true, Stats: stats.NewCollector()})

	runPresenter(t, p,
		event.Event{Type: event.FileCopied, Path: "a.jpg"},
		event.Event{Type: event.FileFailed, Path: "b.jpg", Error: errors.New("boom")},
	)
	assert.Empty(t, p.Summary())
}

func TestPlainSummaryReflectsStats(t *testing.T) {
	st := stats.NewCollector()
	st.AddFilesCopied(2)
	st.AddBytesCopied(1 << 20)
	var out bytes.Buffer
	p := NewPresenter(Config{Writer: &out, ErrWriter: &out, Stats: st})

	runPresenter(t, p)
	assert.Contains(t, p.Summary(), "copied 2")
}
