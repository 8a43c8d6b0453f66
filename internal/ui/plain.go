package ui

import (
	"fmt"
	"io"
	"time"

	"photosync/internal/event"
	"photosync/internal/stats"
)

// plainPresenter prints one line per settled file to stdout and
// periodic progress to stderr.
type plainPresenter struct {
	w        io.Writer
	errW     io.Writer
	stats    *stats.Collector
	verbose  bool
	progress bool
}

func (p *plainPresenter) Run(events <-chan event.Event) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	beat := 0
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-ticker.C:
			p.stats.Tick()
			beat++
			if p.progress && beat%5 == 0 {
				p.printProgress()
			}
		}
	}
}

func (p *plainPresenter) handleEvent(ev event.Event) {
	switch ev.Type {
	case event.ReindexStarted:
		fmt.Fprintln(p.errW, "reindexing destination...")
	case event.ReindexComplete:
		fmt.Fprintf(p.errW, "index ready: %s entries\n", FormatCount(ev.Total))
	case event.FileCopied:
		fmt.Fprintf(p.w, "%s  %s  %s\n", ev.Path, FormatBytes(ev.Size), FormatRate(p.stats.RollingSpeed(5)))
	case event.FileDuplicate:
		fmt.Fprintf(p.w, "%s  duplicate of %s\n", ev.Path, ev.DstPath)
	case event.FileSkipped:
		if p.verbose {
			fmt.Fprintf(p.w, "%s  up to date\n", ev.Path)
		}
	case event.FileMoved:
		if p.verbose {
			fmt.Fprintf(p.w, "%s  source removed\n", ev.Path)
		}
	case event.FileFailed:
		errMsg := "error"
		if ev.Error != nil {
			errMsg = ev.Error.Error()
		}
		if ev.Path == "" {
			fmt.Fprintf(p.errW, "error: %s\n", errMsg)
			return
		}
		fmt.Fprintf(p.errW, "%s  %s\n", ev.Path, errMsg)
	case event.VerifyStarted:
		fmt.Fprintln(p.w, "verifying...")
	case event.VerifyFailed:
		fmt.Fprintf(p.w, "MISMATCH: %s\n", ev.DstPath)
	case event.VerifyOK:
		// silent in plain mode
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.stats.Snapshot()
	if snap.WalkDone && snap.FilesTotal > 0 {
		pct := float64(snap.Done()) / float64(snap.FilesTotal) * 100
		fmt.Fprintf(p.errW, "progress: %.0f%%  %s/%s files  %s  %s  eta %s\n",
			pct,
			FormatCount(snap.Done()), FormatCount(snap.FilesTotal),
			FormatBytes(snap.BytesCopied),
			FormatRate(p.stats.RollingSpeed(10)),
			FormatETA(p.stats.ETA()),
		)
		return
	}
	fmt.Fprintf(p.errW, "progress: %s files  %s copied\n",
		FormatCount(snap.Done()),
		FormatBytes(snap.BytesCopied),
	)
}

func (p *plainPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}
