package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const ringSize = 60

// Phase names the stage a run is in.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseReindex
	PhaseSync
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseReindex:
		return "reindex"
	case PhaseSync:
		return "sync"
	case PhaseDone:
		return "done"
	default:
		return "idle"
	}
}

// Collector tracks run statistics using lock-free atomic counters.
// Workers write, the presenter reads; neither ever blocks the other.
type Collector struct {
	filesScanned   atomic.Int64
	filesFiltered  atomic.Int64
	filesHashed    atomic.Int64
	bytesHashed    atomic.Int64
	filesCopied    atomic.Int64
	bytesCopied    atomic.Int64
	filesSkipped   atomic.Int64
	duplicates     atomic.Int64
	filesMoved     atomic.Int64
	filesFailed    atomic.Int64
	filesReindexed atomic.Int64
	filesTotal     atomic.Int64
	bytesTotal     atomic.Int64
	walkDone       atomic.Bool
	phase          atomic.Int32
	startTime      time.Time

	// Ring buffer, written only by the presenter's Tick(), not workers.
	mu          sync.Mutex
	throughput  [ringSize]int64 // bytes delta per second
	filesPerSec [ringSize]int64 // files delta per second
	ringIdx     int
	ringCount   int
	lastBytes   int64
	lastFiles   int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

func (c *Collector) AddFilesScanned(n int64)   { c.filesScanned.Add(n) }
func (c *Collector) AddFilesFiltered(n int64)  { c.filesFiltered.Add(n) }
func (c *Collector) AddFilesHashed(n int64)    { c.filesHashed.Add(n) }
func (c *Collector) AddBytesHashed(n int64)    { c.bytesHashed.Add(n) }
func (c *Collector) AddFilesCopied(n int64)    { c.filesCopied.Add(n) }
func (c *Collector) AddBytesCopied(n int64)    { c.bytesCopied.Add(n) }
func (c *Collector) AddFilesSkipped(n int64)   { c.filesSkipped.Add(n) }
func (c *Collector) AddDuplicates(n int64)     { c.duplicates.Add(n) }
func (c *Collector) AddFilesMoved(n int64)     { c.filesMoved.Add(n) }
func (c *Collector) AddFilesFailed(n int64)    { c.filesFailed.Add(n) }
func (c *Collector) AddFilesReindexed(n int64) { c.filesReindexed.Add(n) }

// AddFilesTotal grows the known total while the walk is still running.
func (c *Collector) AddFilesTotal(n int64) { c.filesTotal.Add(n) }

// AddBytesTotal grows the known byte total while the walk is running.
func (c *Collector) AddBytesTotal(n int64) { c.bytesTotal.Add(n) }

// SetWalkDone marks the source walk complete: from here on the totals
// are exact, not running estimates.
func (c *Collector) SetWalkDone() { c.walkDone.Store(true) }

// SetPhase records the current run phase.
func (c *Collector) SetPhase(p Phase) { c.phase.Store(int32(p)) }

// Snapshot is a point-in-time read of all counters. WalkDone tells
// consumers whether FilesTotal/BytesTotal are final ("N of M") or
// still growing ("total unknown").
type Snapshot struct {
	FilesScanned   int64
	FilesFiltered  int64
	FilesHashed    int64
	BytesHashed    int64
	FilesCopied    int64
	BytesCopied    int64
	FilesSkipped   int64
	Duplicates     int64
	FilesMoved     int64
	FilesFailed    int64
	FilesReindexed int64
	FilesTotal     int64
	BytesTotal     int64
	WalkDone       bool
	Phase          Phase
	Elapsed        time.Duration
}

// Done returns how many files have reached a terminal state.
func (s Snapshot) Done() int64 {
	return s.FilesCopied + s.FilesSkipped + s.Duplicates + s.FilesFailed
}

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		FilesScanned:   c.filesScanned.Load(),
		FilesFiltered:  c.filesFiltered.Load(),
		FilesHashed:    c.filesHashed.Load(),
		BytesHashed:    c.bytesHashed.Load(),
		FilesCopied:    c.filesCopied.Load(),
		BytesCopied:    c.bytesCopied.Load(),
		FilesSkipped:   c.filesSkipped.Load(),
		Duplicates:     c.duplicates.Load(),
		FilesMoved:     c.filesMoved.Load(),
		FilesFailed:    c.filesFailed.Load(),
		FilesReindexed: c.filesReindexed.Load(),
		FilesTotal:     c.filesTotal.Load(),
		BytesTotal:     c.bytesTotal.Load(),
		WalkDone:       c.walkDone.Load(),
		Phase:          Phase(c.phase.Load()),
		Elapsed:        c.Elapsed(),
	}
}

// Tick snapshots byte/file deltas into the ring buffer. Called 1/sec by the presenter.
func (c *Collector) Tick() {
	currentBytes := c.bytesCopied.Load()
	currentFiles := c.filesCopied.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	bytesDelta := currentBytes - c.lastBytes
	filesDelta := currentFiles - c.lastFiles
	c.lastBytes = currentBytes
	c.lastFiles = currentFiles

	c.throughput[c.ringIdx] = bytesDelta
	c.filesPerSec[c.ringIdx] = filesDelta
	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average bytes/sec over the last n seconds of samples.
func (c *Collector) RollingSpeed(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.throughput[:], seconds)
}

// RollingFilesPerSec returns average files/sec over the last n seconds.
func (c *Collector) RollingFilesPerSec(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.filesPerSec[:], seconds)
}

func (c *Collector) rollingAvg(buf []int64, n int) float64 {
	count := n
	if count > c.ringCount {
		count = c.ringCount
	}
	if count == 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += buf[idx]
	}
	return float64(sum) / float64(count)
}

// ETA estimates remaining time from rolling speed and remaining
// bytes. Only meaningful once the walk is done and totals are final.
func (c *Collector) ETA() time.Duration {
	speed := c.RollingSpeed(10)
	if speed <= 0 {
		return 0
	}
	remaining := c.bytesTotal.Load() - c.bytesCopied.Load()
	if remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining)/speed) * time.Second
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"scanned=%d copied=%d skipped=%d duplicates=%d moved=%d failed=%d bytes=%d",
		s.FilesScanned, s.FilesCopied, s.FilesSkipped, s.Duplicates,
		s.FilesMoved, s.FilesFailed, s.BytesCopied,
	)
}
