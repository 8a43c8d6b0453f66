package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()
	const goroutines = 100
	const opsPerGoroutine = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for range opsPerGoroutine {
				c.AddFilesScanned(1)
				c.AddFilesHashed(1)
				c.AddFilesCopied(1)
				c.AddFilesFailed(1)
				c.AddFilesSkipped(1)
				c.AddDuplicates(1)
				c.AddBytesCopied(256)
				c.AddBytesHashed(512)
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	expected := int64(goroutines * opsPerGoroutine)
	assert.Equal(t, expected, s.FilesScanned)
	assert.Equal(t, expected, s.FilesHashed)
	assert.Equal(t, expected, s.FilesCopied)
	assert.Equal(t, expected, s.FilesFailed)
	assert.Equal(t, expected, s.FilesSkipped)
	assert.Equal(t, expected, s.Duplicates)
	assert.Equal(t, expected*256, s.BytesCopied)
	assert.Equal(t, expected*512, s.BytesHashed)
}

func TestSnapshotString(t *testing.T) {
	s := Snapshot{
		FilesScanned: 10,
		FilesCopied:  6,
		FilesSkipped: 2,
		Duplicates:   1,
		FilesMoved:   6,
		FilesFailed:  1,
		BytesCopied:  4096,
	}
	expected := "scanned=10 copied=6 skipped=2 duplicates=1 moved=6 failed=1 bytes=4096"
	assert.Equal(t, expected, s.String())
}

func TestSnapshotDone(t *testing.T) {
	s := Snapshot{FilesCopied: 3, FilesSkipped: 2, Duplicates: 1, FilesFailed: 1}
	assert.Equal(t, int64(7), s.Done())
}

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	assert.False(t, c.startTime.IsZero())
	assert.InDelta(t, 0, c.Elapsed().Seconds(), 1)
}

func TestWalkTotals(t *testing.T) {
	c := NewCollector()
	c.AddFilesTotal(60)
	c.AddFilesTotal(40)
	c.AddBytesTotal(1024 * 1024)

	s := c.Snapshot()
	assert.Equal(t, int64(100), s.FilesTotal)
	assert.Equal(t, int64(1024*1024), s.BytesTotal)
	assert.False(t, s.WalkDone)

	c.SetWalkDone()
	assert.True(t, c.Snapshot().WalkDone)
}

func TestPhase(t *testing.T) {
	c := NewCollector()
	assert.Equal(t, PhaseIdle, c.Snapshot().Phase)

	c.SetPhase(PhaseReindex)
	assert.Equal(t, PhaseReindex, c.Snapshot().Phase)
	c.SetPhase(PhaseSync)
	assert.Equal(t, PhaseSync, c.Snapshot().Phase)
	c.SetPhase(PhaseDone)
	assert.Equal(t, "done", c.Snapshot().Phase.String())
}

func TestTickAndRollingSpeed(t *testing.T) {
	c := NewCollector()

	// Simulate 5 seconds of 1000 bytes/sec.
	for range 5 {
		c.AddBytesCopied(1000)
		c.AddFilesCopied(10)
		c.Tick()
	}

	speed := c.RollingSpeed(5)
	assert.InDelta(t, 1000.0, speed, 0.01)

	fps := c.RollingFilesPerSec(5)
	assert.InDelta(t, 10.0, fps, 0.01)
}

func TestRollingSpeedPartialWindow(t *testing.T) {
	c := NewCollector()

	// Only 2 samples.
	c.AddBytesCopied(500)
	c.Tick()
	c.AddBytesCopied(500)
	c.Tick()

	// Ask for 10 but only have 2.
	speed := c.RollingSpeed(10)
	assert.InDelta(t, 500.0, speed, 0.01)
}

func TestRollingSpeedNoSamples(t *testing.T) {
	c := NewCollector()
	assert.Equal(t, 0.0, c.RollingSpeed(5))
}

func TestRingWraparound(t *testing.T) {
	c := NewCollector()

	for i := range ringSize + 10 {
		c.AddBytesCopied(int64(i + 1))
		c.Tick()
	}

	// Still answers from the last ringSize samples.
	assert.Greater(t, c.RollingSpeed(ringSize), 0.0)
}

func TestETA(t *testing.T) {
	c := NewCollector()
	c.AddFilesTotal(100)
	c.AddBytesTotal(10000)
	c.SetWalkDone()

	// Simulate copying 5000 bytes at 1000/sec.
	for range 5 {
		c.AddBytesCopied(1000)
		c.Tick()
	}

	eta := c.ETA()
	assert.InDelta(t, 5.0, eta.Seconds(), 1.0)
}

func TestETANoSpeed(t *testing.T) {
	c := NewCollector()
	c.AddBytesTotal(10000)
	assert.Equal(t, time.Duration(0), c.ETA())
}

func TestETAComplete(t *testing.T) {
	c := NewCollector()
	c.AddBytesTotal(1000)
	c.AddBytesCopied(1000)
	c.Tick()
	assert.Equal(t, time.Duration(0), c.ETA())
}

func TestSnapshotIncludesElapsed(t *testing.T) {
	c := NewCollector()
	time.Sleep(10 * time.Millisecond)
	s := c.Snapshot()
	assert.Greater(t, s.Elapsed, time.Duration(0))
}
