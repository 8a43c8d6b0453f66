package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"photosync/internal/event"
	"photosync/internal/hasher"
	"photosync/internal/index"
)

// VerifyConfig controls the index verification pass.
type VerifyConfig struct {
	Index   *index.Store
	DstRoot string
	Workers int
	Events  chan<- event.Event
}

// VerifyResult holds the outcome of a verification pass.
type VerifyResult struct {
	Checked int64
	Failed  int64
	Missing int64
	Errors  []VerifyError
}

// VerifyError records one entry whose stored bytes no longer match.
type VerifyError struct {
	DstPath string
	Want    string
	Got     string // digest, or "missing"/"unreadable"
}

// Verify re-hashes every indexed destination file and compares the
// digest against its entry, bypassing the stat cache. Aliases are not
// checked: under the alias policy they have no bytes of their own, and
// copy-policy duplicates answer to the same digests via re-index. It
// fans out to cfg.Workers goroutines.
func Verify(ctx context.Context, cfg VerifyConfig) VerifyResult {
	emitEvent(cfg.Events, event.Event{Type: event.VerifyStarted})

	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	entries := cfg.Index.Entries()
	taskCh := make(chan index.Entry, workers*2)

	var (
		mu     sync.Mutex
		result VerifyResult
		wg     sync.WaitGroup
	)

	fail := func(e index.Entry, got string, missing bool) {
		mu.Lock()
		result.Failed++
		if missing {
			result.Missing++
		}
		result.Errors = append(result.Errors, VerifyError{DstPath: e.DstPath, Want: e.Hash, Got: got})
		mu.Unlock()
		emitEvent(cfg.Events, event.Event{Type: event.VerifyFailed, DstPath: e.DstPath})
	}

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range taskCh {
				select {
				case <-ctx.Done():
					return
				default:
				}

				abs := filepath.Join(cfg.DstRoot, filepath.FromSlash(e.DstPath))
				if _, err := os.Stat(abs); err != nil {
					fail(e, "missing", true)
					continue
				}

				algo, err := hasher.Parse(hashAlgoOf(e.Hash))
				if err != nil {
					fail(e, "unknown algorithm", false)
					continue
				}

				got, _, err := hasher.New(algo).HashFile(ctx, abs)
				if err != nil {
					fail(e, "unreadable", false)
					continue
				}

				mu.Lock()
				result.Checked++
				mu.Unlock()
				if got != e.Hash {
					fail(e, got, false)
					continue
				}
				emitEvent(cfg.Events, event.Event{Type: event.VerifyOK, DstPath: e.DstPath})
			}
		}()
	}

	for _, e := range entries {
		select {
		case <-ctx.Done():
		case taskCh <- e:
			continue
		}
		break
	}
	close(taskCh)
	wg.Wait()

	return result
}

// hashAlgoOf extracts the algorithm prefix from an "algo:hex" digest.
func hashAlgoOf(digest string) string {
	for i := range digest {
		if digest[i] == ':' {
			return digest[:i]
		}
	}
	return digest
}

func emitEvent(ch chan<- event.Event, e event.Event) {
	if ch == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case ch <- e:
	default:
	}
}
