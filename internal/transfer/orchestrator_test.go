package transfer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(t *testing.T, mode Mode) Options {
	t.Helper()
	return Options{
		Mode:                    mode,
		MaxConcurrentBatches:    2,
		MaxBatchCount:           10,
		MaxBatchBytes:           1 << 30,
		SubConcurrency:          2,
		RetryMaxAttempts:        2,
		RetryBaseDelay:          time.Millisecond,
		RetryMaxDelay:           10 * time.Millisecond,
		CircuitFailureThreshold: 3,
		CircuitCooldown:         time.Minute,
		OperationTimeout:        time.Second,
		TempDir:                 t.TempDir(),
	}
}

func resultsByID(batches []BatchResult) map[string]TransferResult {
	m := make(map[string]TransferResult)
	for _, b := range batches {
		for _, r := range b.Results {
			m[r.RequestID] = r
		}
	}
	return m
}

type fakeJournal struct {
	mu      sync.Mutex
	records map[string]TransferResult
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{records: make(map[string]TransferResult)}
}

func (j *fakeJournal) Completed(requestID string) (TransferResult, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	r, ok := j.records[requestID]
	return r, ok
}

func (j *fakeJournal) Record(r TransferResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records[r.RequestID] = r
	return nil
}

func TestOrchestrator(t *testing.T) {
	t.Run("rejects invalid configuration before any work", func(t *testing.T) {
		opts := testOptions(t, ModeAuto)
		opts.MaxConcurrentBatches = 0

		_, err := NewOrchestrator(newFakeStore(), opts)

		var cfgErr *ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("direct mode, all succeed", func(t *testing.T) {
		store := newFakeStore()
		reqs := makeRequests(6, 100)
		for _, r := range reqs {
			store.put(r.SourceURI, []byte("data"))
		}

		orch, err := NewOrchestrator(store, testOptions(t, ModeDirect))
		require.NoError(t, err)

		run, err := orch.Submit(context.Background(), reqs)
		require.NoError(t, err)

		batches := run.Wait()
		byID := resultsByID(batches)

		require.Len(t, byID, 6)
		for _, r := range byID {
			assert.Equal(t, StatusSucceeded, r.Status)
			assert.Equal(t, StrategyDirect, r.Strategy)
		}
		for _, b := range batches {
			assert.False(t, b.FallbackOccurred)
		}

		snap := run.Snapshot()
		assert.Equal(t, int64(6), snap.TotalFiles)
		assert.Equal(t, int64(6), snap.OperationCount)
		assert.InDelta(t, 0.8, snap.EfficiencyRatio, 0.001)
	})

	t.Run("auto mode falls back after exhausted retries", func(t *testing.T) {
		store := newFakeStore()
		reqs := makeRequests(6, 4)
		for _, r := range reqs {
			store.put(r.SourceURI, []byte("data"))
			store.failCopy(r.SourceURI, errTransient, -1)
		}

		orch, err := NewOrchestrator(store, testOptions(t, ModeAuto))
		require.NoError(t, err)

		run, err := orch.Submit(context.Background(), reqs)
		require.NoError(t, err)

		batches := run.Wait()
		byID := resultsByID(batches)

		require.Len(t, byID, 6)
		for _, req := range reqs {
			r := byID[req.RequestID]
			assert.Equal(t, StatusFallenBack, r.Status)
			assert.Equal(t, StrategyStaged, r.Strategy)
			// Direct attempts ran per retry policy before falling back.
			assert.Equal(t, 2, store.copies(req.SourceURI))
			assert.True(t, store.has(req.DestinationURI))
		}

		require.Len(t, batches, 1)
		assert.True(t, batches[0].FallbackOccurred)
		assert.Equal(t, StrategyStaged, batches[0].Strategy)

		// Each object cost the staged pipeline plus the failed attempt.
		assert.Equal(t, int64(6*6), run.Snapshot().OperationCount)
	})

	t.Run("direct mode failures are terminal", func(t *testing.T) {
		store := newFakeStore()
		reqs := makeRequests(2, 4)
		for _, r := range reqs {
			store.put(r.SourceURI, []byte("data"))
			store.failCopy(r.SourceURI, errTransient, -1)
		}

		orch, err := NewOrchestrator(store, testOptions(t, ModeDirect))
		require.NoError(t, err)

		run, err := orch.Submit(context.Background(), reqs)
		require.NoError(t, err)

		byID := resultsByID(run.Wait())
		for _, req := range reqs {
			r := byID[req.RequestID]
			assert.Equal(t, StatusFailed, r.Status)
			assert.Equal(t, KindTransient, r.ErrorKind)
			assert.Equal(t, 0, store.downloads(req.SourceURI), "no fallback in direct mode")
		}
	})

	t.Run("permission errors never retry or fall back", func(t *testing.T) {
		store := newFakeStore()
		reqs := makeRequests(1, 4)
		store.put(reqs[0].SourceURI, []byte("data"))
		store.failCopy(reqs[0].SourceURI, &PermissionError{URI: reqs[0].SourceURI, Op: "copy"}, -1)

		orch, err := NewOrchestrator(store, testOptions(t, ModeAuto))
		require.NoError(t, err)

		run, err := orch.Submit(context.Background(), reqs)
		require.NoError(t, err)

		byID := resultsByID(run.Wait())
		r := byID[reqs[0].RequestID]

		assert.Equal(t, StatusFailed, r.Status)
		assert.Equal(t, KindPermission, r.ErrorKind)
		assert.Equal(t, 1, r.Attempts)
		assert.Equal(t, 1, store.copies(reqs[0].SourceURI))
		assert.Equal(t, 0, store.downloads(reqs[0].SourceURI))
	})

	t.Run("fallback re-attempts only the failed subset", func(t *testing.T) {
		store := newFakeStore()
		reqs := makeRequests(3, 4)
		for _, r := range reqs {
			store.put(r.SourceURI, []byte("data"))
		}
		store.failCopy(reqs[1].SourceURI, errTransient, -1)

		orch, err := NewOrchestrator(store, testOptions(t, ModeAuto))
		require.NoError(t, err)

		run, err := orch.Submit(context.Background(), reqs)
		require.NoError(t, err)

		batches := run.Wait()
		byID := resultsByID(batches)

		assert.Equal(t, StatusSucceeded, byID[reqs[0].RequestID].Status)
		assert.Equal(t, StatusFallenBack, byID[reqs[1].RequestID].Status)
		assert.Equal(t, StatusSucceeded, byID[reqs[2].RequestID].Status)

		// Objects that succeeded directly were not transferred again.
		assert.Equal(t, 0, store.downloads(reqs[0].SourceURI))
		assert.Equal(t, 1, store.downloads(reqs[1].SourceURI))
		assert.Equal(t, 0, store.downloads(reqs[2].SourceURI))

		require.Len(t, batches, 1)
		assert.True(t, batches[0].FallbackOccurred)
	})

	t.Run("open circuit skips the primary strategy", func(t *testing.T) {
		store := newFakeStore()
		opts := testOptions(t, ModeAuto)
		opts.CircuitFailureThreshold = 1
		opts.MaxBatchCount = 2

		reqs := makeRequests(4, 4)
		for _, r := range reqs {
			store.put(r.SourceURI, []byte("data"))
			store.failCopy(r.SourceURI, errTransient, -1)
		}

		orch, err := NewOrchestrator(store, opts)
		require.NoError(t, err)

		// First run trips the direct breaker for the destination.
		run, err := orch.Submit(context.Background(), reqs[:2])
		require.NoError(t, err)
		run.Wait()

		// Second run must not touch the direct strategy at all.
		run, err = orch.Submit(context.Background(), reqs[2:])
		require.NoError(t, err)
		byID := resultsByID(run.Wait())

		for _, req := range reqs[2:] {
			r := byID[req.RequestID]
			assert.Equal(t, StatusFallenBack, r.Status)
			assert.Equal(t, 0, store.copies(req.SourceURI), "primary strategy must be skipped")
		}

		// With the primary never attempted, only staged operations count.
		assert.Equal(t, int64(2*5), run.Snapshot().OperationCount)
	})

	t.Run("permission failures leave the circuit closed", func(t *testing.T) {
		store := newFakeStore()
		opts := testOptions(t, ModeAuto)
		opts.CircuitFailureThreshold = 1

		reqs := makeRequests(3, 4)
		for _, r := range reqs {
			store.put(r.SourceURI, []byte("data"))
		}
		for _, r := range reqs[:2] {
			store.failCopy(r.SourceURI, &PermissionError{URI: r.SourceURI, Op: "copy"}, -1)
		}

		orch, err := NewOrchestrator(store, opts)
		require.NoError(t, err)

		run, err := orch.Submit(context.Background(), reqs[:2])
		require.NoError(t, err)
		run.Wait()

		assert.Equal(t, StateClosed, orch.breakers.Get("s3://dst", StrategyDirect).State())

		// The next batch still goes through the primary strategy.
		run, err = orch.Submit(context.Background(), reqs[2:])
		require.NoError(t, err)
		byID := resultsByID(run.Wait())

		r := byID[reqs[2].RequestID]
		assert.Equal(t, StatusSucceeded, r.Status)
		assert.Equal(t, StrategyDirect, r.Strategy)
		assert.Equal(t, 1, store.copies(reqs[2].SourceURI))
	})

	t.Run("snapshots are scoped to their run", func(t *testing.T) {
		store := newFakeStore()
		reqs := makeRequests(5, 100)
		for _, r := range reqs {
			store.put(r.SourceURI, []byte("data"))
		}

		orch, err := NewOrchestrator(store, testOptions(t, ModeDirect))
		require.NoError(t, err)

		first, err := orch.Submit(context.Background(), reqs[:3])
		require.NoError(t, err)
		first.Wait()

		second, err := orch.Submit(context.Background(), reqs[3:])
		require.NoError(t, err)
		second.Wait()

		assert.Equal(t, int64(3), first.Snapshot().TotalFiles)
		assert.Equal(t, int64(2), second.Snapshot().TotalFiles)
		assert.Equal(t, int64(5), orch.Snapshot().TotalFiles)
	})

	t.Run("every request yields exactly one terminal result", func(t *testing.T) {
		store := newFakeStore()
		opts := testOptions(t, ModeAuto)
		opts.MaxBatchCount = 3

		reqs := makeRequests(10, 4)
		for i, r := range reqs {
			store.put(r.SourceURI, []byte("data"))
			if i%3 == 0 {
				store.failCopy(r.SourceURI, errTransient, -1)
			}
			if i%4 == 1 {
				store.failCopy(r.SourceURI, &PermissionError{URI: r.SourceURI, Op: "copy"}, -1)
			}
		}

		orch, err := NewOrchestrator(store, opts)
		require.NoError(t, err)

		run, err := orch.Submit(context.Background(), reqs)
		require.NoError(t, err)

		byID := resultsByID(run.Wait())
		require.Len(t, byID, 10)
		for _, req := range reqs {
			_, ok := byID[req.RequestID]
			assert.True(t, ok, "missing terminal result for %s", req.RequestID)
		}
	})

	t.Run("canceled context yields terminal canceled results", func(t *testing.T) {
		store := newFakeStore()
		reqs := makeRequests(4, 4)
		for _, r := range reqs {
			store.put(r.SourceURI, []byte("data"))
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		orch, err := NewOrchestrator(store, testOptions(t, ModeDirect))
		require.NoError(t, err)

		run, err := orch.Submit(ctx, reqs)
		require.NoError(t, err)

		byID := resultsByID(run.Wait())
		require.Len(t, byID, 4)
		for _, r := range byID {
			assert.Equal(t, StatusFailed, r.Status)
			assert.Equal(t, KindCanceled, r.ErrorKind)
		}
	})

	t.Run("journalled successes are not transferred again", func(t *testing.T) {
		store := newFakeStore()
		reqs := makeRequests(3, 4)
		for _, r := range reqs {
			store.put(r.SourceURI, []byte("data"))
		}

		j := newFakeJournal()
		require.NoError(t, j.Record(TransferResult{
			RequestID:        reqs[0].RequestID,
			Status:           StatusSucceeded,
			Strategy:         StrategyDirect,
			BytesTransferred: 4,
		}))

		orch, err := NewOrchestrator(store, testOptions(t, ModeDirect), WithJournal(j))
		require.NoError(t, err)

		run, err := orch.Submit(context.Background(), reqs)
		require.NoError(t, err)

		byID := resultsByID(run.Wait())
		require.Len(t, byID, 3)

		assert.Equal(t, StrategyJournal, byID[reqs[0].RequestID].Strategy)
		assert.Equal(t, 0, store.copies(reqs[0].SourceURI))
		assert.Equal(t, 1, store.copies(reqs[1].SourceURI))
		assert.Equal(t, 1, store.copies(reqs[2].SourceURI))
	})
}
