// internal/transfer/metrics.go
package transfer

import (
	"sync/atomic"
)

// Backend operations charged per object by each strategy. The staged
// pipeline (exists/download/verify/upload/cleanup) is the baseline the
// efficiency ratio is measured against.
const (
	directOpsPerObject = 1
	stagedOpsPerObject = 5
)

// Collector accumulates per-operation counters across batches. It is
// safe for concurrent use; all accumulation goes through atomics and
// derived ratios are computed lazily at Snapshot time.
type Collector struct {
	files      atomic.Int64
	bytes      atomic.Int64
	operations atomic.Int64
	errors     atomic.Int64
	wallNanos  atomic.Int64
}

// NewCollector creates a metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Record accumulates one completed batch.
func (c *Collector) Record(res BatchResult) {
	c.wallNanos.Add(int64(res.Duration))

	for _, r := range res.Results {
		c.files.Add(1)
		c.bytes.Add(r.BytesTransferred)
		c.operations.Add(operationsFor(r))
		if r.Status == StatusFailed {
			c.errors.Add(1)
		}
	}
}

// Snapshot derives the current performance aggregate.
func (c *Collector) Snapshot() PerformanceSnapshot {
	files := c.files.Load()
	bytes := c.bytes.Load()
	ops := c.operations.Load()
	errs := c.errors.Load()
	nanos := c.wallNanos.Load()

	snap := PerformanceSnapshot{
		TotalFiles:     files,
		TotalBytes:     bytes,
		OperationCount: ops,
		ErrorCount:     errs,
	}

	if nanos > 0 {
		seconds := float64(nanos) / 1e9
		snap.ThroughputMBps = float64(bytes) / (1024 * 1024) / seconds
	}

	if files > 0 {
		baseline := float64(files * stagedOpsPerObject)
		snap.EfficiencyRatio = 1 - float64(ops)/baseline
	}

	return snap
}

// operationsFor returns the backend operations a terminal result cost.
// Fallen-back objects are charged the failed direct attempt as well,
// but only when one was actually issued; an open circuit routes the
// object straight to staged without touching the primary backend.
func operationsFor(r TransferResult) int64 {
	// Fast failures never reached the backend.
	if r.ErrorKind == KindCircuitOpen || r.ErrorKind == KindCanceled {
		return 0
	}

	switch r.Strategy {
	case StrategyDirect:
		return directOpsPerObject
	case StrategyStaged:
		if r.Status == StatusFallenBack && r.PrimaryAttempts > 0 {
			return stagedOpsPerObject + directOpsPerObject
		}
		return stagedOpsPerObject
	default:
		// Journal replays touch no backend.
		return 0
	}
}
