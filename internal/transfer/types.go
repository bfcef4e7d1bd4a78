// internal/transfer/types.go
package transfer

import (
	"time"
)

// SizeUnknown marks a request whose object size has not been probed yet.
const SizeUnknown int64 = -1

// Mode selects how the orchestrator dispatches strategies.
type Mode string

const (
	ModeAuto   Mode = "auto"   // direct first, staged fallback
	ModeDirect Mode = "direct" // direct only, failures are terminal
	ModeStaged Mode = "staged" // staged only
)

// Strategy names as recorded in results and telemetry.
const (
	StrategyDirect = "direct"
	StrategyStaged = "staged"
	// StrategyJournal marks results replayed from the journal of a
	// previous run instead of being transferred again.
	StrategyJournal = "journal"
)

// Status is the terminal state of a single transfer request.
type Status string

const (
	StatusSucceeded  Status = "Succeeded"
	StatusFailed     Status = "Failed"
	StatusFallenBack Status = "FallenBack"
)

// TransferRequest describes one object to move. Immutable once created.
type TransferRequest struct {
	RequestID      string
	SourceURI      string
	DestinationURI string
	// SizeBytes is the object size if known, SizeUnknown otherwise.
	SizeBytes int64
}

// Batch is a bounded group of requests executed under one strategy
// invocation. Owned by the orchestrator for one execution attempt.
type Batch struct {
	BatchID    string
	Requests   []TransferRequest
	TotalBytes int64
}

// TransferResult is the single terminal outcome of one request.
type TransferResult struct {
	RequestID        string
	Status           Status
	BytesTransferred int64
	Duration         time.Duration
	Strategy         string
	Attempts         int
	// PrimaryAttempts counts direct attempts made before falling back.
	// Zero when the primary strategy was skipped outright.
	PrimaryAttempts int
	// ErrorKind is set for failed results (see Kind).
	ErrorKind string
	Err       error
}

// BatchResult aggregates the terminal results of one batch.
type BatchResult struct {
	BatchID          string
	Results          []TransferResult
	Strategy         string
	Duration         time.Duration
	FallbackOccurred bool
}

// ErrorCount returns the number of failed results in the batch.
func (b BatchResult) ErrorCount() int {
	n := 0
	for _, r := range b.Results {
		if r.Status == StatusFailed {
			n++
		}
	}
	return n
}

// BytesTransferred returns the total bytes moved by the batch.
func (b BatchResult) BytesTransferred() int64 {
	var n int64
	for _, r := range b.Results {
		n += r.BytesTransferred
	}
	return n
}

// PerformanceSnapshot is a derived, read-only aggregate over recorded
// batch results. Ratios are computed at snapshot time, never stored.
type PerformanceSnapshot struct {
	TotalFiles     int64
	TotalBytes     int64
	OperationCount int64
	ErrorCount     int64
	ThroughputMBps float64
	// EfficiencyRatio is the share of backend operations avoided
	// relative to the all-staged baseline.
	EfficiencyRatio float64
}

// Journal records terminal results across runs so that resubmitted
// requests that already succeeded are not transferred again.
type Journal interface {
	Completed(requestID string) (TransferResult, bool)
	Record(result TransferResult) error
}
