// internal/transfer/direct.go
package transfer

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DirectCopy performs server-side copies between the two locations.
// No bytes pass through this process and no local disk is used, so one
// object costs a single backend operation.
type DirectCopy struct {
	store     ObjectStore
	workers   int
	retry     *RetryPolicy
	opTimeout time.Duration
	logger    *zap.Logger
}

// NewDirectCopy creates the direct-copy strategy.
func NewDirectCopy(store ObjectStore, workers int, retry *RetryPolicy,
	opTimeout time.Duration, logger *zap.Logger) *DirectCopy {

	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectCopy{
		store:     store,
		workers:   workers,
		retry:     retry,
		opTimeout: opTimeout,
		logger:    logger,
	}
}

// Name returns the strategy name.
func (d *DirectCopy) Name() string { return StrategyDirect }

// Execute copies every object in the batch, in parallel up to the
// configured sub-concurrency. Partial success is a normal outcome.
func (d *DirectCopy) Execute(ctx context.Context, batch Batch) BatchResult {
	start := time.Now()

	results := executeObjects(ctx, batch, d.workers, d.copyObject)

	return BatchResult{
		BatchID:  batch.BatchID,
		Results:  results,
		Strategy: StrategyDirect,
		Duration: time.Since(start),
	}
}

func (d *DirectCopy) copyObject(ctx context.Context, req TransferRequest) TransferResult {
	start := time.Now()

	attempts, err := d.retry.Do(ctx, func() error {
		opCtx, cancel := withOpTimeout(ctx, d.opTimeout)
		defer cancel()
		return d.store.Copy(opCtx, req.SourceURI, req.DestinationURI)
	})

	if err != nil {
		d.logger.Warn("direct copy failed",
			zap.String("source", req.SourceURI),
			zap.String("destination", req.DestinationURI),
			zap.Int("attempts", attempts),
			zap.Error(err))
		return failedResult(req, StrategyDirect, attempts, start, err)
	}

	bytes := req.SizeBytes
	if bytes < 0 {
		bytes = 0
	}

	return TransferResult{
		RequestID:        req.RequestID,
		Status:           StatusSucceeded,
		BytesTransferred: bytes,
		Duration:         time.Since(start),
		Strategy:         StrategyDirect,
		Attempts:         attempts,
	}
}
