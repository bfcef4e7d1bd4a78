// internal/transfer/strategy.go
package transfer

import (
	"context"
	"sync"
	"time"
)

// ObjectStore is the object-store client capability the engine consumes.
// The engine is agnostic to the concrete backend.
type ObjectStore interface {
	Copy(ctx context.Context, src, dst string) error
	Download(ctx context.Context, src, localPath string) error
	Upload(ctx context.Context, localPath, dst string) error
	Exists(ctx context.Context, uri string) (bool, error)
}

// Strategy executes one batch and reports a terminal result per object.
// A single object's failure never aborts the rest of the batch.
type Strategy interface {
	Name() string
	Execute(ctx context.Context, batch Batch) BatchResult
}

// executeObjects runs fn for every request in the batch, bounded by the
// strategy's sub-concurrency. Results keep the request order.
func executeObjects(ctx context.Context, batch Batch, workers int,
	fn func(context.Context, TransferRequest) TransferResult) []TransferResult {

	if workers <= 0 {
		workers = 1
	}

	results := make([]TransferResult, len(batch.Requests))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, req := range batch.Requests {
		wg.Add(1)
		go func(idx int, r TransferRequest) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = fn(ctx, r)
		}(i, req)
	}

	wg.Wait()
	return results
}

// withOpTimeout scopes one object-level operation.
func withOpTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// failedResult builds the terminal result for an unsuccessful object.
func failedResult(req TransferRequest, strategy string, attempts int,
	start time.Time, err error) TransferResult {

	return TransferResult{
		RequestID: req.RequestID,
		Status:    StatusFailed,
		Duration:  time.Since(start),
		Strategy:  strategy,
		Attempts:  attempts,
		ErrorKind: Kind(err),
		Err:       err,
	}
}
