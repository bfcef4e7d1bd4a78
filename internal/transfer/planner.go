// internal/transfer/planner.go
package transfer

import (
	"github.com/google/uuid"
)

// Plan groups requests into batches bounded by count and bytes,
// preserving input order. A request whose known size already exceeds
// maxBytes becomes its own singleton batch; objects are never split.
// Requests with unknown sizes count toward the count limit only.
func Plan(requests []TransferRequest, maxCount int, maxBytes int64) ([]Batch, error) {
	if maxCount <= 0 {
		return nil, &ConfigurationError{Field: "maxBatchCount", Reason: "must be positive"}
	}
	if maxBytes <= 0 {
		return nil, &ConfigurationError{Field: "maxBatchBytes", Reason: "must be positive"}
	}

	var batches []Batch
	var current []TransferRequest
	var currentBytes int64

	flush := func() {
		if len(current) == 0 {
			return
		}
		batches = append(batches, newBatch(current, currentBytes))
		current = nil
		currentBytes = 0
	}

	for _, req := range requests {
		size := req.SizeBytes
		if size < 0 {
			size = 0
		}

		// Oversized objects ride alone rather than being rejected.
		if size > maxBytes {
			flush()
			batches = append(batches, newBatch([]TransferRequest{req}, size))
			continue
		}

		if len(current) >= maxCount || (len(current) > 0 && currentBytes+size > maxBytes) {
			flush()
		}

		current = append(current, req)
		currentBytes += size
	}
	flush()

	return batches, nil
}

func newBatch(requests []TransferRequest, totalBytes int64) Batch {
	return Batch{
		BatchID:    uuid.NewString(),
		Requests:   requests,
		TotalBytes: totalBytes,
	}
}
