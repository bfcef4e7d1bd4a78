// internal/storage/throttle.go
package storage

import (
	"context"
	"os"
	"sync"

	"golang.org/x/time/rate"

	"github.com/FairForge/stevedore/internal/transfer"
)

// ThrottledStore wraps any object store with bandwidth throttling on the
// operations that route bytes through this process. Server-side copies
// and existence probes pass through untouched.
type ThrottledStore struct {
	backend transfer.ObjectStore

	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewThrottledStore limits staged downloads and uploads to bytesPerSecond.
func NewThrottledStore(backend transfer.ObjectStore, bytesPerSecond int) *ThrottledStore {
	return &ThrottledStore{
		backend: backend,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), bytesPerSecond),
	}
}

// SetLimit adjusts the bandwidth budget at runtime.
func (t *ThrottledStore) SetLimit(bytesPerSecond int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limiter.SetLimit(rate.Limit(bytesPerSecond))
	t.limiter.SetBurst(bytesPerSecond)
}

func (t *ThrottledStore) waitFor(ctx context.Context, bytes int64) error {
	t.mu.Lock()
	limiter := t.limiter
	t.mu.Unlock()

	burst := limiter.Burst()
	for bytes > 0 {
		n := bytes
		if n > int64(burst) {
			n = int64(burst)
		}
		if err := limiter.WaitN(ctx, int(n)); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}

// Copy passes through: no bytes cross this process.
func (t *ThrottledStore) Copy(ctx context.Context, src, dst string) error {
	return t.backend.Copy(ctx, src, dst)
}

// Download fetches the object, then charges its size against the budget.
func (t *ThrottledStore) Download(ctx context.Context, src, localPath string) error {
	if err := t.backend.Download(ctx, src, localPath); err != nil {
		return err
	}
	info, err := os.Stat(localPath)
	if err != nil {
		return err
	}
	return t.waitFor(ctx, info.Size())
}

// Upload charges the file size against the budget before sending.
func (t *ThrottledStore) Upload(ctx context.Context, localPath, dst string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return err
	}
	if err := t.waitFor(ctx, info.Size()); err != nil {
		return err
	}
	return t.backend.Upload(ctx, localPath, dst)
}

// Exists passes through.
func (t *ThrottledStore) Exists(ctx context.Context, uri string) (bool, error) {
	return t.backend.Exists(ctx, uri)
}
