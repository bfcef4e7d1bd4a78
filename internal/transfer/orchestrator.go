// internal/transfer/orchestrator.go
package transfer

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FairForge/stevedore/internal/telemetry"
)

// Options are the validated engine settings supplied by the caller's
// configuration provider.
type Options struct {
	Mode                    Mode
	MaxConcurrentBatches    int
	MaxBatchCount           int
	MaxBatchBytes           int64
	SubConcurrency          int
	RetryMaxAttempts        int
	RetryBaseDelay          time.Duration
	RetryMaxDelay           time.Duration
	CircuitFailureThreshold int
	CircuitCooldown         time.Duration
	OperationTimeout        time.Duration
	TempDir                 string
}

// Validate fails fast before any transfer begins.
func (o Options) Validate() error {
	switch o.Mode {
	case ModeAuto, ModeDirect, ModeStaged:
	default:
		return &ConfigurationError{Field: "mode", Reason: "must be auto, direct or staged"}
	}
	if o.MaxConcurrentBatches <= 0 {
		return &ConfigurationError{Field: "maxConcurrentBatches", Reason: "must be positive"}
	}
	if o.MaxBatchCount <= 0 {
		return &ConfigurationError{Field: "maxBatchCount", Reason: "must be positive"}
	}
	if o.MaxBatchBytes <= 0 {
		return &ConfigurationError{Field: "maxBatchBytes", Reason: "must be positive"}
	}
	if o.SubConcurrency <= 0 {
		return &ConfigurationError{Field: "subConcurrency", Reason: "must be positive"}
	}
	if o.RetryMaxAttempts <= 0 {
		return &ConfigurationError{Field: "retryMaxAttempts", Reason: "must be positive"}
	}
	if o.RetryBaseDelay < 0 {
		return &ConfigurationError{Field: "retryBaseDelayMs", Reason: "must not be negative"}
	}
	if o.CircuitFailureThreshold <= 0 {
		return &ConfigurationError{Field: "circuitFailureThreshold", Reason: "must be positive"}
	}
	if o.CircuitCooldown <= 0 {
		return &ConfigurationError{Field: "circuitCooldownMs", Reason: "must be positive"}
	}
	return nil
}

// Orchestrator plans batches, dispatches them to strategies with bounded
// concurrency, triggers fallback on strategy failure and aggregates
// results. Every submitted request yields exactly one terminal result.
type Orchestrator struct {
	opts     Options
	direct   Strategy
	staged   Strategy
	breakers *BreakerTable
	metrics  *Collector
	sink     telemetry.Sink
	journal  Journal
	logger   *zap.Logger
}

// OrchestratorOption configures the orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithSink sets the telemetry sink.
func WithSink(sink telemetry.Sink) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sink = sink
	}
}

// WithJournal enables cross-run idempotency bookkeeping.
func WithJournal(journal Journal) OrchestratorOption {
	return func(o *Orchestrator) {
		o.journal = journal
	}
}

// NewOrchestrator creates the engine over the given object-store client.
func NewOrchestrator(store ObjectStore, opts Options, oo ...OrchestratorOption) (*Orchestrator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		opts:    opts,
		metrics: NewCollector(),
		sink:    telemetry.NopSink{},
		logger:  zap.NewNop(),
	}

	for _, opt := range oo {
		opt(o)
	}

	retry := NewRetryPolicy(
		WithMaxAttempts(opts.RetryMaxAttempts),
		WithBaseDelay(opts.RetryBaseDelay),
		WithMaxDelay(opts.RetryMaxDelay),
		WithRetryLogger(o.logger),
	)

	o.direct = NewDirectCopy(store, opts.SubConcurrency, retry, opts.OperationTimeout, o.logger)
	o.staged = NewStaged(store, opts.SubConcurrency, retry, opts.OperationTimeout, opts.TempDir, o.logger)
	o.breakers = NewBreakerTable(
		WithFailureThreshold(opts.CircuitFailureThreshold),
		WithCooldown(opts.CircuitCooldown),
		WithBreakerLogger(o.logger),
	)

	return o, nil
}

// Run is a handle to one submitted set of transfer requests.
type Run struct {
	id      string
	cancel  context.CancelFunc
	done    chan struct{}
	results []BatchResult
	metrics *Collector
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Wait blocks until every batch has reached a terminal state and returns
// the complete set of batch results.
func (r *Run) Wait() []BatchResult {
	<-r.done
	return r.results
}

// Cancel aborts in-flight work. Staged transfers still run their
// temporary-storage cleanup before honoring cancellation.
func (r *Run) Cancel() { r.cancel() }

// Snapshot derives the performance aggregate of this run only.
func (r *Run) Snapshot() PerformanceSnapshot { return r.metrics.Snapshot() }

// Snapshot derives the engine-lifetime aggregate across all runs.
func (o *Orchestrator) Snapshot() PerformanceSnapshot { return o.metrics.Snapshot() }

// Submit plans the requests into batches and starts executing them on a
// bounded worker pool. It returns immediately with a run handle.
func (o *Orchestrator) Submit(ctx context.Context, requests []TransferRequest) (*Run, error) {
	pending := requests
	var replayed []TransferResult

	if o.journal != nil {
		pending = make([]TransferRequest, 0, len(requests))
		for _, req := range requests {
			if prior, ok := o.journal.Completed(req.RequestID); ok && prior.Status != StatusFailed {
				prior.Strategy = StrategyJournal
				replayed = append(replayed, prior)
				continue
			}
			pending = append(pending, req)
		}
	}

	batches, err := Plan(pending, o.opts.MaxBatchCount, o.opts.MaxBatchBytes)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	runID := uuid.NewString()

	total := len(batches)
	if len(replayed) > 0 {
		total++
	}
	results := make([]BatchResult, total)
	if len(replayed) > 0 {
		results[len(batches)] = BatchResult{
			BatchID:  "replay-" + runID,
			Results:  replayed,
			Strategy: StrategyJournal,
		}
	}

	runMetrics := NewCollector()
	run := &Run{
		id:      runID,
		cancel:  cancel,
		done:    make(chan struct{}),
		metrics: runMetrics,
	}

	workers := o.opts.MaxConcurrentBatches
	if workers > len(batches) {
		workers = len(batches)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = o.executeBatch(runCtx, batches[idx], runMetrics)
			}
		}()
	}

	go func() {
		for i := range batches {
			jobs <- i
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		run.results = results
		cancel()
		close(run.done)
	}()

	return run, nil
}

// executeBatch drives one batch through its state machine:
// Pending -> Executing -> {Succeeded|PartiallyFailed|FailedPendingFallback}
// -> (FallingBack -> Executing(staged)) -> Terminal.
func (o *Orchestrator) executeBatch(ctx context.Context, batch Batch, rc *Collector) BatchResult {
	start := time.Now()

	if ctx.Err() != nil {
		return o.finish(canceledBatch(batch), start, rc)
	}

	dest := destinationKey(batch)

	switch o.opts.Mode {
	case ModeDirect:
		return o.finish(o.runGuarded(ctx, o.direct, batch, dest), start, rc)
	case ModeStaged:
		return o.finish(o.runGuarded(ctx, o.staged, batch, dest), start, rc)
	}

	// Auto mode: direct first, staged for whatever transiently failed.
	breaker := o.breakers.Get(dest, StrategyDirect)
	if err := breaker.Allow(); err != nil {
		o.logger.Warn("direct circuit open, skipping to staged",
			zap.String("batchID", batch.BatchID),
			zap.String("destination", dest))
		o.emitFallback(batch.BatchID, len(batch.Requests), batch.TotalBytes)

		res := o.runGuarded(ctx, o.staged, batch, dest)
		markFallenBack(res.Results)
		res.FallbackOccurred = true
		return o.finish(res, start, rc)
	}

	res := o.direct.Execute(ctx, batch)
	o.recordBreaker(breaker, res)

	failed := transientFailures(batch, res.Results)
	if len(failed) > 0 {
		o.logger.Info("falling back failed subset to staged",
			zap.String("batchID", batch.BatchID),
			zap.Int("objects", len(failed)))
		o.emitFallback(batch.BatchID, len(failed), 0)

		sub := Batch{BatchID: batch.BatchID, Requests: failed}
		subRes := o.runGuarded(ctx, o.staged, sub, dest)
		markFallenBack(subRes.Results)
		carryPrimaryAttempts(res.Results, subRes.Results)

		mergeResults(res.Results, subRes.Results)
		res.Strategy = StrategyStaged
		res.FallbackOccurred = true
	}

	return o.finish(res, start, rc)
}

// runGuarded executes a strategy behind its circuit breaker. While the
// circuit is open the batch fails fast with CircuitOpen results.
func (o *Orchestrator) runGuarded(ctx context.Context, st Strategy, batch Batch, dest string) BatchResult {
	breaker := o.breakers.Get(dest, st.Name())
	if err := breaker.Allow(); err != nil {
		return failFastBatch(batch, st.Name(), err)
	}

	res := st.Execute(ctx, batch)
	o.recordBreaker(breaker, res)
	return res
}

// recordBreaker feeds batch-level outcome into the circuit breaker.
// Only transient backend failures count; per-object permission and
// not-found errors do not.
func (o *Orchestrator) recordBreaker(breaker *CircuitBreaker, res BatchResult) {
	for _, r := range res.Results {
		if r.Status == StatusFailed && r.ErrorKind == KindTransient {
			breaker.RecordFailure()
			return
		}
	}
	breaker.RecordSuccess()
}

// finish stamps the batch duration, records metrics and journal entries,
// and emits the completion event. Results count toward both the run's
// collector and the engine-lifetime one.
func (o *Orchestrator) finish(res BatchResult, start time.Time, rc *Collector) BatchResult {
	res.Duration = time.Since(start)

	rc.Record(res)
	o.metrics.Record(res)

	if o.journal != nil {
		for _, r := range res.Results {
			if err := o.journal.Record(r); err != nil {
				o.logger.Warn("journal write failed",
					zap.String("requestID", r.RequestID), zap.Error(err))
			}
		}
	}

	o.sink.BatchCompleted(telemetry.Event{
		Timestamp:        time.Now().UTC(),
		BatchID:          res.BatchID,
		Strategy:         res.Strategy,
		ObjectCount:      len(res.Results),
		BytesTransferred: res.BytesTransferred(),
		Duration:         res.Duration,
		ErrorCount:       res.ErrorCount(),
	})

	return res
}

func (o *Orchestrator) emitFallback(batchID string, objects int, bytes int64) {
	o.sink.FallbackTriggered(telemetry.Event{
		Timestamp:        time.Now().UTC(),
		BatchID:          batchID,
		Strategy:         StrategyStaged,
		ObjectCount:      objects,
		BytesTransferred: bytes,
	})
}

// transientFailures returns the requests whose results failed with a
// transient error. Permission and not-found failures stay terminal.
func transientFailures(batch Batch, results []TransferResult) []TransferRequest {
	byID := make(map[string]TransferRequest, len(batch.Requests))
	for _, req := range batch.Requests {
		byID[req.RequestID] = req
	}

	var failed []TransferRequest
	for _, r := range results {
		if r.Status == StatusFailed && r.ErrorKind == KindTransient {
			failed = append(failed, byID[r.RequestID])
		}
	}
	return failed
}

// mergeResults replaces results in dst with their fallback outcome.
func mergeResults(dst []TransferResult, fallback []TransferResult) {
	byID := make(map[string]TransferResult, len(fallback))
	for _, r := range fallback {
		byID[r.RequestID] = r
	}
	for i, r := range dst {
		if nr, ok := byID[r.RequestID]; ok {
			dst[i] = nr
		}
	}
}

// carryPrimaryAttempts copies the direct attempt counts onto the
// fallback results so accounting can charge the failed primary attempt.
func carryPrimaryAttempts(direct, fallback []TransferResult) {
	byID := make(map[string]int, len(direct))
	for _, r := range direct {
		byID[r.RequestID] = r.Attempts
	}
	for i := range fallback {
		fallback[i].PrimaryAttempts = byID[fallback[i].RequestID]
	}
}

// markFallenBack relabels successful results of a fallback execution.
func markFallenBack(results []TransferResult) {
	for i := range results {
		if results[i].Status == StatusSucceeded {
			results[i].Status = StatusFallenBack
		}
	}
}

// failFastBatch yields a terminal CircuitOpen result per request without
// invoking the strategy.
func failFastBatch(batch Batch, strategy string, err error) BatchResult {
	results := make([]TransferResult, len(batch.Requests))
	for i, req := range batch.Requests {
		results[i] = TransferResult{
			RequestID: req.RequestID,
			Status:    StatusFailed,
			Strategy:  strategy,
			ErrorKind: KindCircuitOpen,
			Err:       err,
		}
	}
	return BatchResult{
		BatchID:  batch.BatchID,
		Results:  results,
		Strategy: strategy,
	}
}

// canceledBatch yields terminal canceled results for an undispatched batch.
func canceledBatch(batch Batch) BatchResult {
	results := make([]TransferResult, len(batch.Requests))
	for i, req := range batch.Requests {
		results[i] = TransferResult{
			RequestID: req.RequestID,
			Status:    StatusFailed,
			ErrorKind: KindCanceled,
			Err:       context.Canceled,
		}
	}
	return BatchResult{BatchID: batch.BatchID, Results: results}
}

// destinationKey derives the circuit-breaker key for a batch from its
// destination bucket.
func destinationKey(batch Batch) string {
	if len(batch.Requests) == 0 {
		return ""
	}
	dst := batch.Requests[0].DestinationURI
	u, err := url.Parse(dst)
	if err != nil || u.Host == "" {
		return dst
	}
	return u.Scheme + "://" + u.Host
}
