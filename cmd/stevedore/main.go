// cmd/stevedore/main.go
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/FairForge/stevedore/internal/config"
	"github.com/FairForge/stevedore/internal/journal"
	"github.com/FairForge/stevedore/internal/storage"
	"github.com/FairForge/stevedore/internal/telemetry"
	"github.com/FairForge/stevedore/internal/transfer"
)

func main() {
	configPath := flag.String("config", "stevedore.yaml", "path to config file")
	manifestPath := flag.String("manifest", "", "path to transfer manifest")
	flag.Parse()

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = level
	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(*configPath, *manifestPath, level, logger); err != nil {
		logger.Error("run failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(configPath, manifestPath string, level zap.AtomicLevel, logger *zap.Logger) error {
	manager, err := config.NewManager(configPath, logger)
	if err != nil {
		return err
	}
	defer manager.Close()

	cfg := manager.Get()
	setLogLevel(level, cfg.LogLevel)

	if manifestPath == "" {
		return fmt.Errorf("no manifest given: pass -manifest")
	}

	requests, err := readManifest(manifestPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, throttled, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// Hot reload adjusts the bandwidth budget and log level in place.
	manager.OnReload(func(c *config.Config) {
		setLogLevel(level, c.LogLevel)
		if throttled != nil && c.BandwidthLimit > 0 {
			throttled.SetLimit(c.BandwidthLimit)
		}
	})

	sinks := []telemetry.Sink{
		telemetry.NewZapSink(logger),
		telemetry.NewPrometheusSink(),
	}

	go serveMetrics(cfg.MetricsPort, logger)

	opts := []transfer.OrchestratorOption{
		transfer.WithLogger(logger),
		transfer.WithSink(telemetry.Multi(sinks...)),
	}

	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return err
		}
		defer func() { _ = j.Close() }()
		opts = append(opts, transfer.WithJournal(j))
	}

	orch, err := transfer.NewOrchestrator(store, cfg.Options(), opts...)
	if err != nil {
		return err
	}

	logger.Info("submitting transfer run",
		zap.Int("requests", len(requests)),
		zap.String("mode", cfg.Transfer.Mode))

	runHandle, err := orch.Submit(ctx, requests)
	if err != nil {
		return err
	}

	results := runHandle.Wait()
	snap := runHandle.Snapshot()

	failed := 0
	for _, br := range results {
		failed += br.ErrorCount()
	}

	logger.Info("run complete",
		zap.String("runID", runHandle.ID()),
		zap.Int64("files", snap.TotalFiles),
		zap.Int64("bytes", snap.TotalBytes),
		zap.Int64("operations", snap.OperationCount),
		zap.Int64("errors", snap.ErrorCount),
		zap.Float64("throughputMBps", snap.ThroughputMBps),
		zap.Float64("efficiencyRatio", snap.EfficiencyRatio))

	if failed > 0 {
		return fmt.Errorf("%d objects failed", failed)
	}
	return nil
}

// buildStore constructs the object-store client from the destination
// backend. Both locations must be reachable through one client for the
// direct strategy to work, so the backends must match.
func buildStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (transfer.ObjectStore, *storage.ThrottledStore, error) {
	if cfg.Source.Type != cfg.Destination.Type {
		return nil, nil, &transfer.ConfigurationError{
			Field:  "source.type",
			Reason: "source and destination must share a backend type",
		}
	}

	var store transfer.ObjectStore
	var err error

	switch cfg.Destination.Type {
	case "local":
		store, err = storage.NewLocalStore(cfg.Destination.Root, logger)
	default:
		b := cfg.Destination
		store, err = storage.NewS3Store(ctx, b.Endpoint, b.AccessKey, b.SecretKey, b.Region, logger)
	}
	if err != nil {
		return nil, nil, err
	}

	if cfg.BandwidthLimit > 0 {
		throttled := storage.NewThrottledStore(store, cfg.BandwidthLimit)
		return throttled, throttled, nil
	}
	return store, nil, nil
}

// readManifest parses one transfer per line:
//
//	sourceURI destinationURI [sizeBytes] [requestID]
//
// Blank lines and #-comments are skipped.
func readManifest(path string) ([]transfer.TransferRequest, error) {
	f, err := os.Open(path) // #nosec G304 - operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer func() { _ = f.Close() }()

	var requests []transfer.TransferRequest
	scanner := bufio.NewScanner(f)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("manifest line %d: need source and destination", lineNo)
		}

		req := transfer.TransferRequest{
			RequestID:      uuid.NewString(),
			SourceURI:      fields[0],
			DestinationURI: fields[1],
			SizeBytes:      transfer.SizeUnknown,
		}

		if len(fields) >= 3 {
			size, err := strconv.ParseInt(fields[2], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("manifest line %d: bad size %q", lineNo, fields[2])
			}
			req.SizeBytes = size
		}
		if len(fields) >= 4 {
			req.RequestID = fields[3]
		}

		requests = append(requests, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	return requests, nil
}

func setLogLevel(level zap.AtomicLevel, name string) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(name)); err == nil {
		level.SetLevel(l)
	}
}

func serveMetrics(port int, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}
