// internal/telemetry/telemetry.go
package telemetry

import (
	"time"

	"go.uber.org/zap"
)

// Event describes one completed batch or one fallback transition.
type Event struct {
	Timestamp        time.Time
	BatchID          string
	Strategy         string
	ObjectCount      int
	BytesTransferred int64
	Duration         time.Duration
	ErrorCount       int
}

// Sink receives structured engine events.
type Sink interface {
	BatchCompleted(e Event)
	FallbackTriggered(e Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) BatchCompleted(Event)    {}
func (NopSink) FallbackTriggered(Event) {}

// ZapSink logs one structured entry per event.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink creates a log-backed sink.
func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger}
}

func (s *ZapSink) BatchCompleted(e Event) {
	s.logger.Info("batch completed", fields(e)...)
}

func (s *ZapSink) FallbackTriggered(e Event) {
	s.logger.Warn("fallback triggered", fields(e)...)
}

func fields(e Event) []zap.Field {
	return []zap.Field{
		zap.Time("timestamp", e.Timestamp),
		zap.String("batchID", e.BatchID),
		zap.String("strategy", e.Strategy),
		zap.Int("objectCount", e.ObjectCount),
		zap.Int64("bytesTransferred", e.BytesTransferred),
		zap.Duration("duration", e.Duration),
		zap.Int("errorCount", e.ErrorCount),
	}
}

// MultiSink fans events out to several sinks.
type MultiSink struct {
	sinks []Sink
}

// Multi combines sinks.
func Multi(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) BatchCompleted(e Event) {
	for _, s := range m.sinks {
		s.BatchCompleted(e)
	}
}

func (m *MultiSink) FallbackTriggered(e Event) {
	for _, s := range m.sinks {
		s.FallbackTriggered(e)
	}
}
