package service

import (
	"context"
	"time"

	"github.com/tenantsync/engine/pkg/logger"
)

// Tracer creates spans around operations that should be observable without
// binding callers to a specific tracing backend.
type Tracer interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func(error))
}

type noopTracer struct{}

func (noopTracer) StartSpan(ctx context.Context, _ string, _ map[string]string) (context.Context, func(error)) {
	return ctx, func(error) {}
}

// NoopTracer discards all spans.
var NoopTracer Tracer = noopTracer{}

// loggingTracer emits a structured log line per span, with duration and
// outcome. Used for the job queue's handler spans (§4.2) in place of a
// dedicated tracing backend.
type loggingTracer struct {
	log *logger.Logger
}

// NewLoggingTracer returns a Tracer that records each span as a log entry.
func NewLoggingTracer(log *logger.Logger) Tracer {
	return loggingTracer{log: log}
}

func (t loggingTracer) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func(error)) {
	start := time.Now()
	return ctx, func(err error) {
		if t.log == nil {
			return
		}
		entry := t.log.WithField("span", name).WithField("duration_ms", time.Since(start).Milliseconds())
		for k, v := range attrs {
			entry = entry.WithField(k, v)
		}
		if err != nil {
			entry.WithError(err).Warn("span failed")
			return
		}
		entry.Debug("span complete")
	}
}
