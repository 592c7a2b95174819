package service

import (
	"context"
	"errors"
	"testing"

	"github.com/tenantsync/engine/pkg/logger"
)

func TestNoopTracerReturnsSameContextAndNoopDone(t *testing.T) {
	ctx := context.Background()
	gotCtx, done := NoopTracer.StartSpan(ctx, "span", nil)
	if gotCtx != ctx {
		t.Fatal("expected NoopTracer to return the same context")
	}
	done(errors.New("ignored"))
}

func TestLoggingTracerToleratesNilLogger(t *testing.T) {
	tracer := NewLoggingTracer(nil)
	_, done := tracer.StartSpan(context.Background(), "ingest:all-sources", map[string]string{"queue": "ingest"})
	done(nil)
}

func TestLoggingTracerRecordsSpans(t *testing.T) {
	log := logger.New(logger.LoggingConfig{Level: "debug", Output: "stdout"})
	tracer := NewLoggingTracer(log)
	_, done := tracer.StartSpan(context.Background(), "metrics:recompute-all", map[string]string{"queue": "metrics"})
	done(nil)
	_, done2 := tracer.StartSpan(context.Background(), "feed:emit-transition", map[string]string{"queue": "feed"})
	done2(errors.New("dead letter"))
}
