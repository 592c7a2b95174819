package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStartObservationFiresOnStartAndOnComplete(t *testing.T) {
	var started, completed bool
	var gotErr error
	var gotDuration time.Duration

	hooks := ObservationHooks{
		OnStart: func(ctx context.Context, meta map[string]string) {
			started = true
			if meta["service"] != "queue" {
				t.Fatalf("expected meta to be passed through, got %+v", meta)
			}
		},
		OnComplete: func(ctx context.Context, meta map[string]string, err error, d time.Duration) {
			completed = true
			gotErr = err
			gotDuration = d
		},
	}

	done := StartObservation(context.Background(), hooks, map[string]string{"service": "queue"})
	if !started {
		t.Fatal("expected OnStart to fire synchronously")
	}
	time.Sleep(time.Millisecond)
	wantErr := errors.New("boom")
	done(wantErr)

	if !completed {
		t.Fatal("expected OnComplete to fire")
	}
	if gotErr != wantErr {
		t.Fatalf("expected OnComplete to receive the completion error, got %v", gotErr)
	}
	if gotDuration <= 0 {
		t.Fatal("expected a positive duration")
	}
}

func TestStartObservationToleratesNilHooks(t *testing.T) {
	done := StartObservation(context.Background(), NoopObservationHooks, nil)
	done(nil)
}
