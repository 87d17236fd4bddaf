package worker_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/firasghr/GoClearance/logger"
	"github.com/firasghr/GoClearance/worker"
)

func TestWorkerPool_ExecutesAllJobs(t *testing.T) {
	const jobs = 500
	wp := worker.NewWorkerPool(context.Background(), 10, nil)
	wp.Start()

	var counter int64
	for i := 0; i < jobs; i++ {
		if err := wp.Submit(func(context.Context) {
			atomic.AddInt64(&counter, 1)
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	wp.Stop()

	if counter != jobs {
		t.Errorf("expected %d jobs executed, got %d", jobs, counter)
	}
}

func TestWorkerPool_ZeroWorkersFallsBackToOne(t *testing.T) {
	wp := worker.NewWorkerPool(context.Background(), 0, nil)
	wp.Start()
	var ran int64
	wp.Submit(func(context.Context) { atomic.AddInt64(&ran, 1) }) //nolint:errcheck
	wp.Stop()
	if ran != 1 {
		t.Errorf("expected job to run, ran=%d", ran)
	}
}

func TestWorkerPool_CancelReachesJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	wp := worker.NewWorkerPool(ctx, 2, nil)
	wp.Start()

	started := make(chan struct{})
	var cancelled int64
	wp.Submit(func(ctx context.Context) { //nolint:errcheck
		close(started)
		select {
		case <-ctx.Done():
			atomic.AddInt64(&cancelled, 1)
		case <-time.After(5 * time.Second):
		}
	})
	<-started
	cancel()
	wp.Stop()

	if cancelled != 1 {
		t.Error("job did not observe pool cancellation")
	}
	if err := wp.Submit(func(context.Context) {}); !errors.Is(err, context.Canceled) {
		t.Errorf("Submit after cancel: got %v, want context.Canceled", err)
	}
}

func TestWorkerPool_RecoversPanics(t *testing.T) {
	var buf bytes.Buffer
	wp := worker.NewWorkerPool(context.Background(), 1, logger.NewWithWriter(&buf, logger.LevelError))
	wp.Start()

	var ran int64
	wp.Submit(func(context.Context) { panic("boom") })            //nolint:errcheck
	wp.Submit(func(context.Context) { atomic.AddInt64(&ran, 1) }) //nolint:errcheck
	wp.Stop()

	if ran != 1 {
		t.Error("worker stopped after a panicking job")
	}
	if !strings.Contains(buf.String(), "boom") {
		t.Errorf("panic not logged: %q", buf.String())
	}
}
