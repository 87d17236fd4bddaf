// Package worker provides a bounded goroutine pool that fetches through the
// clearance client with controlled concurrency.
package worker

import (
	"context"
	"sync"

	"github.com/firasghr/GoClearance/logger"
)

// Job is one unit of work.  ctx is the pool's context and is cancelled when
// the pool is shut down early, so a job parked in a challenge delay returns
// promptly.
type Job func(ctx context.Context)

// WorkerPool manages a fixed number of goroutines that drain a shared job
// queue.
//
//   - workerCount goroutines are started once and reused.
//   - jobQueue is buffered (capacity workerCount*4); Submit blocks only when
//     the buffer is full, applying back-pressure to producers.
//   - Stop closes the queue and waits for every queued job to finish.
//   - A panicking job is logged and does not take its worker down.
type WorkerPool struct {
	workerCount int
	jobQueue    chan Job
	wg          sync.WaitGroup
	ctx         context.Context
	log         *logger.Logger
}

// NewWorkerPool creates a WorkerPool with workerCount goroutines whose jobs
// run under ctx.  log may be nil.
func NewWorkerPool(ctx context.Context, workerCount int, log *logger.Logger) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &WorkerPool{
		workerCount: workerCount,
		jobQueue:    make(chan Job, workerCount*4),
		ctx:         ctx,
		log:         log,
	}
}

// Start launches the worker goroutines.  It must be called exactly once before
// any jobs are submitted.
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go func(id int) {
			defer wp.wg.Done()
			for job := range wp.jobQueue {
				wp.run(id, job)
			}
		}(i)
	}
}

func (wp *WorkerPool) run(id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			wp.log.Errorf("worker %d: job panicked: %v", id, r)
		}
	}()
	job(wp.ctx)
}

// Submit enqueues job.  It blocks while the buffer is full and gives up with
// the context's error once the pool's context is done, in which case job is
// never run.  Submit must not be called after Stop.
func (wp *WorkerPool) Submit(job Job) error {
	if err := wp.ctx.Err(); err != nil {
		return err
	}
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	}
}

// Stop signals the pool to finish all queued jobs and then waits for all
// worker goroutines to exit.
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
}
