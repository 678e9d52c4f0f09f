// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package parallel

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"lexredact/internal/observability"
)

// DefaultJobTimeout bounds a single document run
const DefaultJobTimeout = 5 * time.Minute

// ProcessFunc handles one job. It must honour ctx.
type ProcessFunc[T, R any] func(ctx context.Context, job *Job[T]) (R, error)

// WorkerPool runs jobs on a fixed number of goroutines
type WorkerPool[T, R any] struct {
	workers  int
	timeout  time.Duration
	process  ProcessFunc[T, R]
	jobs     chan *Job[T]
	results  chan *Result[R]
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	observer *observability.StandardObserver
	stopOnce sync.Once
}

// Job represents one unit of work
type Job[T any] struct {
	Index int
	ID    string
	Name  string
	Input T
}

// Result represents the outcome of one job
type Result[R any] struct {
	Index    int
	JobID    string
	Name     string
	Value    R
	Error    error
	Duration time.Duration
}

// NewWorkerPool creates a worker pool bound to ctx. A timeout of zero uses
// DefaultJobTimeout.
func NewWorkerPool[T, R any](ctx context.Context, workers int, timeout time.Duration, process ProcessFunc[T, R], observer *observability.StandardObserver) *WorkerPool[T, R] {
	if workers < 1 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	ctx, cancel := context.WithCancel(ctx)

	return &WorkerPool[T, R]{
		workers:  workers,
		timeout:  timeout,
		process:  process,
		jobs:     make(chan *Job[T], workers*2),
		results:  make(chan *Result[R], workers*2),
		ctx:      ctx,
		cancel:   cancel,
		observer: observer,
	}
}

// Workers returns the pool size
func (wp *WorkerPool[T, R]) Workers() int {
	return wp.workers
}

// Start initializes worker goroutines
func (wp *WorkerPool[T, R]) Start() {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Submit adds a job to the queue. It returns false once the pool is
// cancelled.
func (wp *WorkerPool[T, R]) Submit(job *Job[T]) bool {
	select {
	case wp.jobs <- job:
		return true
	case <-wp.ctx.Done():
		return false
	}
}

// CloseJobs signals that no more jobs will be submitted
func (wp *WorkerPool[T, R]) CloseJobs() {
	close(wp.jobs)
}

// Stop waits for the workers and closes the results channel. Call it after
// CloseJobs.
func (wp *WorkerPool[T, R]) Stop() {
	wp.stopOnce.Do(func() {
		wp.wg.Wait()
		close(wp.results)
		wp.cancel()
	})
}

// Cancel aborts queued and running jobs
func (wp *WorkerPool[T, R]) Cancel() {
	wp.cancel()
}

// Results returns the results channel
func (wp *WorkerPool[T, R]) Results() <-chan *Result[R] {
	return wp.results
}

// worker processes jobs from the queue
func (wp *WorkerPool[T, R]) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobs {
		result := wp.processJob(job, id)

		select {
		case wp.results <- result:
		case <-wp.ctx.Done():
			// drain so submitters never block on a cancelled pool
			for range wp.jobs {
			}
			return
		}
	}
}

// processJob executes a single job under the per-job timeout
func (wp *WorkerPool[T, R]) processJob(job *Job[T], workerID int) (result *Result[R]) {
	start := time.Now()
	result = &Result[R]{Index: job.Index, JobID: job.ID, Name: job.Name}

	var finishTiming func(bool, map[string]interface{})
	if wp.observer != nil {
		finishTiming = wp.observer.StartTiming("worker_pool", "process_job", job.Name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			result.Error = fmt.Errorf("job %s panicked: %v\n%s", job.ID, rec, debug.Stack())
		}
		result.Duration = time.Since(start)
		if finishTiming != nil {
			finishTiming(result.Error == nil, map[string]interface{}{
				"worker_id":   workerID,
				"job_id":      job.ID,
				"duration_ms": result.Duration.Milliseconds(),
				"had_error":   result.Error != nil,
			})
		}
	}()

	if err := wp.ctx.Err(); err != nil {
		result.Error = err
		return result
	}

	jobCtx, cancel := context.WithTimeout(wp.ctx, wp.timeout)
	defer cancel()

	result.Value, result.Error = wp.process(jobCtx, job)
	return result
}
