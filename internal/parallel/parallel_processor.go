// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package parallel

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"lexredact/internal/observability"
)

// MaxWorkers caps the default pool size
const MaxWorkers = 8

// ParallelProcessor fans a batch of documents out over a worker pool and
// returns the results in submission order
type ParallelProcessor struct {
	workers  int
	timeout  time.Duration
	observer *observability.StandardObserver
}

// ProcessingStats tracks parallel processing statistics
type ProcessingStats struct {
	TotalJobs     int           `json:"total_jobs"`
	Succeeded     int           `json:"succeeded"`
	Failed        int           `json:"failed"`
	TotalDuration time.Duration `json:"total_duration_ms"`
	WorkerCount   int           `json:"worker_count"`
	AvgJobTime    time.Duration `json:"avg_job_time_ms"`
}

// ProgressCallback is called when a job is completed
type ProgressCallback func(completed, total int, name string)

// DefaultWorkers returns the CPU count capped at MaxWorkers
func DefaultWorkers() int {
	return min(runtime.NumCPU(), MaxWorkers)
}

// NewParallelProcessor creates a processor. Workers below one use
// DefaultWorkers.
func NewParallelProcessor(workers int, timeout time.Duration, observer *observability.StandardObserver) *ParallelProcessor {
	if workers < 1 {
		workers = DefaultWorkers()
	}
	return &ParallelProcessor{workers: workers, timeout: timeout, observer: observer}
}

// Process runs fn over every input. A failing job never stops the batch;
// its error is carried in its Result.
func Process[T, R any](ctx context.Context, pp *ParallelProcessor, names []string, inputs []T, fn ProcessFunc[T, R], progress ProgressCallback) ([]*Result[R], *ProcessingStats, error) {
	if len(names) != len(inputs) {
		return nil, nil, fmt.Errorf("parallel: %d names for %d inputs", len(names), len(inputs))
	}
	start := time.Now()

	var finishTiming func(bool, map[string]interface{})
	if pp.observer != nil {
		finishTiming = pp.observer.StartTiming("parallel_processor", "process_batch", "batch")
	}

	workers := min(pp.workers, max(len(inputs), 1))
	pool := NewWorkerPool[T, R](ctx, workers, pp.timeout, fn, pp.observer)
	pool.Start()

	// Submit jobs in a separate goroutine to prevent deadlock
	go func() {
		defer pool.CloseJobs()
		for i := range inputs {
			job := &Job[T]{Index: i, ID: fmt.Sprintf("job_%d", i), Name: names[i], Input: inputs[i]}
			if !pool.Submit(job) {
				return
			}
		}
	}()
	go pool.Stop()

	results := make([]*Result[R], len(inputs))
	stats := &ProcessingStats{TotalJobs: len(inputs), WorkerCount: workers}
	var jobTime time.Duration
	completed := 0

	for result := range pool.Results() {
		results[result.Index] = result
		completed++
		jobTime += result.Duration

		if result.Error != nil {
			stats.Failed++
			if pp.observer != nil {
				pp.observer.LogOperation(observability.StandardObservabilityData{
					Component: "parallel_processor",
					Operation: "process_job",
					Target:    result.Name,
					Success:   false,
					Error:     result.Error.Error(),
				})
			}
		} else {
			stats.Succeeded++
		}

		if progress != nil {
			progress(completed, len(inputs), result.Name)
		}
	}

	// jobs never picked up after cancellation
	for i, r := range results {
		if r == nil {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			results[i] = &Result[R]{Index: i, JobID: fmt.Sprintf("job_%d", i), Name: names[i], Error: err}
			stats.Failed++
		}
	}

	stats.TotalDuration = time.Since(start)
	stats.AvgJobTime = jobTime / time.Duration(max(completed, 1))

	if finishTiming != nil {
		finishTiming(stats.Failed == 0, map[string]interface{}{
			"total_jobs":   stats.TotalJobs,
			"succeeded":    stats.Succeeded,
			"failed":       stats.Failed,
			"worker_count": workers,
			"duration_ms":  stats.TotalDuration.Milliseconds(),
		})
	}

	return results, stats, nil
}
