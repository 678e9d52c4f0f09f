// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package parallel

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexredact/internal/observability"
)

func upper(ctx context.Context, job *Job[string]) (string, error) {
	if job.Input == "" {
		return "", errors.New("empty document")
	}
	// finish out of order
	time.Sleep(time.Duration(len(job.Input)) * time.Millisecond)
	return strings.ToUpper(job.Input), nil
}

func TestProcessPreservesOrder(t *testing.T) {
	pp := NewParallelProcessor(3, time.Second, observability.NewNopObserver())
	inputs := []string{"demanda larga del expediente", "dni", "escrito de apelacion", "ruc"}
	names := []string{"a.docx", "b.docx", "c.pdf", "d.txt"}

	var progressCalls int32
	results, stats, err := Process(context.Background(), pp, names, inputs, upper, func(completed, total int, name string) {
		atomic.AddInt32(&progressCalls, 1)
		assert.Equal(t, 4, total)
	})
	require.NoError(t, err)

	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, names[i], r.Name)
		assert.Equal(t, strings.ToUpper(inputs[i]), r.Value)
		assert.NoError(t, r.Error)
	}
	assert.Equal(t, int32(4), atomic.LoadInt32(&progressCalls))
	assert.Equal(t, 4, stats.Succeeded)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 3, stats.WorkerCount)
}

func TestProcessIsolatesFailures(t *testing.T) {
	pp := NewParallelProcessor(2, time.Second, nil)

	results, stats, err := Process(context.Background(), pp, []string{"ok", "bad", "panic"}, []string{"x", "", "boom"},
		func(ctx context.Context, job *Job[string]) (string, error) {
			if job.Input == "boom" {
				panic("parser exploded")
			}
			return upper(ctx, job)
		}, nil)
	require.NoError(t, err)

	assert.NoError(t, results[0].Error)
	assert.EqualError(t, results[1].Error, "empty document")
	require.Error(t, results[2].Error)
	assert.Contains(t, results[2].Error.Error(), "parser exploded")
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 2, stats.Failed)
}

func TestProcessJobTimeout(t *testing.T) {
	pp := NewParallelProcessor(1, 20*time.Millisecond, nil)

	results, _, err := Process(context.Background(), pp, []string{"slow"}, []int{1},
		func(ctx context.Context, job *Job[int]) (int, error) {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(time.Second):
				return job.Input, nil
			}
		}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, results[0].Error, context.DeadlineExceeded)
}

func TestProcessCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pp := NewParallelProcessor(2, time.Second, nil)

	results, stats, err := Process(ctx, pp, []string{"a", "b", "c"}, []string{"a", "b", "c"}, upper, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.ErrorIs(t, r.Error, context.Canceled)
	}
	assert.Equal(t, 3, stats.Failed)
}

func TestProcessRejectsMismatchedNames(t *testing.T) {
	pp := NewParallelProcessor(1, time.Second, nil)
	_, _, err := Process(context.Background(), pp, []string{"a"}, []string{"a", "b"}, upper, nil)
	assert.Error(t, err)
}

func TestDefaultWorkers(t *testing.T) {
	n := DefaultWorkers()
	assert.GreaterOrEqual(t, n, 1)
	assert.LessOrEqual(t, n, MaxWorkers)
	assert.Equal(t, n, NewParallelProcessor(0, 0, nil).workers)
}
