// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency bounds parallel runs. Local model servers handle
// few concurrent generations; two keeps the GPU busy without queueing
// timeouts.
const DefaultConcurrency = 2

// Runner executes multiple refinement runs with bounded concurrency.
//
// Thread Safety:
//
//	Runner is safe for concurrent use.
type Runner struct {
	controller  *Controller
	concurrency int64
}

// NewRunner creates a runner over the given controller. Concurrency
// below 1 falls back to DefaultConcurrency.
func NewRunner(controller *Controller, concurrency int) (*Runner, error) {
	if controller == nil {
		return nil, fmt.Errorf("controller must not be nil")
	}
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Runner{controller: controller, concurrency: int64(concurrency)}, nil
}

// RunAll executes every request and returns results in request order.
//
// Description:
//
//	Runs requests concurrently under a weighted semaphore. A failed
//	run does not cancel its siblings: each result carries its own
//	terminal state, and the first error (if any) is returned after
//	all runs finish.
//
// Outputs:
//
//	[]*Result - One result per request, index-aligned.
//	error - The first run error encountered, nil when all succeeded.
func (r *Runner) RunAll(ctx context.Context, requests []Request) ([]*Result, error) {
	results := make([]*Result, len(requests))
	sem := semaphore.NewWeighted(r.concurrency)

	// errgroup without WithContext: one failed document must not
	// cancel the others mid-generation.
	var g errgroup.Group
	var firstErr error
	errCh := make(chan error, len(requests))

	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = &Result{Status: StatusFailed, Reason: err.Error()}
				errCh <- err
				return nil
			}
			defer sem.Release(1)

			result, err := r.controller.Run(ctx, req)
			results[i] = result
			if err != nil {
				slog.Warn("Run failed", "task_id", req.TaskID, "error", err)
				errCh <- err
			}
			return nil
		})
	}
	_ = g.Wait()
	close(errCh)
	for err := range errCh {
		if firstErr == nil {
			firstErr = err
		}
	}
	return results, firstErr
}
