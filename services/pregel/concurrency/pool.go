// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package concurrency

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// stackBufferSize bounds the captured stack of a panicking task.
const stackBufferSize = 8192

// Pool executes work units with a fixed upper bound on parallelism.
//
// A Pool is built once per run and reused for every superstep. It holds
// no goroutines between calls; each SpawnMany call is its own scope.
type Pool struct {
	concurrency int
}

// NewPool creates a pool running at most concurrency tasks at once.
//
// Outputs:
//   - *Pool: The pool.
//   - error: ErrInvalidConcurrency if concurrency < 1.
func NewPool(concurrency int) (*Pool, error) {
	if concurrency < 1 {
		return nil, fmt.Errorf("%w: must be >= 1, got %d", ErrInvalidConcurrency, concurrency)
	}
	return &Pool{concurrency: concurrency}, nil
}

// Concurrency returns the configured worker bound.
func (p *Pool) Concurrency() int {
	return p.concurrency
}

// SpawnMany runs fn once for every unit in [0, units) and waits for all of them.
//
// Description:
//
//	Tasks run concurrently, at most Concurrency() at a time. When the pool
//	has a single worker, or there is a single unit, tasks run sequentially
//	on the calling goroutine in unit order, which keeps single-threaded
//	runs deterministic.
//
//	The first task to fail (return an error or panic) cancels the context
//	handed to the remaining tasks. Tasks that have not started yet are
//	skipped. Once every started task returned, the first *PanicError is
//	returned if any task panicked, otherwise the first error. A panic is
//	never hidden behind a sibling's ErrTerminated or context error.
//
// Inputs:
//   - ctx: Parent context. Tasks are not started after it is done.
//   - units: Number of work units. Zero returns immediately.
//   - fn: Task body. Receives the scope context and the unit index.
//
// Outputs:
//   - error: The first *PanicError, else the first task error or the context error.
//
// Thread Safety: Safe for concurrent use; each call is an independent scope.
func (p *Pool) SpawnMany(ctx context.Context, units int, fn func(ctx context.Context, unit int) error) error {
	if units <= 0 {
		return nil
	}

	if units == 1 || p.concurrency == 1 {
		for unit := 0; unit < units; unit++ {
			if err := runUnit(ctx, unit, fn); err != nil {
				return err
			}
		}
		return nil
	}

	var firstPanic atomic.Pointer[PanicError]
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for unit := 0; unit < units; unit++ {
		g.Go(func() error {
			err := runUnit(gCtx, unit, fn)
			var panicErr *PanicError
			if errors.As(err, &panicErr) {
				firstPanic.CompareAndSwap(nil, panicErr)
			}
			return err
		})
	}
	err := g.Wait()
	if panicErr := firstPanic.Load(); panicErr != nil {
		return panicErr
	}
	return err
}

// runUnit executes a single task and converts a panic into a *PanicError.
func runUnit(ctx context.Context, unit int, fn func(ctx context.Context, unit int) error) (err error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, stackBufferSize)
			n := runtime.Stack(buf, false)
			err = &PanicError{
				Unit:  unit,
				Value: r,
				Stack: string(buf[:n]),
			}
		}
	}()

	return fn(ctx, unit)
}
