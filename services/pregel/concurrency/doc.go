// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package concurrency provides the parallel execution substrate for the
// superstep scheduler.
//
// # Overview
//
// Two pieces live here:
//
//   - Pool: a scope-based executor. SpawnMany runs one task per work unit
//     with a bounded number of goroutines and returns only after every
//     task finished. The return of SpawnMany is the barrier; no caller
//     observes partial results of a scope.
//   - TerminationFlag and Checker: cooperative cancellation. Workers poll
//     the shared flag through a Checker that only looks at the flag every
//     fixed number of processed nodes.
//
// # Cancellation Latency
//
// Polling every node would put a shared read on the hottest loop of the
// engine. Checker trades latency for throughput: with an interval of N a
// worker processes up to N-1 additional nodes after the flag flipped. The
// scheduler additionally polls once before every superstep.
//
// # Panics
//
// A panic inside a task does not crash the process. It is captured as a
// *PanicError carrying the panic value and stack, the scope's context is
// cancelled so sibling tasks stop early, and SpawnMany returns the error.
//
// # Thread Safety
//
// Pool and the flag implementations are safe for concurrent use. Checker
// is owned by a single worker and is NOT safe for concurrent use.
package concurrency

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConcurrency is returned when a pool is built with fewer than one worker.
	ErrInvalidConcurrency = errors.New("invalid concurrency")

	// ErrTerminated is returned by tasks that observed a termination request.
	ErrTerminated = errors.New("terminated")
)

// PanicError wraps a panic recovered from a pool task.
type PanicError struct {
	// Unit is the work unit whose task panicked.
	Unit int

	// Value is the value passed to panic.
	Value any

	// Stack is the goroutine stack at the time of the panic.
	Stack string
}

// Error implements error.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in work unit %d: %v", e.Unit, e.Value)
}

// Unwrap returns the panic value when it is an error, so errors.Is and
// errors.As see through the panic.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
