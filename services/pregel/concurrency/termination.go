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
	"sync/atomic"
)

// DefaultCheckInterval is the number of processed nodes between two polls
// of the termination flag.
const DefaultCheckInterval = 1024

// TerminationFlag is the cooperative cancellation signal shared by all workers.
type TerminationFlag interface {
	// Running reports whether the run may continue.
	Running() bool
}

// FlagFunc adapts a function to TerminationFlag.
type FlagFunc func() bool

// Running implements TerminationFlag.
func (f FlagFunc) Running() bool {
	return f()
}

// AlwaysRunning is a flag that never requests termination.
var AlwaysRunning TerminationFlag = FlagFunc(func() bool { return true })

// ContextFlag returns a flag that stops once ctx is done.
func ContextFlag(ctx context.Context) TerminationFlag {
	return FlagFunc(func() bool { return ctx.Err() == nil })
}

// AllRunning combines flags; the result is running only while every flag is.
// Nil flags are ignored.
func AllRunning(flags ...TerminationFlag) TerminationFlag {
	active := make([]TerminationFlag, 0, len(flags))
	for _, f := range flags {
		if f != nil {
			active = append(active, f)
		}
	}
	if len(active) == 1 {
		return active[0]
	}
	return FlagFunc(func() bool {
		for _, f := range active {
			if !f.Running() {
				return false
			}
		}
		return true
	})
}

// ManualFlag is a flag flipped explicitly with Terminate.
//
// Thread Safety: Safe for concurrent use.
type ManualFlag struct {
	stopped atomic.Bool
}

// NewManualFlag returns a running ManualFlag.
func NewManualFlag() *ManualFlag {
	return &ManualFlag{}
}

// Terminate requests termination. Idempotent.
func (f *ManualFlag) Terminate() {
	f.stopped.Store(true)
}

// Running implements TerminationFlag.
func (f *ManualFlag) Running() bool {
	return !f.stopped.Load()
}

// Checker polls a TerminationFlag every interval ticks.
//
// Each worker owns its own Checker so the tick counter never leaves the
// worker's cache. Once termination is observed the Checker stays stopped.
//
// Thread Safety: NOT safe for concurrent use.
type Checker struct {
	flag     TerminationFlag
	interval int
	ticks    int
	stopped  bool
}

// NewChecker creates a Checker. An interval < 1 uses DefaultCheckInterval.
func NewChecker(flag TerminationFlag, interval int) *Checker {
	if flag == nil {
		flag = AlwaysRunning
	}
	if interval < 1 {
		interval = DefaultCheckInterval
	}
	return &Checker{flag: flag, interval: interval}
}

// Tick records one processed node and returns false once termination has
// been observed. The flag itself is only read every interval ticks.
func (c *Checker) Tick() bool {
	if c.stopped {
		return false
	}
	c.ticks++
	if c.ticks < c.interval {
		return true
	}
	c.ticks = 0
	return c.Check()
}

// Check polls the flag immediately.
func (c *Checker) Check() bool {
	if c.stopped {
		return false
	}
	if !c.flag.Running() {
		c.stopped = true
	}
	return !c.stopped
}
