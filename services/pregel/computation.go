// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pregel

import (
	"github.com/AleutianAI/AleutianPregel/services/pregel/messages"
	"github.com/AleutianAI/AleutianPregel/services/pregel/values"
)

// Computation is the vertex program driven by the engine.
//
// Init and Compute are called concurrently for different nodes. They must
// only write the value of the node bound to their context.
type Computation interface {
	// Schema declares the per-node value properties.
	Schema() values.Schema

	// Init is called once per node before superstep 0.
	Init(ctx *InitContext)

	// Compute is called once per scheduled node per superstep. msgs is a
	// single-use sequence of the messages addressed to the node.
	Compute(ctx *ComputeContext, msgs *messages.Iterator)
}

// Decision is the result of a master computation.
type Decision int

const (
	// Continue lets the run proceed to the next superstep.
	Continue Decision = iota

	// Halt ends the run after the current superstep.
	Halt
)

// String implements fmt.Stringer.
func (d Decision) String() string {
	if d == Halt {
		return "halt"
	}
	return "continue"
}

// MasterComputation is implemented by computations that coordinate the
// run globally. MasterCompute is called once after every superstep's
// barrier, on a single goroutine.
type MasterComputation interface {
	MasterCompute(ctx *MasterContext) Decision
}

// ReducingComputation supplies the reducer for the reducing discipline
// when Config.Reducer is nil.
type ReducingComputation interface {
	Reducer() messages.Reducer
}

// ClosingComputation is notified once the run ended, whatever the outcome.
type ClosingComputation interface {
	Close()
}
