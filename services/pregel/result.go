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
	"time"

	"github.com/AleutianAI/AleutianPregel/services/pregel/partition"
	"github.com/AleutianAI/AleutianPregel/services/pregel/values"
)

// Outcome describes why a run ended.
type Outcome int

const (
	// OutcomeConverged means no node was active and no message was sent.
	OutcomeConverged Outcome = iota

	// OutcomeMasterHalted means the master computation returned Halt.
	OutcomeMasterHalted

	// OutcomeMaxIterations means the superstep limit was reached first.
	OutcomeMaxIterations

	// OutcomeTerminated means the termination flag or the context stopped
	// the run.
	OutcomeTerminated
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeConverged:
		return "converged"
	case OutcomeMasterHalted:
		return "master_halted"
	case OutcomeMaxIterations:
		return "max_iterations"
	case OutcomeTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// SuperstepStats summarises one completed superstep.
type SuperstepStats struct {
	Superstep     int           `json:"superstep"`
	NodesComputed int64         `json:"nodes_computed"`
	ActiveNodes   int64         `json:"active_nodes"`
	MessagesSent  int64         `json:"messages_sent"`
	Duration      time.Duration `json:"duration"`
}

// Result is returned by Run.
type Result struct {
	// RunID identifies the run in logs, spans and checkpoints.
	RunID string

	// Values holds the final node values. It is the same storage the
	// computation wrote to.
	Values *values.NodeValue

	// Supersteps is the number of completed supersteps.
	Supersteps int

	// Converged is true for OutcomeConverged and OutcomeMasterHalted.
	Converged bool

	// Outcome tells why the run ended.
	Outcome Outcome

	// Partitioning is the concrete strategy used. Auto is resolved.
	Partitioning partition.Strategy

	// Partitions is the number of work units.
	Partitions int

	// Stats has one entry per completed superstep.
	Stats []SuperstepStats

	// Duration is the wall time of the run.
	Duration time.Duration
}
