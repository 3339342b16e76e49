// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package programs contains vertex programs for the pregel engine.
//
// Each program declares its own value schema and the key holding its
// result. ByName resolves the names accepted by the CLI and the
// configuration file.
package programs

import (
	"errors"
	"fmt"
	"math"

	"github.com/AleutianAI/AleutianPregel/services/pregel"
	"github.com/AleutianAI/AleutianPregel/services/pregel/messages"
	"github.com/AleutianAI/AleutianPregel/services/pregel/values"
)

// ErrUnknownProgram is returned by ByName for unsupported names.
var ErrUnknownProgram = errors.New("unknown program")

// Program is a computation that names the property holding its result.
type Program interface {
	pregel.Computation

	// ResultKey is the value property holding the program's result.
	ResultKey() string
}

// Params carries program specific settings.
type Params struct {
	// Source is the start node of ShortestPaths.
	Source int64

	// Damping is the PageRank damping factor.
	Damping float64
}

// ByName returns the program registered under name.
func ByName(name string, params Params) (Program, error) {
	switch name {
	case "cc":
		return ConnectedComponents{}, nil
	case "pagerank":
		pr, err := NewPageRank(params.Damping)
		if err != nil {
			return nil, err
		}
		return pr, nil
	case "sssp":
		return NewShortestPaths(params.Source), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProgram, name)
	}
}

// ComponentKey is the property written by ConnectedComponents.
const ComponentKey = "component"

// ConnectedComponents labels every node with the smallest node id reachable
// from it. On an undirected graph that is one label per component.
type ConnectedComponents struct{}

// Schema implements pregel.Computation.
func (ConnectedComponents) Schema() values.Schema {
	return values.NewSchemaBuilder().Add(ComponentKey, values.Long).MustBuild()
}

// Init implements pregel.Computation.
func (ConnectedComponents) Init(ctx *pregel.InitContext) {
	ctx.SetLong(ComponentKey, ctx.NodeID())
}

// Compute implements pregel.Computation.
//
// Messages are folded into the label even in superstep 0, since the
// async discipline may deliver them before a node's first compute.
func (ConnectedComponents) Compute(ctx *pregel.ComputeContext, msgs *messages.Iterator) {
	label := ctx.Long(ComponentKey)
	changed := ctx.IsInitialSuperstep()
	for msg := range msgs.All() {
		if candidate := int64(msg); candidate < label {
			label = candidate
			changed = true
		}
	}
	if changed {
		ctx.SetLong(ComponentKey, label)
		ctx.SendToNeighbors(float64(label))
	}
	ctx.VoteToHalt()
}

// Reducer implements pregel.ReducingComputation.
func (ConnectedComponents) Reducer() messages.Reducer { return messages.MinReducer{} }

// ResultKey implements Program.
func (ConnectedComponents) ResultKey() string { return ComponentKey }

// PageRank property keys.
const (
	RankKey  = "rank"
	deltaKey = "delta"
)

// PageRank computes PageRank without redistribution of dangling mass.
//
// Every node stays active. The run ends through the master computation
// once the largest per-node change drops below Config.Tolerance, or at
// MaxIterations. A tolerance of 0 never halts early.
type PageRank struct {
	damping float64
}

// NewPageRank creates a PageRank program. damping must be in (0, 1).
func NewPageRank(damping float64) (*PageRank, error) {
	if damping <= 0 || damping >= 1 || math.IsNaN(damping) {
		return nil, fmt.Errorf("damping must be in (0, 1), got %v", damping)
	}
	return &PageRank{damping: damping}, nil
}

// Schema implements pregel.Computation.
func (p *PageRank) Schema() values.Schema {
	return values.NewSchemaBuilder().
		Add(RankKey, values.Double).
		Add(deltaKey, values.Double).
		MustBuild()
}

// Init implements pregel.Computation.
func (p *PageRank) Init(ctx *pregel.InitContext) {
	ctx.SetDouble(RankKey, 1/float64(ctx.NodeCount()))
}

// Compute implements pregel.Computation.
func (p *PageRank) Compute(ctx *pregel.ComputeContext, msgs *messages.Iterator) {
	rank := ctx.Double(RankKey)
	if !ctx.IsInitialSuperstep() {
		var sum float64
		for msg := range msgs.All() {
			sum += msg
		}
		next := (1-p.damping)/float64(ctx.NodeCount()) + p.damping*sum
		ctx.SetDouble(deltaKey, math.Abs(next-rank))
		ctx.SetDouble(RankKey, next)
		rank = next
	}

	if degree := ctx.Degree(); degree > 0 {
		ctx.SendToNeighbors(rank / float64(degree))
	}
	ctx.StayActive()
}

// MasterCompute implements pregel.MasterComputation.
func (p *PageRank) MasterCompute(ctx *pregel.MasterContext) pregel.Decision {
	if ctx.Superstep() == 0 || ctx.Tolerance() == 0 {
		return pregel.Continue
	}
	var maxDelta float64
	ctx.ForEachNode(func(nodeID int64) bool {
		maxDelta = max(maxDelta, ctx.Double(deltaKey, nodeID))
		return true
	})
	if maxDelta < ctx.Tolerance() {
		return pregel.Halt
	}
	return pregel.Continue
}

// Reducer implements pregel.ReducingComputation.
func (p *PageRank) Reducer() messages.Reducer { return messages.SumReducer{} }

// ResultKey implements Program.
func (p *PageRank) ResultKey() string { return RankKey }

// DistanceKey is the property written by ShortestPaths.
const DistanceKey = "distance"

// ShortestPaths computes unweighted hop distances from a source node.
// Unreachable nodes keep +Inf.
type ShortestPaths struct {
	source int64
}

// NewShortestPaths creates a ShortestPaths program starting at source.
func NewShortestPaths(source int64) *ShortestPaths {
	return &ShortestPaths{source: source}
}

// Schema implements pregel.Computation.
func (s *ShortestPaths) Schema() values.Schema {
	return values.NewSchemaBuilder().Add(DistanceKey, values.Double).MustBuild()
}

// Init implements pregel.Computation.
func (s *ShortestPaths) Init(ctx *pregel.InitContext) {
	if ctx.NodeID() == s.source {
		ctx.SetDouble(DistanceKey, 0)
		return
	}
	ctx.SetDouble(DistanceKey, math.Inf(1))
}

// Compute implements pregel.Computation.
func (s *ShortestPaths) Compute(ctx *pregel.ComputeContext, msgs *messages.Iterator) {
	current := ctx.Double(DistanceKey)
	best := current
	for msg := range msgs.All() {
		best = min(best, msg)
	}

	switch {
	case best < current:
		ctx.SetDouble(DistanceKey, best)
		ctx.SendToNeighbors(best + 1)
	case ctx.IsInitialSuperstep() && ctx.NodeID() == s.source:
		ctx.SendToNeighbors(1)
	}
	ctx.VoteToHalt()
}

// Reducer implements pregel.ReducingComputation.
func (s *ShortestPaths) Reducer() messages.Reducer { return messages.MinReducer{} }

// ResultKey implements Program.
func (s *ShortestPaths) ResultKey() string { return DistanceKey }
