// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package partition divides the node-id space into disjoint work units.
//
// A partition is a contiguous, immutable range of node ids owned by one
// worker for every superstep of a run. The union of the partitions built
// for a graph is exactly [0, nodeCount) and no two partitions overlap. The
// scheduler relies on this to give each worker lock-free write access to
// the values of the nodes it owns.
package partition

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownStrategy is returned when parsing an unrecognised strategy name.
	ErrUnknownStrategy = errors.New("unknown partitioning strategy")

	// ErrDegreeRequired is returned when degree partitioning is requested
	// without a degree function.
	ErrDegreeRequired = errors.New("degree partitioning requires a degree function")

	// ErrInvalidInput is returned for negative node counts or concurrency < 1.
	ErrInvalidInput = errors.New("invalid partitioning input")

	// ErrNotACover is returned by Verify when partitions overlap or leave gaps.
	ErrNotACover = errors.New("partitions do not cover the node space exactly once")
)

// Auto strategy tuning.
const (
	// autoMinNodesPerWorker is the graph size per worker below which auto
	// always picks range partitioning. Small graphs gain nothing from the
	// extra degree scan.
	autoMinNodesPerWorker = 1024

	// autoSkewFactor is how far the maximum degree must exceed the average
	// degree for auto to choose degree partitioning.
	autoSkewFactor = 16
)

// Partition is a contiguous block of node ids [Start, End).
type Partition struct {
	start  int64
	length int64
}

// New creates a partition starting at start with length nodes.
func New(start, length int64) Partition {
	return Partition{start: start, length: length}
}

// Start returns the first node id of the partition.
func (p Partition) Start() int64 { return p.start }

// Length returns the number of nodes in the partition.
func (p Partition) Length() int64 { return p.length }

// End returns the exclusive upper bound of the partition.
func (p Partition) End() int64 { return p.start + p.length }

// Contains reports whether nodeID belongs to the partition.
func (p Partition) Contains(nodeID int64) bool {
	return nodeID >= p.start && nodeID < p.End()
}

// String implements fmt.Stringer.
func (p Partition) String() string {
	return fmt.Sprintf("[%d, %d)", p.start, p.End())
}

// DegreeFunc returns the out-degree of a node.
type DegreeFunc func(nodeID int64) int

// Strategy selects how partitions are built.
type Strategy int

const (
	// StrategyRange splits the id space into equally sized blocks.
	StrategyRange Strategy = iota

	// StrategyDegree sizes blocks so their summed out-degree is balanced.
	StrategyDegree

	// StrategyAuto picks range or degree from graph size and degree skew.
	StrategyAuto
)

// String returns the configuration name of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyRange:
		return "range"
	case StrategyDegree:
		return "degree"
	case StrategyAuto:
		return "auto"
	default:
		return "unknown"
	}
}

// ParseStrategy parses a configuration name (case-insensitive).
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "range":
		return StrategyRange, nil
	case "degree":
		return StrategyDegree, nil
	case "auto":
		return StrategyAuto, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// Build creates the partitions for a run.
//
// Description:
//
//	Dispatches on strategy. Called once before superstep 0; the returned
//	slice is reused unchanged for the whole run. A graph with zero nodes
//	yields zero partitions.
//
// Inputs:
//   - strategy: The partitioning strategy.
//   - nodeCount: Number of nodes. Must be >= 0.
//   - concurrency: Number of workers. Must be >= 1.
//   - degree: Out-degree lookup. Required for StrategyDegree; optional for
//     StrategyAuto (auto falls back to range without it).
//
// Outputs:
//   - []Partition: Disjoint partitions covering [0, nodeCount).
//   - error: Non-nil on invalid input or unknown strategy.
func Build(strategy Strategy, nodeCount int64, concurrency int, degree DegreeFunc) ([]Partition, error) {
	if nodeCount < 0 {
		return nil, fmt.Errorf("%w: node count %d", ErrInvalidInput, nodeCount)
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("%w: concurrency %d", ErrInvalidInput, concurrency)
	}

	switch strategy {
	case StrategyRange:
		return RangePartitions(nodeCount, concurrency), nil
	case StrategyDegree:
		if degree == nil {
			return nil, ErrDegreeRequired
		}
		return DegreePartitions(nodeCount, concurrency, degree), nil
	case StrategyAuto:
		return Resolve(nodeCount, concurrency, degree).build(nodeCount, concurrency, degree), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownStrategy, int(strategy))
	}
}

func (s Strategy) build(nodeCount int64, concurrency int, degree DegreeFunc) []Partition {
	if s == StrategyDegree {
		return DegreePartitions(nodeCount, concurrency, degree)
	}
	return RangePartitions(nodeCount, concurrency)
}

// Resolve returns the concrete strategy auto would pick for a graph.
//
// Range is chosen for small graphs or when no degree function is known.
// Otherwise degree is chosen when the maximum degree exceeds the average
// by more than autoSkewFactor.
func Resolve(nodeCount int64, concurrency int, degree DegreeFunc) Strategy {
	if degree == nil || nodeCount < int64(concurrency)*autoMinNodesPerWorker {
		return StrategyRange
	}

	var total, maxDegree int64
	for id := int64(0); id < nodeCount; id++ {
		d := int64(degree(id))
		total += d
		if d > maxDegree {
			maxDegree = d
		}
	}
	if total == 0 {
		return StrategyRange
	}

	avg := float64(total) / float64(nodeCount)
	if float64(maxDegree) > autoSkewFactor*avg {
		return StrategyDegree
	}
	return StrategyRange
}

// RangePartitions splits [0, nodeCount) into at most concurrency blocks of
// ceil(nodeCount / concurrency) nodes.
func RangePartitions(nodeCount int64, concurrency int) []Partition {
	if nodeCount <= 0 {
		return nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	batch := ceilDiv(nodeCount, int64(concurrency))
	partitions := make([]Partition, 0, concurrency)
	for start := int64(0); start < nodeCount; start += batch {
		partitions = append(partitions, New(start, min(batch, nodeCount-start)))
	}
	return partitions
}

// DegreePartitions splits [0, nodeCount) into contiguous blocks whose summed
// out-degree is close to total / concurrency.
//
// A block is closed as soon as its degree sum reaches the target, so a
// single very high-degree node gets a block of its own. Nodes are never
// reordered. When the graph has no edges this degrades to range
// partitioning.
func DegreePartitions(nodeCount int64, concurrency int, degree DegreeFunc) []Partition {
	if nodeCount <= 0 {
		return nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	var total int64
	for id := int64(0); id < nodeCount; id++ {
		total += int64(degree(id))
	}
	if total == 0 {
		return RangePartitions(nodeCount, concurrency)
	}

	target := max(ceilDiv(total, int64(concurrency)), 1)
	partitions := make([]Partition, 0, concurrency)

	start := int64(0)
	var sum int64
	for id := int64(0); id < nodeCount; id++ {
		sum += int64(degree(id))
		if sum >= target {
			partitions = append(partitions, New(start, id-start+1))
			start = id + 1
			sum = 0
		}
	}
	if start < nodeCount {
		partitions = append(partitions, New(start, nodeCount-start))
	}
	return partitions
}

// Verify checks that partitions are sorted, disjoint and cover [0, nodeCount).
func Verify(partitions []Partition, nodeCount int64) error {
	next := int64(0)
	for i, p := range partitions {
		if p.length <= 0 {
			return fmt.Errorf("%w: partition %d %s is empty", ErrNotACover, i, p)
		}
		if p.start != next {
			return fmt.Errorf("%w: partition %d %s starts at %d, expected %d", ErrNotACover, i, p, p.start, next)
		}
		next = p.End()
	}
	if next != nodeCount {
		return fmt.Errorf("%w: covered %d of %d nodes", ErrNotACover, next, nodeCount)
	}
	return nil
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
