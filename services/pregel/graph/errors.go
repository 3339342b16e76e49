// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph provides an in-memory, read-only graph topology for the
// superstep engine.
//
// Nodes are dense int64 ids in [0, NodeCount). Adjacency is stored in
// compressed sparse row form: one offsets array and one targets array.
// Optional initial node properties are float64 columns keyed by name.
//
// # Ownership Model
//
// The engine treats topology as an external collaborator. It only needs
// NodeCount, Degree and ForEachNeighbor, plus Property during init.
//
// # Thread Safety
//
// Builder is NOT safe for concurrent use. A built *Graph is immutable and
// safe for concurrent reads.
//
// # Lifecycle
//
//  1. Create with NewBuilder(nodeCount, opts...)
//  2. Add edges and properties with AddEdge and SetProperty
//  3. Call Build() to freeze into a *Graph
//  4. Hand the *Graph to the engine
package graph

import "errors"

// Sentinel errors for graph operations.
var (
	// ErrGraphFrozen is returned when modifying a builder after Build.
	ErrGraphFrozen = errors.New("graph is frozen and cannot be modified")

	// ErrNodeOutOfRange is returned when an edge or property references a
	// node id outside [0, nodeCount).
	ErrNodeOutOfRange = errors.New("node id out of range")

	// ErrMaxEdgesExceeded is returned when the builder reached its
	// configured maximum edge capacity.
	ErrMaxEdgesExceeded = errors.New("maximum edge count exceeded")

	// ErrMalformedEdge is returned by the edge list loader for lines that
	// are not two integer node ids.
	ErrMalformedEdge = errors.New("malformed edge line")
)
