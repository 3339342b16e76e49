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

// Topology is the read-only graph structure a run is computed over.
//
// Thread Safety: Implementations must be safe for concurrent reads.
type Topology interface {
	// NodeCount returns the number of nodes. Node ids are [0, NodeCount).
	NodeCount() int64

	// Degree returns the out-degree of nodeID.
	Degree(nodeID int64) int

	// ForEachNeighbor calls fn for every out-neighbour of nodeID until fn
	// returns false.
	ForEachNeighbor(nodeID int64, fn func(target int64) bool)
}

// PropertySource is implemented by topologies that carry initial node
// properties. InitContext.Property reads from it.
type PropertySource interface {
	Property(key string, nodeID int64) (float64, bool)
}
