// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"fmt"
	"sort"
)

// DefaultMaxEdges is the default edge capacity of a builder.
const DefaultMaxEdges = 1 << 31

// Graph is an immutable CSR adjacency structure.
type Graph struct {
	offsets    []int64
	targets    []int64
	properties map[string][]float64
	undirected bool
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int64 {
	return int64(len(g.offsets) - 1)
}

// RelationshipCount returns the number of stored adjacency entries.
// For undirected graphs every input edge is counted twice.
func (g *Graph) RelationshipCount() int64 {
	return int64(len(g.targets))
}

// Undirected reports whether edges were stored in both directions.
func (g *Graph) Undirected() bool {
	return g.undirected
}

// Degree returns the out-degree of nodeID.
func (g *Graph) Degree(nodeID int64) int {
	return int(g.offsets[nodeID+1] - g.offsets[nodeID])
}

// Neighbors returns the adjacency slice of nodeID. The slice is shared
// with the graph and must not be modified.
func (g *Graph) Neighbors(nodeID int64) []int64 {
	return g.targets[g.offsets[nodeID]:g.offsets[nodeID+1]]
}

// ForEachNeighbor calls fn for every neighbour of nodeID until fn returns false.
func (g *Graph) ForEachNeighbor(nodeID int64, fn func(target int64) bool) {
	for _, t := range g.Neighbors(nodeID) {
		if !fn(t) {
			return
		}
	}
}

// Property returns the initial property key of nodeID.
func (g *Graph) Property(key string, nodeID int64) (float64, bool) {
	col, ok := g.properties[key]
	if !ok {
		return 0, false
	}
	return col[nodeID], true
}

// PropertyKeys returns the sorted names of all node properties.
func (g *Graph) PropertyKeys() []string {
	keys := make([]string, 0, len(g.properties))
	for k := range g.properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BuilderOptions configures Builder behavior.
type BuilderOptions struct {
	// Undirected stores every edge in both directions.
	// Default: false
	Undirected bool

	// Deduplicate drops repeated (source, target) pairs and self loops.
	// Default: false
	Deduplicate bool

	// MaxEdges is the maximum number of AddEdge calls accepted.
	// Default: DefaultMaxEdges
	MaxEdges int64
}

// BuilderOption is a functional option for configuring Builder.
type BuilderOption func(*BuilderOptions)

// WithUndirected stores edges in both directions.
func WithUndirected() BuilderOption {
	return func(o *BuilderOptions) {
		o.Undirected = true
	}
}

// WithDeduplicate drops parallel edges and self loops.
func WithDeduplicate() BuilderOption {
	return func(o *BuilderOptions) {
		o.Deduplicate = true
	}
}

// WithMaxEdges caps the number of edges.
func WithMaxEdges(n int64) BuilderOption {
	return func(o *BuilderOptions) {
		o.MaxEdges = n
	}
}

// Builder accumulates edges and properties for a Graph.
type Builder struct {
	opts       BuilderOptions
	nodeCount  int64
	sources    []int64
	targets    []int64
	properties map[string][]float64
	frozen     bool
}

// NewBuilder creates a builder for a graph with nodeCount nodes.
func NewBuilder(nodeCount int64, opts ...BuilderOption) *Builder {
	o := BuilderOptions{MaxEdges: DefaultMaxEdges}
	for _, opt := range opts {
		opt(&o)
	}
	return &Builder{
		opts:       o,
		nodeCount:  nodeCount,
		properties: make(map[string][]float64),
	}
}

// AddEdge records an edge from source to target.
//
// Outputs:
//   - error: ErrNodeOutOfRange, ErrMaxEdgesExceeded or ErrGraphFrozen.
func (b *Builder) AddEdge(source, target int64) error {
	if b.frozen {
		return ErrGraphFrozen
	}
	if !b.inRange(source) || !b.inRange(target) {
		return fmt.Errorf("%w: edge %d -> %d with %d nodes", ErrNodeOutOfRange, source, target, b.nodeCount)
	}
	if int64(len(b.sources)) >= b.opts.MaxEdges {
		return fmt.Errorf("%w: limit %d", ErrMaxEdgesExceeded, b.opts.MaxEdges)
	}
	b.sources = append(b.sources, source)
	b.targets = append(b.targets, target)
	return nil
}

// SetProperty sets the initial value of property key for nodeID.
// Nodes without an explicit value read 0.
func (b *Builder) SetProperty(key string, nodeID int64, value float64) error {
	if b.frozen {
		return ErrGraphFrozen
	}
	if !b.inRange(nodeID) {
		return fmt.Errorf("%w: property %q on node %d with %d nodes", ErrNodeOutOfRange, key, nodeID, b.nodeCount)
	}
	col, ok := b.properties[key]
	if !ok {
		col = make([]float64, b.nodeCount)
		b.properties[key] = col
	}
	col[nodeID] = value
	return nil
}

// Build freezes the builder and returns the CSR graph.
//
// Description:
//
//	Counts degrees, prefix-sums them into offsets and scatters targets.
//	Neighbours of a node keep insertion order (then sorted when
//	deduplicating). The builder rejects further modification afterwards.
//
// Outputs:
//   - *Graph: The immutable graph.
//   - error: ErrGraphFrozen if Build was already called.
func (b *Builder) Build() (*Graph, error) {
	if b.frozen {
		return nil, ErrGraphFrozen
	}
	b.frozen = true

	sources, targets := b.sources, b.targets
	if b.opts.Undirected {
		sources = append(append(make([]int64, 0, 2*len(b.sources)), b.sources...), b.targets...)
		targets = append(append(make([]int64, 0, 2*len(b.targets)), b.targets...), b.sources...)
	}

	offsets := make([]int64, b.nodeCount+1)
	for _, s := range sources {
		offsets[s+1]++
	}
	for i := int64(1); i <= b.nodeCount; i++ {
		offsets[i] += offsets[i-1]
	}

	adjacency := make([]int64, len(targets))
	cursor := make([]int64, b.nodeCount)
	copy(cursor, offsets[:b.nodeCount])
	for i, s := range sources {
		adjacency[cursor[s]] = targets[i]
		cursor[s]++
	}

	g := &Graph{
		offsets:    offsets,
		targets:    adjacency,
		properties: b.properties,
		undirected: b.opts.Undirected,
	}
	if b.opts.Deduplicate {
		g.deduplicate()
	}

	b.sources, b.targets = nil, nil
	return g, nil
}

// deduplicate sorts every adjacency list and removes repeats and self loops
// in place, compacting the targets array.
func (g *Graph) deduplicate() {
	n := g.NodeCount()
	write := int64(0)
	start := g.offsets[0]
	for node := int64(0); node < n; node++ {
		end := g.offsets[node+1]
		adj := g.targets[start:end]
		sort.Slice(adj, func(i, j int) bool { return adj[i] < adj[j] })

		g.offsets[node] = write
		prev := int64(-1)
		for _, t := range adj {
			if t == node || t == prev {
				continue
			}
			g.targets[write] = t
			write++
			prev = t
		}
		start = end
	}
	g.offsets[n] = write
	g.targets = g.targets[:write]
}

func (b *Builder) inRange(nodeID int64) bool {
	return nodeID >= 0 && nodeID < b.nodeCount
}
