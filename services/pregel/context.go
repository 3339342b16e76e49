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
	"fmt"

	"github.com/AleutianAI/AleutianPregel/services/pregel/messages"
	"github.com/AleutianAI/AleutianPregel/services/pregel/values"
)

// nodeContext holds what init and compute contexts share: the bound node,
// topology access and the node's value.
//
// An init context belongs to one worker for the init phase; a compute
// context serves exactly one compute call. Using either after that ended
// panics with ErrContractViolation.
type nodeContext struct {
	topology Topology
	values   *values.NodeValue
	nodeID   int64
	phase    string
	open     bool
}

func (c *nodeContext) guard(method string) {
	if !c.open {
		panic(fmt.Errorf("%w: %s called after the %s ended", ErrContractViolation, method, c.phase))
	}
}

func (c *nodeContext) close() {
	c.open = false
}

// NodeID returns the node being processed.
func (c *nodeContext) NodeID() int64 {
	c.guard("NodeID")
	return c.nodeID
}

// NodeCount returns the number of nodes in the graph.
func (c *nodeContext) NodeCount() int64 {
	c.guard("NodeCount")
	return c.topology.NodeCount()
}

// Degree returns the out-degree of the node.
func (c *nodeContext) Degree() int {
	c.guard("Degree")
	return c.topology.Degree(c.nodeID)
}

// ForEachNeighbor calls fn for every out-neighbour of the node until fn
// returns false.
func (c *nodeContext) ForEachNeighbor(fn func(target int64) bool) {
	c.guard("ForEachNeighbor")
	c.topology.ForEachNeighbor(c.nodeID, fn)
}

// Double reads the node's double property key.
func (c *nodeContext) Double(key string) float64 {
	c.guard("Double")
	return c.values.Double(key, c.nodeID)
}

// SetDouble writes the node's double property key.
func (c *nodeContext) SetDouble(key string, value float64) {
	c.guard("SetDouble")
	c.values.SetDouble(key, c.nodeID, value)
}

// Long reads the node's long property key.
func (c *nodeContext) Long(key string) int64 {
	c.guard("Long")
	return c.values.Long(key, c.nodeID)
}

// SetLong writes the node's long property key.
func (c *nodeContext) SetLong(key string, value int64) {
	c.guard("SetLong")
	c.values.SetLong(key, c.nodeID, value)
}

// DoubleArray reads the node's double array property key.
func (c *nodeContext) DoubleArray(key string) []float64 {
	c.guard("DoubleArray")
	return c.values.DoubleArray(key, c.nodeID)
}

// SetDoubleArray writes the node's double array property key.
func (c *nodeContext) SetDoubleArray(key string, value []float64) {
	c.guard("SetDoubleArray")
	c.values.SetDoubleArray(key, c.nodeID, value)
}

// LongArray reads the node's long array property key.
func (c *nodeContext) LongArray(key string) []int64 {
	c.guard("LongArray")
	return c.values.LongArray(key, c.nodeID)
}

// SetLongArray writes the node's long array property key.
func (c *nodeContext) SetLongArray(key string, value []int64) {
	c.guard("SetLongArray")
	c.values.SetLongArray(key, c.nodeID, value)
}

// InitContext is the capability window of Computation.Init.
//
// It exposes initial node properties and value writes. It has no message
// access.
type InitContext struct {
	nodeContext
	properties PropertySource
}

func newInitContext(topology Topology, nv *values.NodeValue) *InitContext {
	ctx := &InitContext{
		nodeContext: nodeContext{topology: topology, values: nv, phase: "init phase", open: true},
	}
	ctx.properties, _ = topology.(PropertySource)
	return ctx
}

func (c *InitContext) bind(nodeID int64) {
	c.nodeID = nodeID
}

// Property returns the initial external property key of the node. The
// second result is false when the topology has no such property.
func (c *InitContext) Property(key string) (float64, bool) {
	c.guard("Property")
	if c.properties == nil {
		return 0, false
	}
	return c.properties.Property(key, c.nodeID)
}

// handleSlabSize is how many compute handles a worker allocates at once.
const handleSlabSize = 256

// computeWorker is one worker's state for one superstep. It hands out a
// fresh ComputeContext for every compute call.
type computeWorker struct {
	topology  Topology
	values    *values.NodeValue
	messenger messages.Messenger
	superstep int
	sent      int64
	slab      []ComputeContext
}

func newComputeWorker(topology Topology, nv *values.NodeValue, messenger messages.Messenger, superstep int) *computeWorker {
	return &computeWorker{
		topology:  topology,
		values:    nv,
		messenger: messenger,
		superstep: superstep,
	}
}

// bind returns an open handle for nodeID. Handles are never reused, so one
// kept past its compute call stays closed for good.
func (w *computeWorker) bind(nodeID int64) *ComputeContext {
	if len(w.slab) == 0 {
		w.slab = make([]ComputeContext, handleSlabSize)
	}
	c := &w.slab[0]
	w.slab = w.slab[1:]
	c.nodeContext = nodeContext{
		topology: w.topology,
		values:   w.values,
		nodeID:   nodeID,
		phase:    "compute call",
		open:     true,
	}
	c.worker = w
	return c
}

// ComputeContext is the capability window of Computation.Compute.
//
// Each compute call gets its own ComputeContext, closed when the call
// returns. A context kept by the vertex program and used later panics with
// ErrContractViolation instead of touching whichever node is current.
type ComputeContext struct {
	nodeContext
	worker     *computeWorker
	nodeSent   int64
	votedHalt  bool
	stayActive bool
}

// nextActive reports whether the bound node is active in the next superstep.
func (c *ComputeContext) nextActive() bool {
	return c.stayActive || (c.nodeSent > 0 && !c.votedHalt)
}

// Superstep returns the current superstep, starting at 0.
func (c *ComputeContext) Superstep() int {
	c.guard("Superstep")
	return c.worker.superstep
}

// IsInitialSuperstep reports whether this is superstep 0.
func (c *ComputeContext) IsInitialSuperstep() bool {
	c.guard("IsInitialSuperstep")
	return c.worker.superstep == 0
}

// SendTo sends message to target.
func (c *ComputeContext) SendTo(target int64, message float64) {
	c.guard("SendTo")
	if target < 0 || target >= c.topology.NodeCount() {
		panic(fmt.Errorf("%w: node %d sent to unknown node %d", ErrContractViolation, c.nodeID, target))
	}
	c.worker.messenger.Send(target, message)
	c.nodeSent++
	c.worker.sent++
}

// SendToNeighbors sends message to every out-neighbour.
func (c *ComputeContext) SendToNeighbors(message float64) {
	c.guard("SendToNeighbors")
	c.topology.ForEachNeighbor(c.nodeID, func(target int64) bool {
		c.worker.messenger.Send(target, message)
		c.nodeSent++
		c.worker.sent++
		return true
	})
}

// VoteToHalt marks the node inactive until a message reaches it.
// StayActive takes precedence.
func (c *ComputeContext) VoteToHalt() {
	c.guard("VoteToHalt")
	c.votedHalt = true
}

// StayActive keeps the node scheduled for the next superstep even if it
// receives no message.
func (c *ComputeContext) StayActive() {
	c.guard("StayActive")
	c.stayActive = true
}

// MasterContext is the capability window of MasterComputation.MasterCompute.
//
// All node values are readable. Nothing is writable.
type MasterContext struct {
	values    *values.NodeValue
	tolerance float64
	stats     SuperstepStats
	nodeCount int64
	open      bool
}

func (c *MasterContext) guard(method string) {
	if !c.open {
		panic(fmt.Errorf("%w: %s called after the master compute phase ended", ErrContractViolation, method))
	}
}

// Superstep returns the superstep that just completed.
func (c *MasterContext) Superstep() int {
	c.guard("Superstep")
	return c.stats.Superstep
}

// NodeCount returns the number of nodes in the graph.
func (c *MasterContext) NodeCount() int64 {
	c.guard("NodeCount")
	return c.nodeCount
}

// ActiveNodes returns the number of nodes active for the next superstep.
func (c *MasterContext) ActiveNodes() int64 {
	c.guard("ActiveNodes")
	return c.stats.ActiveNodes
}

// MessagesSent returns the number of messages sent in the superstep.
func (c *MasterContext) MessagesSent() int64 {
	c.guard("MessagesSent")
	return c.stats.MessagesSent
}

// NodesComputed returns the number of Compute calls in the superstep.
func (c *MasterContext) NodesComputed() int64 {
	c.guard("NodesComputed")
	return c.stats.NodesComputed
}

// Tolerance returns Config.Tolerance.
func (c *MasterContext) Tolerance() float64 {
	c.guard("Tolerance")
	return c.tolerance
}

// Double reads the double property key of nodeID.
func (c *MasterContext) Double(key string, nodeID int64) float64 {
	c.guard("Double")
	return c.values.Double(key, nodeID)
}

// Long reads the long property key of nodeID.
func (c *MasterContext) Long(key string, nodeID int64) int64 {
	c.guard("Long")
	return c.values.Long(key, nodeID)
}

// DoubleArray reads the double array property key of nodeID.
func (c *MasterContext) DoubleArray(key string, nodeID int64) []float64 {
	c.guard("DoubleArray")
	return c.values.DoubleArray(key, nodeID)
}

// LongArray reads the long array property key of nodeID.
func (c *MasterContext) LongArray(key string, nodeID int64) []int64 {
	c.guard("LongArray")
	return c.values.LongArray(key, nodeID)
}

// ForEachNode calls fn for every node id in order until fn returns false.
func (c *MasterContext) ForEachNode(fn func(nodeID int64) bool) {
	c.guard("ForEachNode")
	for id := int64(0); id < c.nodeCount; id++ {
		if !fn(id) {
			return
		}
	}
}
