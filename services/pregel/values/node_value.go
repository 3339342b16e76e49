// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package values

import (
	"fmt"
)

// NodeValue is the column store of per-node property values.
//
// # Thread Safety
//
// Reads and writes of different nodes may run concurrently. Concurrent
// access to the same node requires external coordination; the scheduler
// provides it through disjoint partitions and the superstep barrier.
type NodeValue struct {
	schema    Schema
	nodeCount int64

	doubles      map[string][]float64
	longs        map[string][]int64
	doubleArrays map[string][][]float64
	longArrays   map[string][][]int64
}

// NewNodeValue allocates zeroed columns for every schema element.
func NewNodeValue(schema Schema, nodeCount int64) *NodeValue {
	v := &NodeValue{
		schema:       schema,
		nodeCount:    nodeCount,
		doubles:      make(map[string][]float64),
		longs:        make(map[string][]int64),
		doubleArrays: make(map[string][][]float64),
		longArrays:   make(map[string][][]int64),
	}
	for _, e := range schema.elements {
		switch e.Type {
		case Double:
			v.doubles[e.Key] = make([]float64, nodeCount)
		case Long:
			v.longs[e.Key] = make([]int64, nodeCount)
		case DoubleArray:
			v.doubleArrays[e.Key] = make([][]float64, nodeCount)
		case LongArray:
			v.longArrays[e.Key] = make([][]int64, nodeCount)
		}
	}
	return v
}

// Schema returns the schema the store was built from.
func (v *NodeValue) Schema() Schema { return v.schema }

// NodeCount returns the number of nodes.
func (v *NodeValue) NodeCount() int64 { return v.nodeCount }

// Double returns the double property key of nodeID.
func (v *NodeValue) Double(key string, nodeID int64) float64 {
	return v.DoubleColumn(key)[nodeID]
}

// SetDouble sets the double property key of nodeID.
func (v *NodeValue) SetDouble(key string, nodeID int64, value float64) {
	v.DoubleColumn(key)[nodeID] = value
}

// Long returns the long property key of nodeID.
func (v *NodeValue) Long(key string, nodeID int64) int64 {
	return v.LongColumn(key)[nodeID]
}

// SetLong sets the long property key of nodeID.
func (v *NodeValue) SetLong(key string, nodeID int64, value int64) {
	v.LongColumn(key)[nodeID] = value
}

// DoubleArray returns the double array property key of nodeID.
// The slice is shared with the store.
func (v *NodeValue) DoubleArray(key string, nodeID int64) []float64 {
	return v.DoubleArrayColumn(key)[nodeID]
}

// SetDoubleArray sets the double array property key of nodeID.
// The store keeps the slice without copying.
func (v *NodeValue) SetDoubleArray(key string, nodeID int64, value []float64) {
	v.DoubleArrayColumn(key)[nodeID] = value
}

// LongArray returns the long array property key of nodeID.
func (v *NodeValue) LongArray(key string, nodeID int64) []int64 {
	return v.LongArrayColumn(key)[nodeID]
}

// SetLongArray sets the long array property key of nodeID.
func (v *NodeValue) SetLongArray(key string, nodeID int64, value []int64) {
	v.LongArrayColumn(key)[nodeID] = value
}

// DoubleColumn returns the whole column of a double property.
func (v *NodeValue) DoubleColumn(key string) []float64 {
	col, ok := v.doubles[key]
	if !ok {
		panic(v.accessError(key, Double))
	}
	return col
}

// LongColumn returns the whole column of a long property.
func (v *NodeValue) LongColumn(key string) []int64 {
	col, ok := v.longs[key]
	if !ok {
		panic(v.accessError(key, Long))
	}
	return col
}

// DoubleArrayColumn returns the whole column of a double array property.
func (v *NodeValue) DoubleArrayColumn(key string) [][]float64 {
	col, ok := v.doubleArrays[key]
	if !ok {
		panic(v.accessError(key, DoubleArray))
	}
	return col
}

// LongArrayColumn returns the whole column of a long array property.
func (v *NodeValue) LongArrayColumn(key string) [][]int64 {
	col, ok := v.longArrays[key]
	if !ok {
		panic(v.accessError(key, LongArray))
	}
	return col
}

func (v *NodeValue) accessError(key string, want ValueType) error {
	e, ok := v.schema.Lookup(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return fmt.Errorf("%w: %q is %s, accessed as %s", ErrTypeMismatch, key, e.Type, want)
}
