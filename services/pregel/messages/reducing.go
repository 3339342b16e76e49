// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package messages

import (
	"math"
	"sync/atomic"
)

// reduceBuffer holds one combined value per node plus a touched bit.
//
// The touched bit distinguishes "no message" from "messages that reduced
// to the identity", for example a sum of zeros.
type reduceBuffer struct {
	values  []atomic.Uint64
	touched []atomic.Bool
}

func newReduceBuffer(nodeCount int64, identity float64) *reduceBuffer {
	b := &reduceBuffer{
		values:  make([]atomic.Uint64, nodeCount),
		touched: make([]atomic.Bool, nodeCount),
	}
	b.fill(identity)
	return b
}

func (b *reduceBuffer) fill(identity float64) {
	bits := math.Float64bits(identity)
	for i := range b.values {
		b.values[i].Store(bits)
		b.touched[i].Store(false)
	}
}

// ReducingMessenger combines messages in place with a Reducer.
//
// Like SyncQueueMessenger it keeps two slots that swap at the barrier:
// sends of superstep S fold into the sending slot and become the single
// incoming value of superstep S+1.
type ReducingMessenger struct {
	reducer   Reducer
	slots     [2]*reduceBuffer
	receiving int
}

// NewReducingMessenger creates a reducing messenger for nodeCount nodes.
func NewReducingMessenger(nodeCount int64, reducer Reducer) *ReducingMessenger {
	identity := reducer.Identity()
	return &ReducingMessenger{
		reducer: reducer,
		slots:   [2]*reduceBuffer{newReduceBuffer(nodeCount, identity), newReduceBuffer(nodeCount, identity)},
	}
}

// InitSuperstep swaps slots after the first superstep and resets the new
// sending slot to the reducer identity.
func (m *ReducingMessenger) InitSuperstep(superstep int) {
	if superstep == 0 {
		return
	}
	m.receiving = 1 - m.receiving
	m.slots[1-m.receiving].fill(m.reducer.Identity())
}

// Send folds message into target's value with a compare-and-swap loop.
func (m *ReducingMessenger) Send(target int64, message float64) {
	buf := m.slots[1-m.receiving]
	cell := &buf.values[target]
	for {
		old := cell.Load()
		next := math.Float64bits(m.reducer.Reduce(math.Float64frombits(old), message))
		if old == next || cell.CompareAndSwap(old, next) {
			break
		}
	}
	if !buf.touched[target].Load() {
		buf.touched[target].Store(true)
	}
}

// HasMessages implements Messenger.
func (m *ReducingMessenger) HasMessages(nodeID int64) bool {
	return m.slots[m.receiving].touched[nodeID].Load()
}

// Messages binds it to the combined value, or to nothing when no message
// arrived.
func (m *ReducingMessenger) Messages(nodeID int64, it *Iterator) {
	buf := m.slots[m.receiving]
	if !buf.touched[nodeID].Load() {
		it.reset(nil)
		return
	}
	it.resetSingle(math.Float64frombits(buf.values[nodeID].Load()))
}

// Value returns the combined value currently readable for nodeID and
// whether any message arrived.
func (m *ReducingMessenger) Value(nodeID int64) (float64, bool) {
	buf := m.slots[m.receiving]
	return math.Float64frombits(buf.values[nodeID].Load()), buf.touched[nodeID].Load()
}

// Reducer returns the combination function.
func (m *ReducingMessenger) Reducer() Reducer { return m.reducer }

// Discipline implements Messenger.
func (m *ReducingMessenger) Discipline() Discipline { return DisciplineReducing }

// Release implements Messenger.
func (m *ReducingMessenger) Release() {
	m.slots = [2]*reduceBuffer{}
}
