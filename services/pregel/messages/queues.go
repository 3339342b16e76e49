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
	"sync"
)

// maxLockStripes bounds the number of mutexes guarding node queues.
const maxLockStripes = 4096

// queueBuffer holds one message queue per node, guarded by striped locks.
//
// Stripe selection is nodeID & mask, so neighbouring node ids map to
// different stripes and contention stays low when senders target ranges.
type queueBuffer struct {
	queues [][]float64
	locks  []sync.Mutex
	mask   int64
}

func newQueueBuffer(nodeCount int64) *queueBuffer {
	stripes := int64(1)
	for stripes < nodeCount && stripes < maxLockStripes {
		stripes <<= 1
	}
	return &queueBuffer{
		queues: make([][]float64, nodeCount),
		locks:  make([]sync.Mutex, stripes),
		mask:   stripes - 1,
	}
}

// push appends a message to node's queue.
func (b *queueBuffer) push(nodeID int64, message float64) {
	l := &b.locks[nodeID&b.mask]
	l.Lock()
	b.queues[nodeID] = append(b.queues[nodeID], message)
	l.Unlock()
}

// size returns node's queue length under its stripe lock.
func (b *queueBuffer) size(nodeID int64) int {
	l := &b.locks[nodeID&b.mask]
	l.Lock()
	n := len(b.queues[nodeID])
	l.Unlock()
	return n
}

// take removes and returns node's queue.
func (b *queueBuffer) take(nodeID int64) []float64 {
	l := &b.locks[nodeID&b.mask]
	l.Lock()
	q := b.queues[nodeID]
	b.queues[nodeID] = nil
	l.Unlock()
	return q
}

// truncate empties every queue, keeping capacity for reuse.
// Callers must guarantee exclusive access.
func (b *queueBuffer) truncate() {
	for i := range b.queues {
		b.queues[i] = b.queues[i][:0]
	}
}

// SyncQueueMessenger is the double-buffered queue discipline.
//
// The two buffers are an explicit two-slot state. slot[receiving] is
// read-only for the whole superstep, slot[1-receiving] collects sends. The
// only transition is swap, performed by InitSuperstep at the barrier.
type SyncQueueMessenger struct {
	slots     [2]*queueBuffer
	receiving int
}

// NewSyncQueueMessenger creates a sync messenger for nodeCount nodes.
func NewSyncQueueMessenger(nodeCount int64) *SyncQueueMessenger {
	return &SyncQueueMessenger{
		slots: [2]*queueBuffer{newQueueBuffer(nodeCount), newQueueBuffer(nodeCount)},
	}
}

// InitSuperstep swaps the buffers for every superstep after the first and
// clears the new sending buffer, which holds the messages read last superstep.
func (m *SyncQueueMessenger) InitSuperstep(superstep int) {
	if superstep == 0 {
		return
	}
	m.receiving = 1 - m.receiving
	m.slots[1-m.receiving].truncate()
}

// Send implements Messenger.
func (m *SyncQueueMessenger) Send(target int64, message float64) {
	m.slots[1-m.receiving].push(target, message)
}

// HasMessages implements Messenger. The receiving buffer is immutable
// during a superstep, so no lock is taken.
func (m *SyncQueueMessenger) HasMessages(nodeID int64) bool {
	return len(m.slots[m.receiving].queues[nodeID]) > 0
}

// Messages implements Messenger.
func (m *SyncQueueMessenger) Messages(nodeID int64, it *Iterator) {
	it.reset(m.slots[m.receiving].queues[nodeID])
}

// Discipline implements Messenger.
func (m *SyncQueueMessenger) Discipline() Discipline { return DisciplineSync }

// Release implements Messenger.
func (m *SyncQueueMessenger) Release() {
	m.slots = [2]*queueBuffer{}
}

// AsyncQueueMessenger is the single-buffered queue discipline.
//
// Reading a node's messages drains its queue, so a message sent after the
// drain waits for the node's next compute call.
type AsyncQueueMessenger struct {
	buffer *queueBuffer
}

// NewAsyncQueueMessenger creates an async messenger for nodeCount nodes.
func NewAsyncQueueMessenger(nodeCount int64) *AsyncQueueMessenger {
	return &AsyncQueueMessenger{buffer: newQueueBuffer(nodeCount)}
}

// InitSuperstep implements Messenger. There is nothing to swap.
func (m *AsyncQueueMessenger) InitSuperstep(int) {}

// Send implements Messenger.
func (m *AsyncQueueMessenger) Send(target int64, message float64) {
	m.buffer.push(target, message)
}

// HasMessages implements Messenger.
func (m *AsyncQueueMessenger) HasMessages(nodeID int64) bool {
	return m.buffer.size(nodeID) > 0
}

// Messages implements Messenger.
func (m *AsyncQueueMessenger) Messages(nodeID int64, it *Iterator) {
	it.reset(m.buffer.take(nodeID))
}

// Discipline implements Messenger.
func (m *AsyncQueueMessenger) Discipline() Discipline { return DisciplineAsync }

// Release implements Messenger.
func (m *AsyncQueueMessenger) Release() {
	m.buffer = nil
}
