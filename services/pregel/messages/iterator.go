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
	"fmt"
	"iter"
)

// Iterator is the lazy, finite view of one node's messages in one compute call.
//
// An Iterator is reused by a worker for every node it processes; the
// messenger rebinds it before each compute call. It can be read either with
// Next or by ranging over All, but only once: ranging over All a second
// time, or calling Next after a range over All ran to the end, panics with
// ErrIteratorConsumed. Next on its own is a resumable pull and keeps
// returning false once exhausted.
//
// The underlying slice belongs to the messenger and stays valid until the
// next barrier.
//
// Thread Safety: NOT safe for concurrent use.
type Iterator struct {
	values []float64
	pos    int
	ranged  bool
	drained bool
	single [1]float64
}

// NewIterator returns an empty iterator.
func NewIterator() *Iterator {
	return &Iterator{}
}

// Next returns the next message and true, or 0 and false when exhausted.
//
// Panics with ErrIteratorConsumed once a range over All has drained the
// messages. A range stopped early leaves the remainder to Next.
func (it *Iterator) Next() (float64, bool) {
	if it.drained {
		panic(fmt.Errorf("%w: Next called after All was drained", ErrIteratorConsumed))
	}
	return it.next()
}

func (it *Iterator) next() (float64, bool) {
	if it.pos >= len(it.values) {
		return 0, false
	}
	v := it.values[it.pos]
	it.pos++
	return v, true
}

// All returns a single-use sequence over the remaining messages.
//
// Panics with ErrIteratorConsumed if called a second time for the same
// compute call.
func (it *Iterator) All() iter.Seq[float64] {
	if it.ranged {
		panic(fmt.Errorf("%w: All called twice for the same node", ErrIteratorConsumed))
	}
	it.ranged = true
	return func(yield func(float64) bool) {
		for {
			v, ok := it.next()
			if !ok {
				it.drained = true
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

// IsEmpty reports whether the node received no messages at all.
func (it *Iterator) IsEmpty() bool {
	return len(it.values) == 0
}

// Len returns the total number of messages bound to the iterator.
func (it *Iterator) Len() int {
	return len(it.values)
}

// reset binds the iterator to values.
func (it *Iterator) reset(values []float64) {
	it.values = values
	it.pos = 0
	it.ranged = false
	it.drained = false
}

// resetSingle binds the iterator to one combined value without allocating.
func (it *Iterator) resetSingle(value float64) {
	it.single[0] = value
	it.reset(it.single[:])
}
