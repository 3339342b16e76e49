// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package messages implements the message-passing substrate of the engine.
//
// # Disciplines
//
// Three interchangeable Messenger implementations exist, chosen by Discipline:
//
//   - DisciplineSync: two queue buffers per node. Sends of superstep S go
//     to the sending buffer; compute in S drains the receiving buffer. The
//     buffers swap roles only in InitSuperstep, which the scheduler calls at
//     the barrier. Nothing sent in S is visible before S+1.
//   - DisciplineAsync: one queue per node. A send is visible to the next
//     drain of the target's queue, possibly in the same superstep.
//   - DisciplineReducing: one combined value per node and buffer. A send
//     folds the message into the target's value with a lock-free CAS loop
//     using a commutative, associative Reducer. Memory is O(nodes). The
//     two value buffers swap at the barrier like the sync discipline, so
//     reduced messages also follow superstep isolation.
//
// # Concurrency
//
// Send may be called from any worker for any target. The queue disciplines
// guard node queues with striped mutexes; the reducing discipline uses
// atomics only. InitSuperstep must only be called while no worker runs.
package messages

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownDiscipline is returned when parsing an unrecognised discipline name.
	ErrUnknownDiscipline = errors.New("unknown message discipline")

	// ErrUnknownReducer is returned when parsing an unrecognised reducer name.
	ErrUnknownReducer = errors.New("unknown reducer")

	// ErrReducerRequired is returned when the reducing discipline has no reducer.
	ErrReducerRequired = errors.New("reducing discipline requires a reducer")

	// ErrIteratorConsumed is the panic value raised when a message iterator
	// is ranged over a second time within the same compute call.
	ErrIteratorConsumed = errors.New("message iterator already consumed")
)

// Discipline selects the Messenger implementation.
type Discipline int

const (
	// DisciplineSync is the double-buffered queue discipline.
	DisciplineSync Discipline = iota

	// DisciplineAsync is the single-buffered queue discipline.
	DisciplineAsync

	// DisciplineReducing is the in-place reducing discipline.
	DisciplineReducing
)

// String returns the configuration name of the discipline.
func (d Discipline) String() string {
	switch d {
	case DisciplineSync:
		return "sync"
	case DisciplineAsync:
		return "async"
	case DisciplineReducing:
		return "reducing"
	default:
		return "unknown"
	}
}

// ParseDiscipline parses a configuration name (case-insensitive).
func ParseDiscipline(name string) (Discipline, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sync":
		return DisciplineSync, nil
	case "async":
		return DisciplineAsync, nil
	case "reducing":
		return DisciplineReducing, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownDiscipline, name)
	}
}

// Messenger buffers or combines messages between node computations.
type Messenger interface {
	// InitSuperstep prepares the messenger for the given superstep.
	// Must be called at the barrier, before any worker of that superstep
	// starts and after every worker of the previous one finished.
	InitSuperstep(superstep int)

	// Send delivers message to target's inbox.
	//
	// Thread Safety: Safe for concurrent use.
	Send(target int64, message float64)

	// HasMessages reports whether nodeID has messages to read in the
	// current superstep.
	HasMessages(nodeID int64) bool

	// Messages binds it to nodeID's inbox for the current superstep.
	// For the async discipline this drains the queue.
	Messages(nodeID int64, it *Iterator)

	// Discipline returns the discipline implemented.
	Discipline() Discipline

	// Release drops all buffers. The messenger must not be used afterwards.
	Release()
}

// New creates the messenger for a discipline.
//
// Inputs:
//   - discipline: The message discipline.
//   - nodeCount: Number of nodes. Must be >= 0.
//   - reducer: Combination function. Required for DisciplineReducing,
//     ignored by the queue disciplines which deliver every message.
//
// Outputs:
//   - Messenger: The messenger, ready for InitSuperstep(0).
//   - error: ErrReducerRequired or ErrUnknownDiscipline.
func New(discipline Discipline, nodeCount int64, reducer Reducer) (Messenger, error) {
	if nodeCount < 0 {
		return nil, fmt.Errorf("negative node count %d", nodeCount)
	}

	switch discipline {
	case DisciplineSync:
		return NewSyncQueueMessenger(nodeCount), nil
	case DisciplineAsync:
		return NewAsyncQueueMessenger(nodeCount), nil
	case DisciplineReducing:
		if reducer == nil {
			return nil, ErrReducerRequired
		}
		return NewReducingMessenger(nodeCount, reducer), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownDiscipline, int(discipline))
	}
}
