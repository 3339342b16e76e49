// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pregel implements a vertex-centric bulk synchronous parallel
// graph engine.
//
// # Overview
//
// A run drives a user supplied Computation over a static Topology in
// supersteps. Every superstep, each active node (or node with incoming
// messages) is computed once. Computations read and write per-node values,
// send messages to other nodes and vote to halt. Between supersteps a
// barrier guarantees that all workers finished before the next superstep
// begins.
//
// # Lifecycle
//
//	Created -> Initializing -> Running(0..max) -> MasterCompute -> Halted
//
//  1. New validates the Config and builds partitions, the messenger and
//     the worker pool once.
//  2. Run calls Init for every node, then runs supersteps until:
//     - no node is active and no message was sent (converged),
//     - a MasterComputation returned Halt (master_halted),
//     - MaxIterations supersteps ran (max_iterations), or
//     - the termination flag or context stopped the run (terminated).
//
// # Activity
//
// After Compute returns, a node stays active for the next superstep when
// it called StayActive, or when it sent a message and did not call
// VoteToHalt. Inactive nodes are only computed again when a message
// reaches them.
//
// # Message Disciplines
//
//   - sync: messages sent in superstep S are delivered in S+1.
//   - async: messages are visible as soon as they are sent.
//   - reducing: messages are combined in place by a Reducer and delivered
//     in S+1 as a single value.
//
// Under async, a node is scheduled when its worker reaches it and it is
// active or its inbox is non-empty. Messages that arrive after its Compute
// call are read in the next superstep. Any message sent during a superstep
// prevents that superstep from counting as converged.
//
// # Thread Safety
//
// Node values are written without locks. Each node belongs to exactly one
// partition and each partition is processed by exactly one goroutine per
// superstep. Computations must only write the value of the node they are
// computing.
package pregel
