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

import "errors"

// Sentinel errors for the pregel engine.
var (
	// ErrInvalidConfig is returned when a Config fails validation.
	ErrInvalidConfig = errors.New("invalid pregel config")

	// ErrContractViolation is raised (by panic) when a computation uses a
	// context outside its lifecycle phase or sends to a node that does not
	// exist. Run returns an error wrapping it.
	ErrContractViolation = errors.New("vertex program contract violation")

	// ErrAlreadyRun is returned when Run is called more than once.
	ErrAlreadyRun = errors.New("pregel run already started")

	// ErrNilTopology is returned when New receives a nil topology.
	ErrNilTopology = errors.New("topology must not be nil")

	// ErrNilComputation is returned when New receives a nil computation.
	ErrNilComputation = errors.New("computation must not be nil")
)
