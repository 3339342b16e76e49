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
	"runtime"

	"github.com/AleutianAI/AleutianPregel/services/pregel/concurrency"
	"github.com/AleutianAI/AleutianPregel/services/pregel/messages"
	"github.com/AleutianAI/AleutianPregel/services/pregel/partition"
	"github.com/go-playground/validator/v10"
)

// Default configuration values.
const (
	DefaultMaxIterations = 20
)

var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
}

// Config is the immutable configuration of one run.
type Config struct {
	// MaxIterations is the maximum number of supersteps.
	MaxIterations int `validate:"gte=1"`

	// Concurrency is the number of workers.
	Concurrency int `validate:"gte=1"`

	// Partitioning selects how the node id space is split across workers.
	Partitioning partition.Strategy

	// Discipline selects the message passing discipline.
	Discipline messages.Discipline

	// Reducer combines messages under DisciplineReducing. When nil, the
	// computation's Reducer is used if it implements ReducingComputation.
	// Ignored by the queue disciplines.
	Reducer messages.Reducer

	// Tolerance is exposed to master computations as a convergence
	// threshold. The engine itself does not interpret it.
	Tolerance float64 `validate:"gte=0"`

	// CheckInterval is the number of processed nodes between two polls of
	// the termination flag by a worker.
	CheckInterval int `validate:"gte=1"`

	// CheckpointEvery saves a checkpoint after every N supersteps when a
	// checkpointer is configured. 0 disables checkpointing.
	CheckpointEvery int `validate:"gte=0"`
}

// DefaultConfig returns a Config with one worker per available CPU,
// auto partitioning and the sync discipline.
func DefaultConfig() Config {
	return Config{
		MaxIterations: DefaultMaxIterations,
		Concurrency:   runtime.GOMAXPROCS(0),
		Partitioning:  partition.StrategyAuto,
		Discipline:    messages.DisciplineSync,
		CheckInterval: concurrency.DefaultCheckInterval,
	}
}

// Validate checks the configuration.
//
// Description:
//
//	Invalid values are reported, never replaced with defaults. Whether the
//	reducing discipline has a reducer is checked by New, since the
//	computation may supply it.
//
// Outputs:
//   - error: Wraps ErrInvalidConfig, or nil.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Partitioning.String() == "unknown" {
		return fmt.Errorf("%w: %w: %d", ErrInvalidConfig, partition.ErrUnknownStrategy, int(c.Partitioning))
	}
	if c.Discipline.String() == "unknown" {
		return fmt.Errorf("%w: %w: %d", ErrInvalidConfig, messages.ErrUnknownDiscipline, int(c.Discipline))
	}
	return nil
}
