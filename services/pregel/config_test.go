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
	"testing"

	"github.com/AleutianAI/AleutianPregel/services/pregel/messages"
	"github.com/AleutianAI/AleutianPregel/services/pregel/partition"
	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"defaults", func(*Config) {}, nil},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, ErrInvalidConfig},
		{"negative concurrency", func(c *Config) { c.Concurrency = -2 }, ErrInvalidConfig},
		{"zero max iterations", func(c *Config) { c.MaxIterations = 0 }, ErrInvalidConfig},
		{"zero check interval", func(c *Config) { c.CheckInterval = 0 }, ErrInvalidConfig},
		{"negative tolerance", func(c *Config) { c.Tolerance = -0.1 }, ErrInvalidConfig},
		{"negative checkpoint interval", func(c *Config) { c.CheckpointEvery = -1 }, ErrInvalidConfig},
		{"unknown partitioning", func(c *Config) { c.Partitioning = partition.Strategy(9) }, partition.ErrUnknownStrategy},
		{"unknown discipline", func(c *Config) { c.Discipline = messages.Discipline(9) }, messages.ErrUnknownDiscipline},
		{"reducing without reducer is left to New", func(c *Config) { c.Discipline = messages.DisciplineReducing }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DefaultMaxIterations, cfg.MaxIterations)
	assert.GreaterOrEqual(t, cfg.Concurrency, 1)
	assert.Equal(t, partition.StrategyAuto, cfg.Partitioning)
	assert.Equal(t, messages.DisciplineSync, cfg.Discipline)
	assert.Equal(t, 1024, cfg.CheckInterval)
}

func TestEnums_String(t *testing.T) {
	assert.Equal(t, "converged", OutcomeConverged.String())
	assert.Equal(t, "master_halted", OutcomeMasterHalted.String())
	assert.Equal(t, "max_iterations", OutcomeMaxIterations.String())
	assert.Equal(t, "terminated", OutcomeTerminated.String())
	assert.Equal(t, "unknown", Outcome(42).String())

	assert.Equal(t, "master_compute", StateMasterCompute.String())
	assert.Equal(t, "halt", Halt.String())
	assert.Equal(t, "continue", Continue.String())
}
