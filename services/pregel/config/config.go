// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads pregel run configurations from YAML files.
//
// A file looks like:
//
//	max_iterations: 50
//	concurrency: 8
//	partitioning: auto
//	discipline: reducing
//	reducer: min
//	tolerance: 0.0001
//	check_interval: 1024
//	checkpoint_every: 5
//	checkpoint_dir: /var/lib/pregel/checkpoints
//	program:
//	  name: cc
//
// Missing keys keep their defaults. Unknown keys are rejected.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/AleutianAI/AleutianPregel/services/pregel"
	"github.com/AleutianAI/AleutianPregel/services/pregel/concurrency"
	"github.com/AleutianAI/AleutianPregel/services/pregel/messages"
	"github.com/AleutianAI/AleutianPregel/services/pregel/partition"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidFile is returned when a configuration file fails validation.
var ErrInvalidFile = errors.New("invalid pregel configuration file")

var fileValidate *validator.Validate

func init() {
	fileValidate = validator.New()
}

// Program selects and parameterises the vertex program run by the CLI.
type Program struct {
	Name    string  `yaml:"name" validate:"omitempty,oneof=cc pagerank sssp"`
	Source  int64   `yaml:"source" validate:"gte=0"`
	Damping float64 `yaml:"damping" validate:"gt=0,lt=1"`
}

// File is the on-disk form of a run configuration.
type File struct {
	MaxIterations   int     `yaml:"max_iterations" validate:"gte=1"`
	Concurrency     int     `yaml:"concurrency" validate:"gte=1"`
	Partitioning    string  `yaml:"partitioning" validate:"oneof=range degree auto"`
	Discipline      string  `yaml:"discipline" validate:"oneof=sync async reducing"`
	Reducer         string  `yaml:"reducer,omitempty" validate:"omitempty,oneof=sum min max count"`
	Tolerance       float64 `yaml:"tolerance" validate:"gte=0"`
	CheckInterval   int     `yaml:"check_interval" validate:"gte=1"`
	CheckpointEvery int     `yaml:"checkpoint_every" validate:"gte=0"`
	CheckpointDir   string  `yaml:"checkpoint_dir,omitempty"`
	Program         Program `yaml:"program"`
}

// Default returns the file equivalent of pregel.DefaultConfig.
func Default() File {
	return File{
		MaxIterations: pregel.DefaultMaxIterations,
		Concurrency:   runtime.GOMAXPROCS(0),
		Partitioning:  partition.StrategyAuto.String(),
		Discipline:    messages.DisciplineSync.String(),
		CheckInterval: concurrency.DefaultCheckInterval,
		Program: Program{
			Name:    "cc",
			Damping: 0.85,
		},
	}
}

// Parse decodes YAML over the defaults and validates the result.
//
// Outputs:
//   - File: The decoded configuration.
//   - error: Decode errors (including unknown keys) or ErrInvalidFile.
func Parse(data []byte) (File, error) {
	f := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("decode config: %w", err)
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Load reads and parses the configuration file at path.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// WriteDefault writes the default configuration to path, creating parent
// directories. An existing file is not overwritten.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("encode default config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks field ranges and selector names.
func (f File) Validate() error {
	if err := fileValidate.Struct(f); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if f.Discipline == messages.DisciplineReducing.String() && f.Reducer == "" && f.Program.Name == "" {
		return fmt.Errorf("%w: discipline reducing requires a reducer or a program", ErrInvalidFile)
	}
	return nil
}

// ToConfig converts the file into an engine configuration. An empty
// reducer leaves pregel.Config.Reducer nil so the program may supply one.
func (f File) ToConfig() (pregel.Config, error) {
	strategy, err := partition.ParseStrategy(f.Partitioning)
	if err != nil {
		return pregel.Config{}, err
	}
	discipline, err := messages.ParseDiscipline(f.Discipline)
	if err != nil {
		return pregel.Config{}, err
	}

	var reducer messages.Reducer
	if f.Reducer != "" {
		if reducer, err = messages.ParseReducer(f.Reducer); err != nil {
			return pregel.Config{}, err
		}
	}

	cfg := pregel.Config{
		MaxIterations:   f.MaxIterations,
		Concurrency:     f.Concurrency,
		Partitioning:    strategy,
		Discipline:      discipline,
		Reducer:         reducer,
		Tolerance:       f.Tolerance,
		CheckInterval:   f.CheckInterval,
		CheckpointEvery: f.CheckpointEvery,
	}
	if err := cfg.Validate(); err != nil {
		return pregel.Config{}, err
	}
	return cfg, nil
}
