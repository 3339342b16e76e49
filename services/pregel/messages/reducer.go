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
	"math"
	"strings"
)

// Reducer combines messages addressed to the same node.
//
// Implementations must be commutative and associative so the combined
// value is independent of the order in which concurrent senders apply
// their messages.
type Reducer interface {
	// Identity is the neutral starting value.
	Identity() float64

	// Reduce folds message into current.
	Reduce(current, message float64) float64

	// Name is the configuration name.
	Name() string
}

// SumReducer adds messages.
type SumReducer struct{}

func (SumReducer) Identity() float64                       { return 0 }
func (SumReducer) Reduce(current, message float64) float64 { return current + message }
func (SumReducer) Name() string                            { return "sum" }

// MinReducer keeps the smallest message.
type MinReducer struct{}

func (MinReducer) Identity() float64                       { return math.Inf(1) }
func (MinReducer) Reduce(current, message float64) float64 { return math.Min(current, message) }
func (MinReducer) Name() string                            { return "min" }

// MaxReducer keeps the largest message.
type MaxReducer struct{}

func (MaxReducer) Identity() float64                       { return math.Inf(-1) }
func (MaxReducer) Reduce(current, message float64) float64 { return math.Max(current, message) }
func (MaxReducer) Name() string                            { return "max" }

// CountReducer counts messages and ignores their values.
type CountReducer struct{}

func (CountReducer) Identity() float64                 { return 0 }
func (CountReducer) Reduce(current, _ float64) float64 { return current + 1 }
func (CountReducer) Name() string                      { return "count" }

// ParseReducer resolves a reducer by name (case-insensitive).
func ParseReducer(name string) (Reducer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sum":
		return SumReducer{}, nil
	case "min":
		return MinReducer{}, nil
	case "max":
		return MaxReducer{}, nil
	case "count":
		return CountReducer{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownReducer, name)
	}
}
