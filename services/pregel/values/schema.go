// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package values provides the typed per-node value arena written by vertex
// programs.
//
// A Schema declares named properties, each of one ValueType. A NodeValue
// stores one column per property, indexed by node id. Columns are plain
// slices: the engine never locks them. Write exclusivity comes from
// partitioning, since exactly one worker owns a node during a superstep.
//
// Accessing an undeclared key or using the wrong type is a programming
// error in the vertex program and panics with ErrUnknownKey or
// ErrTypeMismatch.
package values

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownKey is raised for keys absent from the schema.
	ErrUnknownKey = errors.New("unknown node value key")

	// ErrTypeMismatch is raised when a key is accessed with the wrong type.
	ErrTypeMismatch = errors.New("node value type mismatch")

	// ErrInvalidSchema is returned by SchemaBuilder.Build.
	ErrInvalidSchema = errors.New("invalid node value schema")
)

// ValueType is the type of one schema element.
type ValueType int

const (
	// Double is a float64 scalar.
	Double ValueType = iota

	// Long is an int64 scalar.
	Long

	// DoubleArray is a []float64 per node.
	DoubleArray

	// LongArray is a []int64 per node.
	LongArray
)

// String returns the type name.
func (t ValueType) String() string {
	switch t {
	case Double:
		return "double"
	case Long:
		return "long"
	case DoubleArray:
		return "double_array"
	case LongArray:
		return "long_array"
	default:
		return "unknown"
	}
}

// ParseValueType parses a type name as produced by String.
func ParseValueType(name string) (ValueType, error) {
	switch strings.ToLower(name) {
	case "double":
		return Double, nil
	case "long":
		return Long, nil
	case "double_array":
		return DoubleArray, nil
	case "long_array":
		return LongArray, nil
	default:
		return 0, fmt.Errorf("%w: unknown value type %q", ErrInvalidSchema, name)
	}
}

// Element is one declared property.
type Element struct {
	Key  string
	Type ValueType
}

// Schema is the ordered, immutable set of properties of a vertex program.
type Schema struct {
	elements []Element
	index    map[string]int
}

// Elements returns a copy of the declared elements in declaration order.
func (s Schema) Elements() []Element {
	out := make([]Element, len(s.elements))
	copy(out, s.elements)
	return out
}

// Lookup returns the element declared under key.
func (s Schema) Lookup(key string) (Element, bool) {
	i, ok := s.index[key]
	if !ok {
		return Element{}, false
	}
	return s.elements[i], true
}

// Len returns the number of declared elements.
func (s Schema) Len() int {
	return len(s.elements)
}

// SchemaBuilder collects elements for a Schema.
type SchemaBuilder struct {
	elements []Element
}

// NewSchemaBuilder returns an empty builder.
func NewSchemaBuilder() *SchemaBuilder {
	return &SchemaBuilder{}
}

// Add declares a property. Returns the builder for chaining.
func (b *SchemaBuilder) Add(key string, t ValueType) *SchemaBuilder {
	b.elements = append(b.elements, Element{Key: key, Type: t})
	return b
}

// Build validates and returns the schema.
//
// Outputs:
//   - Schema: The immutable schema.
//   - error: ErrInvalidSchema for empty keys, duplicate keys or unknown types.
func (b *SchemaBuilder) Build() (Schema, error) {
	s := Schema{
		elements: make([]Element, 0, len(b.elements)),
		index:    make(map[string]int, len(b.elements)),
	}
	for _, e := range b.elements {
		if e.Key == "" {
			return Schema{}, fmt.Errorf("%w: empty key", ErrInvalidSchema)
		}
		if e.Type < Double || e.Type > LongArray {
			return Schema{}, fmt.Errorf("%w: key %q has unknown type %d", ErrInvalidSchema, e.Key, int(e.Type))
		}
		if _, dup := s.index[e.Key]; dup {
			return Schema{}, fmt.Errorf("%w: duplicate key %q", ErrInvalidSchema, e.Key)
		}
		s.index[e.Key] = len(s.elements)
		s.elements = append(s.elements, e)
	}
	return s, nil
}

// MustBuild is Build that panics on error. Intended for package-level
// schemas of vertex programs.
func (b *SchemaBuilder) MustBuild() Schema {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}
