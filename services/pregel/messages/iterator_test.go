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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIterator_Next(t *testing.T) {
	it := NewIterator()
	it.reset([]float64{1, 2})

	assert.Equal(t, 2, it.Len())
	assert.False(t, it.IsEmpty())

	v, ok := it.Next()
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)
	v, ok = it.Next()
	assert.True(t, ok)
	assert.Equal(t, 2.0, v)
	_, ok = it.Next()
	assert.False(t, ok)
	_, ok = it.Next()
	assert.False(t, ok)
}

func TestIterator_AllTwicePanics(t *testing.T) {
	it := NewIterator()
	it.reset([]float64{1, 2, 3})

	sum := 0.0
	for v := range it.All() {
		sum += v
	}
	assert.Equal(t, 6.0, sum)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, ErrIteratorConsumed))
	}()
	it.All()
}

func TestIterator_ResetAllowsNewRange(t *testing.T) {
	it := NewIterator()
	it.reset([]float64{1})
	for range it.All() {
	}
	it.resetSingle(5)
	var got []float64
	for v := range it.All() {
		got = append(got, v)
	}
	assert.Equal(t, []float64{5}, got)
}

func TestIterator_EarlyBreakKeepsRemainder(t *testing.T) {
	it := NewIterator()
	it.reset([]float64{1, 2, 3})
	for range it.All() {
		break
	}
	v, ok := it.Next()
	assert.True(t, ok)
	assert.Equal(t, 2.0, v)
}

func TestIterator_NextAfterDrainedAllPanics(t *testing.T) {
	it := NewIterator()
	it.reset([]float64{1, 2})
	for range it.All() {
	}

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.ErrorIs(t, err, ErrIteratorConsumed)
	}()
	it.Next()
}

func TestIterator_ResetClearsDrained(t *testing.T) {
	it := NewIterator()
	it.reset([]float64{1})
	for range it.All() {
	}
	it.reset([]float64{7})

	v, ok := it.Next()
	assert.True(t, ok)
	assert.Equal(t, 7.0, v)
}
