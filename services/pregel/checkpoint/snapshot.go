// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checkpoint

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"hash/crc32"
	"slices"
	"time"

	"github.com/AleutianAI/AleutianPregel/services/pregel/values"
)

// Column is one node value property in a snapshot. Exactly one of the
// slices matching Type is populated.
type Column struct {
	Key          string
	Type         string
	Doubles      []float64
	Longs        []int64
	DoubleArrays [][]float64
	LongArrays   [][]int64
}

// Snapshot is the state of a run at the barrier after Superstep.
type Snapshot struct {
	RunID     string
	Superstep int
	NodeCount int64
	Columns   []Column
	Active    []bool
	CreatedAt time.Time
}

// Info describes a stored snapshot without its data.
type Info struct {
	RunID     string
	Superstep int
	NodeCount int64
	CreatedAt time.Time
	Bytes     int
}

// Capture copies node values and active bits into a new snapshot.
//
// Description:
//
//	Must be called at a barrier, while no worker writes to nv or active.
//	All slices are deep copied so the run can continue after Capture
//	returns.
//
// Inputs:
//   - runID: The run the snapshot belongs to.
//   - superstep: The superstep that just completed.
//   - nv: The node values.
//   - active: The active bit of every node.
//
// Outputs:
//   - *Snapshot: The snapshot.
func Capture(runID string, superstep int, nv *values.NodeValue, active []bool) *Snapshot {
	elements := nv.Schema().Elements()
	columns := make([]Column, 0, len(elements))
	for _, e := range elements {
		col := Column{Key: e.Key, Type: e.Type.String()}
		switch e.Type {
		case values.Double:
			col.Doubles = slices.Clone(nv.DoubleColumn(e.Key))
		case values.Long:
			col.Longs = slices.Clone(nv.LongColumn(e.Key))
		case values.DoubleArray:
			src := nv.DoubleArrayColumn(e.Key)
			col.DoubleArrays = make([][]float64, len(src))
			for i, a := range src {
				col.DoubleArrays[i] = slices.Clone(a)
			}
		case values.LongArray:
			src := nv.LongArrayColumn(e.Key)
			col.LongArrays = make([][]int64, len(src))
			for i, a := range src {
				col.LongArrays[i] = slices.Clone(a)
			}
		}
		columns = append(columns, col)
	}

	return &Snapshot{
		RunID:     runID,
		Superstep: superstep,
		NodeCount: nv.NodeCount(),
		Columns:   columns,
		Active:    slices.Clone(active),
		CreatedAt: time.Now().UTC(),
	}
}

// Restore rebuilds node values and active bits from the snapshot.
//
// Outputs:
//   - *values.NodeValue: A new value store with the snapshot's schema.
//   - []bool: The active bits.
//   - error: Non-nil if the snapshot's schema or column lengths are invalid.
func (s *Snapshot) Restore() (*values.NodeValue, []bool, error) {
	builder := values.NewSchemaBuilder()
	for _, col := range s.Columns {
		t, err := values.ParseValueType(col.Type)
		if err != nil {
			return nil, nil, fmt.Errorf("column %q: %w", col.Key, err)
		}
		builder.Add(col.Key, t)
	}
	schema, err := builder.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("rebuild schema: %w", err)
	}
	if int64(len(s.Active)) != s.NodeCount {
		return nil, nil, fmt.Errorf("%w: %d active bits for %d nodes", ErrCorrupted, len(s.Active), s.NodeCount)
	}

	nv := values.NewNodeValue(schema, s.NodeCount)
	for _, col := range s.Columns {
		var n int
		switch col.Type {
		case values.Double.String():
			n = copy(nv.DoubleColumn(col.Key), col.Doubles)
		case values.Long.String():
			n = copy(nv.LongColumn(col.Key), col.Longs)
		case values.DoubleArray.String():
			n = copy(nv.DoubleArrayColumn(col.Key), col.DoubleArrays)
		case values.LongArray.String():
			n = copy(nv.LongArrayColumn(col.Key), col.LongArrays)
		}
		if int64(n) != s.NodeCount {
			return nil, nil, fmt.Errorf("%w: column %q has %d of %d nodes", ErrCorrupted, col.Key, n, s.NodeCount)
		}
	}
	return nv, slices.Clone(s.Active), nil
}

// encodeSnapshot encodes a snapshot as [4-byte CRC32][gob data].
func encodeSnapshot(s *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}

	crc := crc32.ChecksumIEEE(buf.Bytes())
	result := make([]byte, 4+buf.Len())
	binary.BigEndian.PutUint32(result[:4], crc)
	copy(result[4:], buf.Bytes())
	return result, nil
}

// decodeSnapshot validates the CRC32 prefix and decodes the snapshot.
func decodeSnapshot(data []byte) (*Snapshot, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("%w: entry too short", ErrCorrupted)
	}

	stored := binary.BigEndian.Uint32(data[:4])
	payload := data[4:]
	if computed := crc32.ChecksumIEEE(payload); stored != computed {
		return nil, fmt.Errorf("%w: stored=%08x computed=%08x", ErrCorrupted, stored, computed)
	}

	var s Snapshot
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&s); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	return &s, nil
}
