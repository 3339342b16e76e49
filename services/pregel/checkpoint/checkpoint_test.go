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
	"context"
	"math"
	"testing"

	"github.com/AleutianAI/AleutianPregel/services/pregel/values"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testValues(t *testing.T) *values.NodeValue {
	t.Helper()
	schema := values.NewSchemaBuilder().
		Add("rank", values.Double).
		Add("component", values.Long).
		Add("history", values.DoubleArray).
		Add("path", values.LongArray).
		MustBuild()
	nv := values.NewNodeValue(schema, 3)
	for i := int64(0); i < 3; i++ {
		nv.SetDouble("rank", i, float64(i)/2)
		nv.SetLong("component", i, i*10)
		nv.SetDoubleArray("history", i, []float64{float64(i), math.Inf(1)})
		nv.SetLongArray("path", i, []int64{i, i + 1})
	}
	return nv
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"in memory", InMemoryConfig(), false},
		{"default with path", DefaultConfig("/tmp/x"), false},
		{"missing path", Config{}, true},
		{"negative gc interval", Config{InMemory: true, GCInterval: -1}, true},
		{"bad ratio", Config{InMemory: true, GCDiscardRatio: 2}, true},
		{"small memtable", Config{InMemory: true, MemTableSize: 4096}, true},
		{"memtable override", Config{InMemory: true, MemTableSize: 1 << 20}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCapture_DeepCopies(t *testing.T) {
	nv := testValues(t)
	active := []bool{true, false, true}

	snap := Capture("run-1", 4, nv, active)
	nv.SetDouble("rank", 0, 99)
	nv.DoubleArray("history", 1)[0] = 99
	active[0] = false

	assert.Equal(t, 0.0, snap.Columns[0].Doubles[0])
	assert.Equal(t, 1.0, snap.Columns[2].DoubleArrays[1][0])
	assert.True(t, snap.Active[0])
	assert.Equal(t, int64(3), snap.NodeCount)
	assert.Equal(t, 4, snap.Superstep)
}

func TestSnapshot_RestoreRoundTrip(t *testing.T) {
	nv := testValues(t)
	snap := Capture("run-1", 2, nv, []bool{true, false, true})

	data, err := encodeSnapshot(snap)
	require.NoError(t, err)
	decoded, err := decodeSnapshot(data)
	require.NoError(t, err)

	restored, active, err := decoded.Restore()
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, active)
	assert.Equal(t, nv.DoubleColumn("rank"), restored.DoubleColumn("rank"))
	assert.Equal(t, nv.LongColumn("component"), restored.LongColumn("component"))
	assert.True(t, math.IsInf(restored.DoubleArray("history", 2)[1], 1))
	assert.Equal(t, []int64{2, 3}, restored.LongArray("path", 2))
}

func TestSnapshot_RestoreRejectsShortColumns(t *testing.T) {
	snap := Capture("run-1", 0, testValues(t), []bool{true, true, true})
	snap.Columns[1].Longs = snap.Columns[1].Longs[:1]

	_, _, err := snap.Restore()
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestDecodeSnapshot_DetectsCorruption(t *testing.T) {
	data, err := encodeSnapshot(Capture("run-1", 0, testValues(t), []bool{true, true, true}))
	require.NoError(t, err)

	data[len(data)-1] ^= 0xFF
	_, err = decodeSnapshot(data)
	assert.ErrorIs(t, err, ErrCorrupted)

	_, err = decodeSnapshot([]byte{1, 2})
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestStore_SaveLatestList(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	nv := testValues(t)

	for _, step := range []int{0, 2, 10} {
		require.NoError(t, s.Save(ctx, Capture("run-a", step, nv, []bool{true, true, true})))
	}
	require.NoError(t, s.Save(ctx, Capture("run-b", 7, nv, []bool{false, false, false})))

	latest, err := s.Latest(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, 10, latest.Superstep)

	infos, err := s.List(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, 0, infos[0].Superstep)
	assert.Equal(t, 2, infos[1].Superstep)
	assert.Equal(t, 10, infos[2].Superstep)
	assert.Positive(t, infos[0].Bytes)

	loaded, err := s.Load(ctx, "run-b", 7)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, false}, loaded.Active)
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Latest(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Load(ctx, "missing", 1)
	assert.ErrorIs(t, err, ErrNotFound)

	infos, err := s.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	nv := testValues(t)

	require.NoError(t, s.Save(ctx, Capture("run-a", 0, nv, []bool{true, true, true})))
	require.NoError(t, s.Save(ctx, Capture("run-a", 1, nv, []bool{true, true, true})))
	require.NoError(t, s.Save(ctx, Capture("run-ab", 1, nv, []bool{true, true, true})))

	n, err := s.Delete(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.Latest(ctx, "run-a")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Latest(ctx, "run-ab")
	assert.NoError(t, err)
}

func TestStore_DeleteBeyondOneTransaction(t *testing.T) {
	ctx := context.Background()
	cfg := InMemoryConfig()
	cfg.MemTableSize = 1 << 20
	s, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	nv := testValues(t)
	active := []bool{true, false, true}
	const snapshots = 2500
	for i := 0; i < snapshots; i++ {
		require.NoError(t, s.Save(ctx, Capture("long-run", i, nv, active)))
	}
	require.NoError(t, s.Save(ctx, Capture("other", 0, nv, active)))

	// One transaction cannot hold every delete at this memtable size.
	err = s.db.Update(func(txn *badger.Txn) error {
		for i := 0; i < snapshots; i++ {
			if err := txn.Delete(snapshotKey("long-run", i)); err != nil {
				return err
			}
		}
		return nil
	})
	require.ErrorIs(t, err, badger.ErrTxnTooBig)

	n, err := s.Delete(ctx, "long-run")
	require.NoError(t, err)
	assert.Equal(t, snapshots, n)

	infos, err := s.List(ctx, "long-run")
	require.NoError(t, err)
	assert.Empty(t, infos)

	_, err = s.Latest(ctx, "other")
	assert.NoError(t, err)
}

func TestStore_DeleteCancelled(t *testing.T) {
	s := openTestStore(t)
	nv := testValues(t)
	require.NoError(t, s.Save(context.Background(), Capture("run-c", 0, nv, []bool{true, true, true})))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Delete(ctx, "run-c")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.Latest(context.Background(), "run-c")
	assert.NoError(t, err)
}

func TestStore_Runs(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	nv := testValues(t)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)

	for _, run := range []string{"run-b", "run-a", "run-a0"} {
		for step := 0; step < 3; step++ {
			require.NoError(t, s.Save(ctx, Capture(run, step, nv, []bool{true, true, true})))
		}
	}

	runs, err = s.Runs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-a0", "run-a", "run-b"}, runs)
}

func TestStore_InvalidInput(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	assert.ErrorIs(t, s.Save(ctx, nil), ErrNilSnapshot)
	assert.ErrorIs(t, s.Save(ctx, &Snapshot{RunID: "a:b"}), ErrInvalidRunID)
	_, err := s.List(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidRunID)
}

func TestStore_Closed(t *testing.T) {
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	ctx := context.Background()
	assert.ErrorIs(t, s.Save(ctx, &Snapshot{RunID: "r"}), ErrStoreClosed)
	_, err = s.Latest(ctx, "r")
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestStore_Persistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cfg := DefaultConfig(dir)
	cfg.GCInterval = 0
	s, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, Capture("run-p", 3, testValues(t), []bool{true, false, true})))
	require.NoError(t, s.Close())

	s, err = Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	latest, err := s.Latest(ctx, "run-p")
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Superstep)
}
