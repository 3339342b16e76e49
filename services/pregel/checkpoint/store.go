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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/AleutianAI/AleutianPregel/pkg/telemetry"
	"github.com/AleutianAI/AleutianPregel/pkg/validation"
	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("aleutian.pregel.checkpoint")

// Store saves and loads run snapshots.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db       *badger.DB
	gc       *gcRunner
	logger   *slog.Logger
	inMemory bool
	closed   atomic.Bool
}

// Open opens a checkpoint store.
//
// Inputs:
//   - cfg: Store configuration. Must pass Validate().
//
// Outputs:
//   - *Store: The store. Caller must call Close() when done.
//   - error: Non-nil if the configuration is invalid or the database
//     cannot be opened.
func Open(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := openBadger(cfg)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		db:       db,
		logger:   logger.With(slog.String("component", "checkpoint")),
		inMemory: cfg.InMemory,
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
	}
	return s, nil
}

// Close stops garbage collection and closes the database. Idempotent.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.gc != nil {
		s.gc.stop()
	}
	if !s.inMemory {
		if err := s.db.Sync(); err != nil {
			s.logger.Warn("sync before close failed", slog.String("error", err.Error()))
		}
	}
	return s.db.Close()
}

// checkRunID rejects ids that would collide with another run's key prefix.
func checkRunID(runID string) error {
	return validation.ValidateRunID(runID)
}

func runPrefix(runID string) []byte {
	return []byte("checkpoint:" + runID + ":")
}

func snapshotKey(runID string, superstep int) []byte {
	return fmt.Appendf(runPrefix(runID), "%010d", superstep)
}

// Save stores a snapshot, replacing any snapshot of the same run and
// superstep.
func (s *Store) Save(ctx context.Context, snapshot *Snapshot) error {
	if snapshot == nil {
		return ErrNilSnapshot
	}
	if err := checkRunID(snapshot.RunID); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrStoreClosed
	}

	ctx, span := tracer.Start(ctx, "checkpoint.Save",
		trace.WithAttributes(
			attribute.String("pregel.run_id", snapshot.RunID),
			attribute.Int("pregel.superstep", snapshot.Superstep),
		),
	)
	defer span.End()

	data, err := encodeSnapshot(snapshot)
	if err != nil {
		telemetry.RecordError(span, err, "encode failed")
		return err
	}

	err = withTxn(ctx, s.db, func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(snapshot.RunID, snapshot.Superstep), data)
	})
	if err != nil {
		telemetry.RecordError(span, err, "write failed")
		return fmt.Errorf("save checkpoint: %w", err)
	}

	span.SetAttributes(attribute.Int("checkpoint.bytes", len(data)))
	s.logger.Debug("checkpoint saved",
		slog.String("run_id", snapshot.RunID),
		slog.Int("superstep", snapshot.Superstep),
		slog.Int("bytes", len(data)))
	return nil
}

// Load returns the snapshot of runID taken after superstep.
func (s *Store) Load(ctx context.Context, runID string, superstep int) (*Snapshot, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	if err := checkRunID(runID); err != nil {
		return nil, err
	}

	var snapshot *Snapshot
	err := withReadTxn(ctx, s.db, func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(runID, superstep))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: run %s superstep %d", ErrNotFound, runID, superstep)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			snapshot, err = decodeSnapshot(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Latest returns the snapshot of runID with the highest superstep.
func (s *Store) Latest(ctx context.Context, runID string) (*Snapshot, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	if err := checkRunID(runID); err != nil {
		return nil, err
	}

	prefix := runPrefix(runID)
	var snapshot *Snapshot
	err := withReadTxn(ctx, s.db, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks to the last key <= the seek key.
		it.Seek(append(prefix, 0xFF))
		if !it.ValidForPrefix(prefix) {
			return fmt.Errorf("%w: run %s", ErrNotFound, runID)
		}
		return it.Item().Value(func(val []byte) error {
			var err error
			snapshot, err = decodeSnapshot(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// List returns the stored snapshots of runID in superstep order.
func (s *Store) List(ctx context.Context, runID string) ([]Info, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	if err := checkRunID(runID); err != nil {
		return nil, err
	}

	prefix := runPrefix(runID)
	var infos []Info
	err := withReadTxn(ctx, s.db, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			superstep, err := strconv.Atoi(string(item.Key()[len(prefix):]))
			if err != nil {
				return fmt.Errorf("%w: key %q", ErrCorrupted, item.Key())
			}
			err = item.Value(func(val []byte) error {
				snapshot, err := decodeSnapshot(val)
				if err != nil {
					return err
				}
				infos = append(infos, Info{
					RunID:     runID,
					Superstep: superstep,
					NodeCount: snapshot.NodeCount,
					CreatedAt: snapshot.CreatedAt,
					Bytes:     len(val),
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// Runs returns the distinct run IDs that have at least one snapshot, in
// key order.
func (s *Store) Runs(ctx context.Context) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	prefix := []byte("checkpoint:")
	var runs []string
	err := withReadTxn(ctx, s.db, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); {
			if err := ctx.Err(); err != nil {
				return err
			}
			rest := it.Item().Key()[len(prefix):]
			end := bytes.IndexByte(rest, ':')
			if end <= 0 {
				return fmt.Errorf("%w: key %q", ErrCorrupted, it.Item().Key())
			}
			runID := string(rest[:end])
			runs = append(runs, runID)
			// Skip the rest of this run: ';' sorts right after ':'.
			it.Seek(append([]byte("checkpoint:"+runID), ';'))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// deleteCheckInterval is how many deletes Delete queues between context checks.
const deleteCheckInterval = 1024

// Delete removes every snapshot of runID and returns how many were removed.
//
// The removal is not atomic: a failure part way through can leave the
// oldest snapshots of the run deleted and the rest in place.
func (s *Store) Delete(ctx context.Context, runID string) (int, error) {
	if s.closed.Load() {
		return 0, ErrStoreClosed
	}
	if err := checkRunID(runID); err != nil {
		return 0, err
	}

	prefix := runPrefix(runID)
	var keys [][]byte
	err := withReadTxn(ctx, s.db, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	// A write batch commits whenever a transaction would grow too big, so
	// runs with many snapshots are removed across several commits.
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for i, k := range keys {
		if i%deleteCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		if err := wb.Delete(k); err != nil {
			return 0, fmt.Errorf("delete checkpoints: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("delete checkpoints: %w", err)
	}
	return len(keys), nil
}
