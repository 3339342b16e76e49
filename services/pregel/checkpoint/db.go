// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package checkpoint persists superstep snapshots of a pregel run in
// BadgerDB.
//
// A snapshot holds every node value column and the active bits as they
// were at the barrier after a superstep. Snapshots are gob encoded with a
// CRC32 prefix so corrupted entries are detected on read.
//
// Keys are laid out as
//
//	checkpoint:<run id>:<superstep, zero padded>
//
// so a prefix scan lists the checkpoints of one run in superstep order.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/AleutianAI/AleutianPregel/pkg/validation"
	"github.com/dgraph-io/badger/v4"
)

var (
	// ErrStoreClosed is returned when operations are called on a closed store.
	ErrStoreClosed = errors.New("checkpoint store is closed")

	// ErrNotFound is returned when no checkpoint exists for a run.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrCorrupted is returned when a stored snapshot fails its integrity check.
	ErrCorrupted = errors.New("checkpoint corrupted (CRC mismatch)")

	// ErrInvalidConfig is returned by Open for unusable configurations.
	ErrInvalidConfig = errors.New("invalid checkpoint store config")

	// ErrNilSnapshot is returned when saving a nil snapshot.
	ErrNilSnapshot = errors.New("snapshot must not be nil")

	// ErrInvalidRunID is returned for run ids rejected by
	// validation.ValidateRunID.
	ErrInvalidRunID = validation.ErrInvalidRunID
)

// minMemTableSize is the smallest accepted Config.MemTableSize.
const minMemTableSize = 1 << 20

// Config holds configuration for a checkpoint store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory keeps the store in memory only. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	// Default: true for production, false for testing.
	SyncWrites bool

	// Logger receives BadgerDB's internal log lines.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Default: 5 minutes. Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	// Default: 0.5.
	GCDiscardRatio float64

	// MemTableSize overrides BadgerDB's memtable size in bytes. A single
	// transaction is limited to 15% of it. Zero keeps BadgerDB's default.
	MemTableSize int64
}

// DefaultConfig returns production defaults for a store at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration optimized for testing.
//
// Description:
//
//	Returns a Config with:
//	- InMemory mode enabled (no disk I/O)
//	- SyncWrites disabled (faster tests)
//	- GC disabled
func InMemoryConfig() Config {
	return Config{
		InMemory: true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return fmt.Errorf("%w: path is required for a persistent store", ErrInvalidConfig)
	}
	if c.GCInterval < 0 {
		return fmt.Errorf("%w: gc interval must not be negative", ErrInvalidConfig)
	}
	if c.GCDiscardRatio < 0 || c.GCDiscardRatio > 1 {
		return fmt.Errorf("%w: gc discard ratio must be between 0 and 1", ErrInvalidConfig)
	}
	if c.MemTableSize != 0 && c.MemTableSize < minMemTableSize {
		return fmt.Errorf("%w: memtable size must be at least %d bytes", ErrInvalidConfig, minMemTableSize)
	}
	return nil
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// openBadger opens the underlying database.
func openBadger(cfg Config) (*badger.DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create checkpoint directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.MemTableSize > 0 {
		opts = opts.WithMemTableSize(cfg.MemTableSize)
		// Values above the batch limit could never be written.
		if limit := cfg.MemTableSize * 15 / 100; opts.ValueThreshold > limit {
			opts = opts.WithValueThreshold(limit)
		}
	}

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return db, nil
}

// gcRunner runs periodic value log garbage collection.
type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   *slog.Logger
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	r := &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}
	go r.run()
	return r
}

func (r *gcRunner) stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *gcRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			// ErrNoRewrite means nothing was worth collecting.
			if err := r.db.RunValueLogGC(r.ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				if r.logger != nil {
					r.logger.Warn("checkpoint value log GC error", slog.String("error", err.Error()))
				}
			}
		}
	}
}

// withTxn executes fn within a read-write transaction and commits if fn
// returns nil.
func withTxn(ctx context.Context, db *badger.DB, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// withReadTxn executes fn within a read-only transaction.
func withReadTxn(ctx context.Context, db *badger.DB, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := db.NewTransaction(false)
	defer txn.Discard()

	return fn(txn)
}
