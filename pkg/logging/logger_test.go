// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{" warn ", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"Error", LevelError, false},
		{"trace", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownLevel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelDebug.toSlogLevel())
	assert.Equal(t, slog.LevelError, LevelError.toSlogLevel())
	assert.Equal(t, slog.LevelInfo, Level(-3).toSlogLevel())
}

func TestNew_ConsoleText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: LevelInfo, Output: &buf})
	require.NoError(t, err)
	defer logger.Close()

	logger.Debug("hidden")
	logger.Info("superstep finished", "superstep", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "superstep finished")
	assert.Contains(t, out, "superstep=3")
	assert.Contains(t, out, "service=pregel")
	assert.Empty(t, logger.FilePath())
}

func TestNew_ConsoleJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: LevelDebug, JSON: true, Output: &buf, Service: "bench"})
	require.NoError(t, err)

	logger.Warn("checkpoint failed", "run_id", "r1")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "checkpoint failed", record["msg"])
	assert.Equal(t, "bench", record["service"])
	assert.Equal(t, "r1", record["run_id"])
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: LevelWarn, Output: &buf})
	require.NoError(t, err)

	logger.Debug("d")
	logger.Info("i")
	logger.Warn("w")
	logger.Error("e")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
}

func TestNew_FileLogging(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	var console bytes.Buffer
	logger, err := New(Config{Level: LevelInfo, LogDir: dir, Output: &console})
	require.NoError(t, err)

	logger.Info("run started", "node_count", 10)
	require.NoError(t, logger.Close())

	path := logger.FilePath()
	assert.True(t, strings.HasPrefix(filepath.Base(path), "pregel_"))
	assert.Equal(t, ".log", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &record))
	assert.Equal(t, "run started", record["msg"])
	assert.EqualValues(t, 10, record["node_count"])
	assert.Contains(t, console.String(), "run started")
}

func TestNew_QuietFileOnly(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{Quiet: true, LogDir: dir})
	require.NoError(t, err)

	logger.Info("only in file")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(logger.FilePath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "only in file")
}

func TestNew_LogDirIsFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	_, err := New(Config{LogDir: filepath.Join(blocker, "logs")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create log dir")
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("nothing happens")
	assert.NoError(t, logger.Close())
}

func TestLogger_WithSharesFile(t *testing.T) {
	dir := t.TempDir()
	root, err := New(Config{Quiet: true, LogDir: dir})
	require.NoError(t, err)

	child := root.With("run_id", "abc")
	child.Info("from child")
	assert.Equal(t, root.FilePath(), child.FilePath())

	require.NoError(t, child.Close())
	require.NoError(t, root.Close(), "closing twice through a sibling must be a no-op")

	data, err := os.ReadFile(root.FilePath())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id":"abc"`)
}

func TestLogger_Slog(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Output: &buf})
	require.NoError(t, err)

	logger.Slog().LogAttrs(context.Background(), slog.LevelInfo, "attrs", slog.Int("partitions", 4))
	assert.Contains(t, buf.String(), "partitions=4")
}

func TestLogger_Concurrent(t *testing.T) {
	var mu sync.Mutex
	var buf bytes.Buffer
	logger, err := New(Config{JSON: true, Output: writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return buf.Write(p)
	})})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				logger.With("worker", w).Info("tick", "i", i)
			}
		}(w)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 400)
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("disk full") }

func TestMultiHandler(t *testing.T) {
	var info, debug bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}}
	ctx := context.Background()

	assert.True(t, h.Enabled(ctx, slog.LevelDebug))

	logger := slog.New(h).With("k", "v").WithGroup("g")
	logger.Debug("low", "x", 1)
	logger.Info("high", "x", 2)

	assert.NotContains(t, info.String(), "low")
	assert.Contains(t, info.String(), "g.x=2")
	assert.Contains(t, debug.String(), "low")
	assert.Contains(t, debug.String(), "k=v")
}

func TestMultiHandler_ContinuesAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	text := slog.NewTextHandler(&buf, nil)
	h := &multiHandler{handlers: []slog.Handler{failingHandler{text}, text}}

	err := h.Handle(context.Background(), slog.NewRecord(time.Time{}, slog.LevelInfo, "msg", 0))
	require.Error(t, err)
	assert.Contains(t, buf.String(), "msg")
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "logs"), expandPath("~/logs"))
	assert.Equal(t, home, expandPath("~"))
	assert.Equal(t, "/var/log", expandPath("/var/log"))
	assert.Equal(t, "~user/x", expandPath("~user/x"))
}
