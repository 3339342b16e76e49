// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianPregel/services/pregel"
	"github.com/AleutianAI/AleutianPregel/services/pregel/checkpoint"
	"github.com/AleutianAI/AleutianPregel/services/pregel/graph"
	"github.com/AleutianAI/AleutianPregel/services/pregel/programs"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_ProgressAndFinish(t *testing.T) {
	h := NewHub()
	events, unsubscribe := h.Subscribe(8)
	defer unsubscribe()

	h.Start("r1", "cc")
	progress := h.Progress()
	progress("r1", pregel.SuperstepStats{Superstep: 0, ActiveNodes: 4, MessagesSent: 8})
	progress("r1", pregel.SuperstepStats{Superstep: 1, ActiveNodes: 0, MessagesSent: 0})
	h.Finish("r1", &pregel.Result{Outcome: pregel.OutcomeConverged, Supersteps: 2}, nil)

	var got []Event
	for i := 0; i < 3; i++ {
		got = append(got, <-events)
	}
	assert.Equal(t, EventSuperstep, got[0].Type)
	assert.Equal(t, int64(8), got[0].Stats.MessagesSent)
	assert.Equal(t, EventFinished, got[2].Type)
	assert.Equal(t, "converged", got[2].Outcome)

	status, ok := h.Run("r1")
	require.True(t, ok)
	assert.False(t, status.Running)
	assert.Equal(t, "cc", status.Program)
	assert.Equal(t, 2, status.Supersteps)
	assert.Equal(t, "converged", status.Outcome)
}

func TestHub_FinishWithError(t *testing.T) {
	h := NewHub()
	h.Finish("r2", nil, errors.New("boom"))

	status, ok := h.Run("r2")
	require.True(t, ok)
	assert.Equal(t, "boom", status.Error)
	assert.Empty(t, status.Outcome)

	_, ok = h.Run("missing")
	assert.False(t, ok)
}

func TestHub_SlowSubscriberDrops(t *testing.T) {
	h := NewHub()
	_, unsubscribe := h.Subscribe(1)
	defer unsubscribe()

	progress := h.Progress()
	for i := 0; i < 5; i++ {
		progress("r", pregel.SuperstepStats{Superstep: i})
	}
	assert.Equal(t, int64(4), h.Dropped())
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	events, unsubscribe := h.Subscribe(0)
	unsubscribe()
	unsubscribe()

	_, ok := <-events
	assert.False(t, ok)
	h.Progress()("r", pregel.SuperstepStats{})
}

func TestHub_RunsOrder(t *testing.T) {
	h := NewHub()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	h.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	h.Start("old", "cc")
	h.Start("new", "sssp")

	runs := h.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].RunID)
	assert.Equal(t, "old", runs[1].RunID)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Routes(t *testing.T) {
	store, err := checkpoint.Open(checkpoint.InMemoryConfig())
	require.NoError(t, err)
	defer store.Close()

	hub := NewHub()
	hub.Start("live", "cc")

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pregel_runs_total 1\n"))
	})
	srv := NewServer(hub, WithCheckpoints(store), WithMetricsHandler(metrics))
	h := srv.Handler()

	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pregel_runs_total")

	rec = get(t, h, "/runs/live")
	assert.Equal(t, http.StatusOK, rec.Code)
	var status RunStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Running)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/runs/nope").Code)

	rec = get(t, h, "/runs/live/checkpoints")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"run_id":"live","checkpoints":[]}`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/runs/a:b/checkpoints").Code)
}

func TestServer_RunsIncludesStoredCheckpoints(t *testing.T) {
	store, err := checkpoint.Open(checkpoint.InMemoryConfig())
	require.NoError(t, err)
	defer store.Close()

	g := ringGraph(t)
	cfg := pregel.DefaultConfig()
	cfg.Concurrency = 2
	cfg.CheckpointEvery = 1
	p, err := pregel.New(g, cfg, programs.ConnectedComponents{},
		pregel.WithRunID("stored"), pregel.WithCheckpointer(store))
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.NoError(t, err)

	srv := NewServer(NewHub(), WithCheckpoints(store))
	rec := get(t, srv.Handler(), "/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"run_id":"stored"`)

	rec = get(t, srv.Handler(), "/runs/stored/checkpoints")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Superstep":0`)
}

func TestServer_NoCheckpointsOrMetrics(t *testing.T) {
	srv := NewServer(NewHub())
	assert.Equal(t, http.StatusNotFound, get(t, srv.Handler(), "/runs/x/checkpoints").Code)
	assert.Equal(t, http.StatusNotFound, get(t, srv.Handler(), "/metrics").Code)
}

func ringGraph(t *testing.T) *graph.Graph {
	t.Helper()
	b := graph.NewBuilder(4, graph.WithUndirected())
	for i := int64(0); i < 4; i++ {
		require.NoError(t, b.AddEdge(i, (i+1)%4))
	}
	g, err := b.Build()
	require.NoError(t, err)
	return g
}

func TestServer_ProgressWebsocket(t *testing.T) {
	hub := NewHub()
	srv := NewServer(hub)
	require.NoError(t, srv.Start("127.0.0.1:0"))
	defer srv.Shutdown(context.Background())

	url := "ws://" + srv.Addr() + "/progress"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Wait until the handler has subscribed before publishing.
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.subs) == 1
	}, 5*time.Second, 10*time.Millisecond)

	g := ringGraph(t)
	cfg := pregel.DefaultConfig()
	cfg.Concurrency = 2
	p, err := pregel.New(g, cfg, programs.ConnectedComponents{},
		pregel.WithRunID("ws"), pregel.WithProgress(hub.Progress()))
	require.NoError(t, err)
	hub.Start("ws", "cc")
	result, err := p.Run(context.Background())
	hub.Finish("ws", result, err)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var events []Event
	for {
		var ev Event
		require.NoError(t, conn.ReadJSON(&ev))
		events = append(events, ev)
		if ev.Type == EventFinished {
			break
		}
	}
	assert.Len(t, events, result.Supersteps+1)
	assert.Equal(t, "ws", events[0].RunID)
	assert.Equal(t, "converged", events[len(events)-1].Outcome)
}

func TestServer_ShutdownClosesStreams(t *testing.T) {
	srv := NewServer(NewHub())
	require.NoError(t, srv.Start("127.0.0.1:0"))

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/progress", nil)
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway) || strings.Contains(err.Error(), "EOF"),
		"unexpected error: %v", err)
}

func TestServer_StartBadAddr(t *testing.T) {
	srv := NewServer(NewHub())
	assert.Error(t, srv.Start("256.0.0.1:bad"))
	assert.Empty(t, srv.Addr())
	assert.NoError(t, srv.Shutdown(context.Background()))
}
