// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package monitor exposes live pregel runs over HTTP.
//
// A Hub collects superstep events from any number of engines (through
// pregel.WithProgress) and fans them out to subscribers. The Server
// publishes the hub on a gin router:
//
//	GET /healthz                 liveness
//	GET /metrics                 Prometheus scrape endpoint, when configured
//	GET /runs                    status of every run seen by the hub
//	GET /runs/:id                status of one run
//	GET /runs/:id/checkpoints    stored snapshots of one run
//	GET /progress                websocket stream of Event values
//
// # Thread Safety
//
// Hub and Server are safe for concurrent use.
package monitor

import (
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianPregel/services/pregel"
)

// EventType distinguishes progress events.
type EventType string

const (
	// EventSuperstep is published after every completed superstep.
	EventSuperstep EventType = "superstep"

	// EventFinished is published once when a run ends.
	EventFinished EventType = "finished"
)

// DefaultSubscriberBuffer is the per-subscriber queue length.
const DefaultSubscriberBuffer = 64

// Event is one progress notification.
type Event struct {
	Type    EventType              `json:"type"`
	RunID   string                 `json:"run_id"`
	Stats   *pregel.SuperstepStats `json:"stats,omitempty"`
	Outcome string                 `json:"outcome,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Time    time.Time              `json:"time"`
}

// RunStatus is the hub's view of one run.
type RunStatus struct {
	RunID      string                 `json:"run_id"`
	Program    string                 `json:"program,omitempty"`
	Running    bool                   `json:"running"`
	Supersteps int                    `json:"supersteps"`
	Last       *pregel.SuperstepStats `json:"last,omitempty"`
	Outcome    string                 `json:"outcome,omitempty"`
	Error      string                 `json:"error,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Hub records run status and broadcasts events.
type Hub struct {
	mu      sync.RWMutex
	runs    map[string]*RunStatus
	subs    map[int]chan Event
	nextSub int
	dropped int64
	now     func() time.Time
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		runs: make(map[string]*RunStatus),
		subs: make(map[int]chan Event),
		now:  time.Now,
	}
}

// Start registers a run before its first superstep.
func (h *Hub) Start(runID, program string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	h.runs[runID] = &RunStatus{
		RunID:     runID,
		Program:   program,
		Running:   true,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Progress returns an observer for pregel.WithProgress that publishes
// EventSuperstep.
func (h *Hub) Progress() pregel.ProgressFunc {
	return func(runID string, stats pregel.SuperstepStats) {
		h.mu.Lock()
		now := h.now()
		status := h.statusLocked(runID, now)
		status.Supersteps = stats.Superstep + 1
		status.Last = &stats
		status.UpdatedAt = now
		h.broadcastLocked(Event{Type: EventSuperstep, RunID: runID, Stats: &stats, Time: now})
		h.mu.Unlock()
	}
}

// Finish records the end of a run and publishes EventFinished. result may
// be nil when err is set.
func (h *Hub) Finish(runID string, result *pregel.Result, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	status := h.statusLocked(runID, now)
	status.Running = false
	status.UpdatedAt = now

	ev := Event{Type: EventFinished, RunID: runID, Time: now}
	if err != nil {
		status.Error = err.Error()
		ev.Error = status.Error
	}
	if result != nil {
		status.Outcome = result.Outcome.String()
		status.Supersteps = result.Supersteps
		ev.Outcome = status.Outcome
	}
	h.broadcastLocked(ev)
}

func (h *Hub) statusLocked(runID string, now time.Time) *RunStatus {
	status, ok := h.runs[runID]
	if !ok {
		status = &RunStatus{RunID: runID, Running: true, StartedAt: now}
		h.runs[runID] = status
	}
	return status
}

// broadcastLocked never blocks. A subscriber whose queue is full misses
// the event.
func (h *Hub) broadcastLocked(ev Event) {
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped++
		}
	}
}

// Subscribe returns a channel of future events and a function that
// unsubscribes and closes it.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Runs returns every known run, most recently started first.
func (h *Hub) Runs() []RunStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]RunStatus, 0, len(h.runs))
	for _, status := range h.runs {
		out = append(out, *status)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].RunID < out[j].RunID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Run returns the status of one run.
func (h *Hub) Run(runID string) (RunStatus, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	status, ok := h.runs[runID]
	if !ok {
		return RunStatus{}, false
	}
	return *status, true
}

// Dropped returns how many events were discarded because a subscriber was
// too slow.
func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}
