// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectMode_NonTerminal(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, ModeMachine, DetectMode(&buf))
	assert.False(t, IsTerminal(&buf))
}

func TestDetectMode_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.Equal(t, ModeMachine, DetectMode(nil))
}

func TestNewPrinter_DetectsMode(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, "")
	assert.Equal(t, ModeMachine, p.Mode())
	assert.Same(t, &buf, p.Writer())
}

func TestPrinter_Machine(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, ModeMachine)

	p.Title("ignored")
	p.Success("converged")
	p.Warning("checkpoint skipped")
	p.Error("run aborted")
	p.KeyValues("Result", [][2]string{{"outcome", "converged"}, {"supersteps", "4"}})
	p.Table([]string{"node", "component"}, [][]string{{"0", "0"}, {"1", "0"}})

	want := strings.Join([]string{
		"OK: converged",
		"WARN: checkpoint skipped",
		"ERROR: run aborted",
		"outcome\tconverged",
		"supersteps\t4",
		"node\tcomponent",
		"0\t0",
		"1\t0",
	}, "\n") + "\n"
	assert.Equal(t, want, buf.String())
}

func TestPrinter_Rich(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, ModeRich)

	p.Title("Pregel")
	p.Success("done")
	p.KeyValues("Result", [][2]string{{"outcome", "converged"}, {"run_id", "abc"}})
	p.Table([]string{"superstep", "active"}, [][]string{{"0", "4"}})

	out := buf.String()
	assert.Contains(t, out, "Pregel")
	assert.Contains(t, out, "done")
	assert.Contains(t, out, "converged")
	assert.Contains(t, out, "superstep")
	assert.Contains(t, out, "╭", "rich tables and boxes use rounded borders")
}

func TestIcon_Render(t *testing.T) {
	assert.Contains(t, IconSuccess.Render(), "✓")
	assert.Contains(t, IconError.Render(), "✗")
	assert.Equal(t, "→", IconArrow.Render())
}

func TestProgressModel_Update(t *testing.T) {
	m := NewProgressModel("cc", 4)
	assert.NotNil(t, m.Init())
	assert.Equal(t, 0.0, m.Percent())

	next, cmd := m.Update(StepMsg{Superstep: 1, ActiveNodes: 3, MessagesSent: 6})
	assert.Nil(t, cmd)
	m = next.(ProgressModel)
	assert.Equal(t, 0.5, m.Percent())
	assert.Contains(t, m.View(), "superstep 2/4  active 3  messages 6")

	next, _ = m.Update(StepMsg{Superstep: 9})
	m = next.(ProgressModel)
	assert.Equal(t, 1.0, m.Percent())

	next, cmd = m.Update(doneMsg{})
	m = next.(ProgressModel)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
}

func TestProgressModel_ZeroLimit(t *testing.T) {
	m := NewProgressModel("x", 0)
	next, _ := m.Update(StepMsg{Superstep: 0})
	assert.Equal(t, 1.0, next.(ProgressModel).Percent())
}

func TestProgressView_StartStop(t *testing.T) {
	var buf bytes.Buffer
	v := StartProgress(context.Background(), &buf, "pagerank", 3)
	v.Step(StepMsg{Superstep: 0, ActiveNodes: 2})

	stopped := make(chan struct{})
	go func() {
		v.Stop()
		v.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("progress view did not stop")
	}
}
