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
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// StepMsg reports one completed superstep to the progress view.
type StepMsg struct {
	Superstep    int
	ActiveNodes  int64
	MessagesSent int64
}

// doneMsg stops the progress view.
type doneMsg struct{}

// ProgressModel is a bubbletea model showing superstep progress against
// the iteration cap.
//
// Thread Safety: owned by the bubbletea event loop. Feed it through
// ProgressView.Step, never directly.
type ProgressModel struct {
	title   string
	limit   int
	last    StepMsg
	steps   int
	bar     progress.Model
	spinner spinner.Model
	done    bool
}

// NewProgressModel returns a model for a run capped at limit supersteps.
func NewProgressModel(title string, limit int) ProgressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = Styles.Title
	return ProgressModel{
		title:   title,
		limit:   max(limit, 1),
		bar:     progress.New(progress.WithGradient(string(ColorTealDeep), string(ColorTealBright)), progress.WithWidth(40)),
		spinner: s,
	}
}

// Init implements tea.Model.
func (m ProgressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case StepMsg:
		m.last = msg
		m.steps = msg.Superstep + 1
		return m, nil

	case doneMsg:
		m.done = true
		return m, tea.Quit

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	default:
		return m, nil
	}
}

// Percent returns completed supersteps as a fraction of the cap.
func (m ProgressModel) Percent() float64 {
	return min(float64(m.steps)/float64(m.limit), 1)
}

// View implements tea.Model.
func (m ProgressModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), Styles.Bold.Render(m.title))
	fmt.Fprintf(&b, "  %s\n", m.bar.ViewAs(m.Percent()))
	fmt.Fprintf(&b, "  %s\n", Styles.Muted.Render(fmt.Sprintf(
		"superstep %d/%d  active %d  messages %d",
		m.steps, m.limit, m.last.ActiveNodes, m.last.MessagesSent)))
	return b.String()
}

// ProgressView runs a ProgressModel on its own goroutine.
type ProgressView struct {
	program *tea.Program
	done    chan struct{}
	once    sync.Once
}

// StartProgress starts a progress view writing to out. Keyboard input is
// not read; cancel ctx or call Stop to end it.
func StartProgress(ctx context.Context, out io.Writer, title string, limit int) *ProgressView {
	v := &ProgressView{
		program: tea.NewProgram(NewProgressModel(title, limit),
			tea.WithOutput(out),
			tea.WithInput(nil),
			tea.WithContext(ctx),
			tea.WithoutSignalHandler(),
		),
		done: make(chan struct{}),
	}
	go func() {
		defer close(v.done)
		_, _ = v.program.Run()
	}()
	return v
}

// Step forwards a completed superstep to the view.
func (v *ProgressView) Step(msg StepMsg) {
	v.program.Send(msg)
}

// Stop clears the view and waits for the program to exit.
func (v *ProgressView) Stop() {
	v.once.Do(func() {
		v.program.Send(doneMsg{})
	})
	<-v.done
}
