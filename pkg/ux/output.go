// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders pregel CLI output for humans and scripts.
//
// Output adapts to where it is going. A terminal gets colors, icons, and a
// live progress view; a pipe or file gets plain, line-oriented text that is
// stable enough to grep.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
)

// Palette.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Header  lipgloss.Style
	Cell    lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Header:  lipgloss.NewStyle().Bold(true).Foreground(ColorTealPrimary).Padding(0, 1),
	Cell:    lipgloss.NewStyle().Padding(0, 1),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
)

// Render returns the icon with its color.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return string(i)
	}
}

// Mode selects how rich the output is.
type Mode string

const (
	// ModeRich uses colors, icons, boxes, and bordered tables.
	ModeRich Mode = "rich"

	// ModeMachine writes plain tab-separated lines.
	ModeMachine Mode = "machine"
)

// DetectMode returns ModeRich when w is a terminal and NO_COLOR is unset.
func DetectMode(w io.Writer) Mode {
	if os.Getenv("NO_COLOR") != "" {
		return ModeMachine
	}
	if IsTerminal(w) {
		return ModeRich
	}
	return ModeMachine
}

// IsTerminal reports whether w is an *os.File attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Printer writes styled output to a single writer.
type Printer struct {
	w    io.Writer
	mode Mode
}

// NewPrinter returns a Printer for w. An empty mode is detected from w.
func NewPrinter(w io.Writer, mode Mode) *Printer {
	if mode == "" {
		mode = DetectMode(w)
	}
	return &Printer{w: w, mode: mode}
}

// Mode returns the printer's mode.
func (p *Printer) Mode() Mode { return p.mode }

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer { return p.w }

// Title prints a heading. Machine mode omits it.
func (p *Printer) Title(text string) {
	if p.mode == ModeMachine {
		return
	}
	fmt.Fprintln(p.w, Styles.Title.Render(text))
}

func (p *Printer) Success(text string) { p.status(IconSuccess, "OK", Styles.Success, text) }
func (p *Printer) Warning(text string) { p.status(IconWarning, "WARN", Styles.Warning, text) }
func (p *Printer) Error(text string)   { p.status(IconError, "ERROR", Styles.Error, text) }

func (p *Printer) status(icon Icon, tag string, style lipgloss.Style, text string) {
	if p.mode == ModeMachine {
		fmt.Fprintf(p.w, "%s: %s\n", tag, text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", icon.Render(), style.Render(text))
}

// KeyValues prints aligned key/value pairs. In rich mode they are boxed
// under title.
func (p *Printer) KeyValues(title string, pairs [][2]string) {
	if p.mode == ModeMachine {
		for _, kv := range pairs {
			fmt.Fprintf(p.w, "%s\t%s\n", kv[0], kv[1])
		}
		return
	}

	width := 0
	for _, kv := range pairs {
		width = max(width, lipgloss.Width(kv[0]))
	}
	var b strings.Builder
	b.WriteString(Styles.Title.Render(title))
	for _, kv := range pairs {
		b.WriteString("\n")
		b.WriteString(Styles.Muted.Render(kv[0] + strings.Repeat(" ", width-lipgloss.Width(kv[0]))))
		b.WriteString("  ")
		b.WriteString(kv[1])
	}
	fmt.Fprintln(p.w, Styles.Box.Render(b.String()))
}

// Table prints rows under headers. Machine mode writes a tab-separated
// header line followed by one line per row.
func (p *Printer) Table(headers []string, rows [][]string) {
	if p.mode == ModeMachine {
		fmt.Fprintln(p.w, strings.Join(headers, "\t"))
		for _, row := range rows {
			fmt.Fprintln(p.w, strings.Join(row, "\t"))
		}
		return
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorTealDeep)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return Styles.Header
			}
			return Styles.Cell
		}).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(p.w, t.Render())
}
