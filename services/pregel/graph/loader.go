// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// maxLineBytes bounds a single edge-list line.
const maxLineBytes = 1 << 20

// LoadEdgeList reads a whitespace separated edge list.
//
// Description:
//
//	Each non-empty line not starting with '#' or '%' holds a source and a
//	target node id. An optional third column is ignored. The node count is
//	the largest id seen plus one, or the value of a "# nodes: N" header if
//	that is larger, which allows trailing isolated nodes.
//
// Inputs:
//   - r: The edge list.
//   - opts: Builder options applied to the resulting graph.
//
// Outputs:
//   - *Graph: The loaded graph.
//   - error: ErrMalformedEdge with the line number, or a read error.
func LoadEdgeList(r io.Reader, opts ...BuilderOption) (*Graph, error) {
	type edge struct{ source, target int64 }

	var edges []edge
	var maxID int64 = -1
	var declared int64

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text[0] == '#' || text[0] == '%' {
			if n, ok := parseNodesHeader(text); ok {
				declared = n
			}
			continue
		}

		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: line %d: %q", ErrMalformedEdge, line, text)
		}
		source, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil || source < 0 {
			return nil, fmt.Errorf("%w: line %d: bad source %q", ErrMalformedEdge, line, fields[0])
		}
		target, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil || target < 0 {
			return nil, fmt.Errorf("%w: line %d: bad target %q", ErrMalformedEdge, line, fields[1])
		}

		edges = append(edges, edge{source, target})
		maxID = max(maxID, source, target)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read edge list: %w", err)
	}

	b := NewBuilder(max(maxID+1, declared), opts...)
	for _, e := range edges {
		if err := b.AddEdge(e.source, e.target); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

// LoadEdgeListFile opens path and calls LoadEdgeList.
func LoadEdgeListFile(path string, opts ...BuilderOption) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open edge list: %w", err)
	}
	defer f.Close()
	return LoadEdgeList(f, opts...)
}

// parseNodesHeader recognises "# nodes: N".
func parseNodesHeader(text string) (int64, bool) {
	body := strings.TrimSpace(strings.TrimLeft(text, "#%"))
	name, value, ok := strings.Cut(body, ":")
	if !ok || !strings.EqualFold(strings.TrimSpace(name), "nodes") {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
