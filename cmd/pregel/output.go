// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianPregel/pkg/ux"
	"github.com/AleutianAI/AleutianPregel/services/pregel"
	"github.com/AleutianAI/AleutianPregel/services/pregel/values"
)

// resultReport is everything printed after a run.
type resultReport struct {
	Program   string
	Graph     string
	Nodes     int64
	Edges     int64
	ResultKey string
	Result    *pregel.Result
}

// jsonReport is the --output json document. Infinite doubles (unreachable
// nodes in sssp) are written as null.
type jsonReport struct {
	RunID        string                  `json:"run_id"`
	Program      string                  `json:"program"`
	Graph        string                  `json:"graph"`
	Nodes        int64                   `json:"nodes"`
	Edges        int64                   `json:"edges"`
	Outcome      string                  `json:"outcome"`
	Converged    bool                    `json:"converged"`
	Supersteps   int                     `json:"supersteps"`
	Partitioning string                  `json:"partitioning"`
	Partitions   int                     `json:"partitions"`
	DurationMS   int64                   `json:"duration_ms"`
	Stats        []pregel.SuperstepStats `json:"stats"`
	Key          string                  `json:"key"`
	Values       []any                   `json:"values"`
}

func writeResult(p *ux.Printer, format string, top int, r resultReport) error {
	if format == "json" {
		return writeJSON(p, r)
	}

	res := r.Result
	p.KeyValues("Run", [][2]string{
		{"run_id", res.RunID},
		{"program", r.Program},
		{"graph", fmt.Sprintf("%s (%d nodes, %d relationships)", r.Graph, r.Nodes, r.Edges)},
		{"outcome", res.Outcome.String()},
		{"converged", strconv.FormatBool(res.Converged)},
		{"supersteps", strconv.Itoa(res.Supersteps)},
		{"partitioning", fmt.Sprintf("%s (%d partitions)", res.Partitioning, res.Partitions)},
		{"duration", res.Duration.Round(time.Microsecond).String()},
	})

	rows := make([][]string, 0, len(res.Stats))
	for _, st := range res.Stats {
		rows = append(rows, []string{
			strconv.Itoa(st.Superstep),
			strconv.FormatInt(st.NodesComputed, 10),
			strconv.FormatInt(st.ActiveNodes, 10),
			strconv.FormatInt(st.MessagesSent, 10),
			st.Duration.Round(time.Microsecond).String(),
		})
	}
	p.Table([]string{"superstep", "computed", "active", "messages", "duration"}, rows)

	if res.Values == nil || r.ResultKey == "" {
		return nil
	}
	elem, ok := res.Values.Schema().Lookup(r.ResultKey)
	if !ok {
		return fmt.Errorf("result key %q is not in the program schema", r.ResultKey)
	}
	n := res.Values.NodeCount()
	limit := n
	if top > 0 && int64(top) < n {
		limit = int64(top)
	}
	rows = make([][]string, 0, limit)
	for node := int64(0); node < limit; node++ {
		rows = append(rows, []string{strconv.FormatInt(node, 10), formatValue(res.Values, elem, node)})
	}
	p.Table([]string{"node", r.ResultKey}, rows)
	if limit < n {
		p.Warning(fmt.Sprintf("showing %d of %d nodes; use --top 0 or --output json for all", limit, n))
	}
	if r.Program == "cc" {
		p.Success(fmt.Sprintf("%d connected components", countDistinct(res.Values.LongColumn(r.ResultKey))))
	}
	return nil
}

func writeJSON(p *ux.Printer, r resultReport) error {
	res := r.Result
	doc := jsonReport{
		RunID:        res.RunID,
		Program:      r.Program,
		Graph:        r.Graph,
		Nodes:        r.Nodes,
		Edges:        r.Edges,
		Outcome:      res.Outcome.String(),
		Converged:    res.Converged,
		Supersteps:   res.Supersteps,
		Partitioning: res.Partitioning.String(),
		Partitions:   res.Partitions,
		DurationMS:   res.Duration.Milliseconds(),
		Stats:        res.Stats,
		Key:          r.ResultKey,
		Values:       []any{},
	}
	if doc.Stats == nil {
		doc.Stats = []pregel.SuperstepStats{}
	}
	if res.Values != nil && r.ResultKey != "" {
		elem, ok := res.Values.Schema().Lookup(r.ResultKey)
		if !ok {
			return fmt.Errorf("result key %q is not in the program schema", r.ResultKey)
		}
		doc.Values = make([]any, res.Values.NodeCount())
		for node := range doc.Values {
			doc.Values[node] = jsonValue(res.Values, elem, int64(node))
		}
	}

	enc := json.NewEncoder(p.Writer())
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func formatValue(nv *values.NodeValue, elem values.Element, node int64) string {
	switch elem.Type {
	case values.Double:
		return formatDouble(nv.Double(elem.Key, node))
	case values.Long:
		return strconv.FormatInt(nv.Long(elem.Key, node), 10)
	case values.DoubleArray:
		arr := nv.DoubleArray(elem.Key, node)
		parts := make([]string, len(arr))
		for i, v := range arr {
			parts[i] = formatDouble(v)
		}
		return "[" + strings.Join(parts, " ") + "]"
	case values.LongArray:
		return fmt.Sprint(nv.LongArray(elem.Key, node))
	default:
		return "?"
	}
}

func formatDouble(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	default:
		return strconv.FormatFloat(v, 'g', 8, 64)
	}
}

func jsonValue(nv *values.NodeValue, elem values.Element, node int64) any {
	switch elem.Type {
	case values.Double:
		return finite(nv.Double(elem.Key, node))
	case values.Long:
		return nv.Long(elem.Key, node)
	case values.DoubleArray:
		arr := nv.DoubleArray(elem.Key, node)
		out := make([]any, len(arr))
		for i, v := range arr {
			out[i] = finite(v)
		}
		return out
	case values.LongArray:
		return nv.LongArray(elem.Key, node)
	default:
		return nil
	}
}

func finite(v float64) any {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return v
}

func countDistinct(column []int64) int {
	seen := make(map[int64]struct{}, len(column))
	for _, v := range column {
		seen[v] = struct{}{}
	}
	return len(seen)
}
