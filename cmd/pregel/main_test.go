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
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("OTEL_TRACES_EXPORTER", "none")
	t.Setenv("OTEL_METRICS_EXPORTER", "none")

	var out, errOut bytes.Buffer
	root := newRootCmd(&out, &errOut)
	root.SetArgs(append([]string{"--plain", "--quiet"}, args...))
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeGraph(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "edges.txt")
	require.NoError(t, os.WriteFile(path, []byte(text), 0600))
	return path
}

const twoComponents = `# two components
0 1
1 2
3 4
`

func TestRun_ConnectedComponentsTable(t *testing.T) {
	out, err := execute(t, "run", "--graph", writeGraph(t, twoComponents), "-j", "2")
	require.NoError(t, err)

	assert.Contains(t, out, "outcome\tconverged\n")
	assert.Contains(t, out, "converged\ttrue\n")
	assert.Contains(t, out, "node\tcomponent\n")
	assert.Contains(t, out, "\n2\t0\n")
	assert.Contains(t, out, "\n4\t3\n")
	assert.Contains(t, out, "OK: 2 connected components\n")
}

func TestRun_TopLimitsRows(t *testing.T) {
	out, err := execute(t, "run", "--graph", writeGraph(t, twoComponents), "--top", "2")
	require.NoError(t, err)

	assert.Contains(t, out, "\n1\t0\n")
	assert.NotContains(t, out, "\n2\t0\n")
	assert.Contains(t, out, "WARN: showing 2 of 5 nodes")
}

func decodeReport(t *testing.T, out string) jsonReport {
	t.Helper()
	var report jsonReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	return report
}

func TestRun_ShortestPathsJSON(t *testing.T) {
	path := writeGraph(t, "# nodes: 4\n0 1\n1 2\n")
	out, err := execute(t, "run", "--graph", path, "--program", "sssp", "--source", "0", "-o", "json", "--run-id", "sssp-1")
	require.NoError(t, err)

	report := decodeReport(t, out)
	assert.Equal(t, "sssp-1", report.RunID)
	assert.Equal(t, "distance", report.Key)
	assert.Equal(t, "converged", report.Outcome)
	assert.Equal(t, int64(4), report.Nodes)
	assert.Equal(t, []any{0.0, 1.0, 2.0, nil}, report.Values)
	assert.Len(t, report.Stats, report.Supersteps)
}

func TestRun_SourceOutsideGraph(t *testing.T) {
	_, err := execute(t, "run", "--graph", writeGraph(t, "0 1\n"), "--program", "sssp", "--source", "9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside the graph")
}

func TestRun_ConfigFileWithOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "pregel.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
max_iterations: 50
concurrency: 3
discipline: reducing
program:
  name: pagerank
  damping: 0.85
`), 0600))

	out, err := execute(t, "run", "--graph", writeGraph(t, "0 1\n1 2\n2 0\n"),
		"--config", cfgPath, "--max-iterations", "5", "-o", "json")
	require.NoError(t, err)

	report := decodeReport(t, out)
	assert.Equal(t, "pagerank", report.Program)
	assert.Equal(t, 5, report.Supersteps, "--max-iterations overrides the file")
	assert.Equal(t, "max_iterations", report.Outcome)
	require.Len(t, report.Values, 3)
	for _, v := range report.Values {
		assert.InDelta(t, 1.0/3, v.(float64), 1e-9)
	}
}

func TestRun_Checkpoints(t *testing.T) {
	cpDir := filepath.Join(t.TempDir(), "checkpoints")
	graphPath := writeGraph(t, twoComponents)

	_, err := execute(t, "run", "--graph", graphPath, "--checkpoint-dir", cpDir, "--run-id", "cc-run")
	require.NoError(t, err)

	out, err := execute(t, "checkpoints", "list", "--dir", cpDir)
	require.NoError(t, err)
	assert.Equal(t, "run_id\ncc-run\n", out)

	out, err = execute(t, "checkpoints", "list", "--dir", cpDir, "cc-run")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "superstep\tnodes\tbytes\tcreated_at\n0\t5\t"), out)

	out, err = execute(t, "checkpoints", "show", "--dir", cpDir, "cc-run", "--superstep", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "superstep\t0\n")
	assert.Contains(t, out, "component\tlong\n")

	out, err = execute(t, "checkpoints", "delete", "--dir", cpDir, "cc-run")
	require.NoError(t, err)
	assert.Contains(t, out, "OK: deleted")

	_, err = execute(t, "checkpoints", "show", "--dir", cpDir, "cc-run")
	assert.Error(t, err)
}

func TestCheckpoints_MissingDir(t *testing.T) {
	_, err := execute(t, "checkpoints", "list", "--dir", filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)

	_, err = execute(t, "checkpoints", "list")
	assert.Error(t, err, "--dir is required")
}

func TestRun_WithMonitor(t *testing.T) {
	out, err := execute(t, "run", "--graph", writeGraph(t, twoComponents), "--monitor-addr", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Contains(t, out, "outcome\tconverged\n")
}

func TestRun_BadFlags(t *testing.T) {
	graphPath := writeGraph(t, twoComponents)
	tests := []struct {
		name string
		args []string
	}{
		{"missing graph", []string{"run"}},
		{"unknown output", []string{"run", "--graph", graphPath, "-o", "xml"}},
		{"unknown progress", []string{"run", "--graph", graphPath, "--progress", "sometimes"}},
		{"unknown program", []string{"run", "--graph", graphPath, "--program", "bfs"}},
		{"bad discipline", []string{"run", "--graph", graphPath, "--discipline", "eventual"}},
		{"zero concurrency", []string{"run", "--graph", graphPath, "-j", "0"}},
		{"missing graph file", []string{"run", "--graph", filepath.Join(t.TempDir(), "nope")}},
		{"bad run id", []string{"run", "--graph", graphPath, "--run-id", "a:b"}},
		{"bad log level", []string{"--log-level", "loud", "run", "--graph", graphPath}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "pregel.yaml")

	out, err := execute(t, "init", path)
	require.NoError(t, err)
	assert.Equal(t, "OK: wrote "+path+"\n", out)

	_, err = execute(t, "init", path)
	assert.Error(t, err, "init must not overwrite")

	out, err = execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "program\tcc\n")
	assert.Contains(t, out, "discipline\tsync\n")
	assert.Contains(t, out, "reducer\tprogram default\n")
	assert.Contains(t, out, "OK: configuration is valid\n")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("max_iterations: 0\n"), 0600))
	_, err = execute(t, "validate", bad)
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "version\t"+version+"\n", out)
}
