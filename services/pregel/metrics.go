// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pregel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for the engine.
var (
	tracer = otel.Tracer("aleutian.pregel")
	meter  = otel.Meter("aleutian.pregel")
)

// Metrics for runs and supersteps.
var (
	runsTotal        metric.Int64Counter
	runLatency       metric.Float64Histogram
	superstepsTotal  metric.Int64Counter
	superstepLatency metric.Float64Histogram
	messagesSent     metric.Int64Counter
	nodeComputations metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		runsTotal, err = meter.Int64Counter(
			"pregel_runs_total",
			metric.WithDescription("Total number of pregel runs by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runLatency, err = meter.Float64Histogram(
			"pregel_run_duration_seconds",
			metric.WithDescription("Duration of pregel runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		superstepsTotal, err = meter.Int64Counter(
			"pregel_supersteps_total",
			metric.WithDescription("Total number of completed supersteps"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		superstepLatency, err = meter.Float64Histogram(
			"pregel_superstep_duration_seconds",
			metric.WithDescription("Duration of supersteps"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		messagesSent, err = meter.Int64Counter(
			"pregel_messages_sent_total",
			metric.WithDescription("Total number of messages sent"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodeComputations, err = meter.Int64Counter(
			"pregel_node_computations_total",
			metric.WithDescription("Total number of node compute calls"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordSuperstepMetrics records metrics for a completed superstep.
func recordSuperstepMetrics(ctx context.Context, discipline string, stats SuperstepStats) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("discipline", discipline))

	superstepsTotal.Add(ctx, 1, attrs)
	superstepLatency.Record(ctx, stats.Duration.Seconds(), attrs)
	messagesSent.Add(ctx, stats.MessagesSent, attrs)
	nodeComputations.Add(ctx, stats.NodesComputed, attrs)
}

// recordRunMetrics records metrics for a finished or failed run.
func recordRunMetrics(ctx context.Context, outcome string, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))

	runsTotal.Add(ctx, 1, attrs)
	runLatency.Record(ctx, duration.Seconds(), attrs)
}

// startRunSpan creates a span for a run.
func startRunSpan(ctx context.Context, p *Pregel) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Pregel.Run",
		trace.WithAttributes(
			attribute.String("pregel.run_id", p.runID),
			attribute.Int64("pregel.node_count", p.topology.NodeCount()),
			attribute.Int("pregel.concurrency", p.config.Concurrency),
			attribute.String("pregel.discipline", p.config.Discipline.String()),
			attribute.String("pregel.partitioning", p.strategy.String()),
			attribute.Int("pregel.partitions", len(p.partitions)),
			attribute.Int("pregel.max_iterations", p.config.MaxIterations),
		),
	)
}

// setRunSpanResult sets the result attributes on a run span.
func setRunSpanResult(span trace.Span, result *Result) {
	span.SetAttributes(
		attribute.String("pregel.outcome", result.Outcome.String()),
		attribute.Int("pregel.supersteps", result.Supersteps),
		attribute.Bool("pregel.converged", result.Converged),
	)
}

// startSuperstepSpan creates a span for one superstep.
func startSuperstepSpan(ctx context.Context, superstep int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Pregel.Superstep",
		trace.WithAttributes(
			attribute.Int("pregel.superstep", superstep),
		),
	)
}

// setSuperstepSpanResult sets the result attributes on a superstep span.
func setSuperstepSpanResult(span trace.Span, stats SuperstepStats) {
	span.SetAttributes(
		attribute.Int64("pregel.nodes_computed", stats.NodesComputed),
		attribute.Int64("pregel.active_nodes", stats.ActiveNodes),
		attribute.Int64("pregel.messages_sent", stats.MessagesSent),
	)
}
