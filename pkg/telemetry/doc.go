// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry installs the OpenTelemetry providers used by the pregel
// CLI.
//
// The engine packages only ever call otel.Tracer and otel.Meter; whether
// those spans and measurements go anywhere is decided here, once, at
// process start. Backends are chosen by configuration, never by code:
//
//   - traces: "otlp" (gRPC), "stdout", or "none"
//   - metrics: "prometheus" (pull, served by MetricsHandler), "stdout", or "none"
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	cfg.MetricExporter = "prometheus"
//	shutdown, err := telemetry.Init(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
//
// # Environment Variables
//
//   - OTEL_TRACES_EXPORTER: otlp, stdout, or none (default: none)
//   - OTEL_METRICS_EXPORTER: prometheus, stdout, or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
//   - PREGEL_ENV: deployment environment (default: development)
package telemetry
