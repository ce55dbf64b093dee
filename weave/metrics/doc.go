/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics exposes counters for the tracing engine.
//
// Call lifecycle and infrastructure failures are Prometheus metrics
// registered on the default registry. Token usage is recorded through
// OpenTelemetry so it lands wherever the process exports its meters.
package metrics
