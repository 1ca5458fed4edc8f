// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics and trace correlation
// helpers for the agent service.
//
// Metrics are exposed via the /metrics endpoint. All metric operations are
// thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "harborstay"

const agentSubsystem = "agent"

// AgentMetrics holds all Prometheus metrics for the agent service.
//
// Initialize once at startup via InitMetrics().
type AgentMetrics struct {
	// TurnsTotal counts completed turns by resulting agent state.
	// Labels: state
	TurnsTotal *prometheus.CounterVec

	// TurnDurationSeconds measures end-to-end turn latency.
	TurnDurationSeconds prometheus.Histogram

	// ToolCallsTotal counts logical tool calls by tool and outcome.
	// Labels: tool, status (ok, error, timeout, budget_exceeded)
	ToolCallsTotal *prometheus.CounterVec

	// ToolCallDurationSeconds measures tool call latency (all retries of one
	// logical call accumulated). Labels: tool, status
	ToolCallDurationSeconds *prometheus.HistogramVec

	// ToolRetriesTotal counts retry attempts by tool.
	// Labels: tool
	ToolRetriesTotal *prometheus.CounterVec

	// BudgetExhaustionsTotal counts turns that hit a guardrail.
	// Labels: kind (calls, wall_clock)
	BudgetExhaustionsTotal *prometheus.CounterVec

	// GroundingFallbacksTotal counts reasoning output rejected by the
	// grounding validator.
	GroundingFallbacksTotal prometheus.Counter

	// SaveConflictsTotal counts snapshot save conflicts.
	SaveConflictsTotal prometheus.Counter

	// ActiveTurns tracks turns currently executing.
	ActiveTurns prometheus.Gauge
}

// DefaultMetrics is the singleton instance, set by InitMetrics().
var DefaultMetrics *AgentMetrics

// InitMetrics creates and registers all Prometheus metrics. Call once at
// startup; calling twice panics on duplicate registration.
func InitMetrics() *AgentMetrics {
	DefaultMetrics = &AgentMetrics{
		TurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "turns_total",
				Help:      "Total completed turns by resulting agent state",
			},
			[]string{"state"},
		),

		TurnDurationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "End-to-end turn latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
		),

		ToolCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "tool_calls_total",
				Help:      "Total logical tool calls by tool and outcome",
			},
			[]string{"tool", "status"},
		),

		ToolCallDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "tool_call_duration_seconds",
				Help:      "Tool call latency in seconds, retries included",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"tool", "status"},
		),

		ToolRetriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "tool_retries_total",
				Help:      "Total tool call retry attempts by tool",
			},
			[]string{"tool"},
		),

		BudgetExhaustionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "budget_exhaustions_total",
				Help:      "Turns that exhausted a guardrail budget",
			},
			[]string{"kind"},
		),

		GroundingFallbacksTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "grounding_fallbacks_total",
				Help:      "Reasoning output rejected by the grounding validator",
			},
		),

		SaveConflictsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "save_conflicts_total",
				Help:      "Snapshot save attempts rejected by the version check",
			},
		),

		ActiveTurns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "active_turns",
				Help:      "Turns currently executing",
			},
		),
	}

	return DefaultMetrics
}

// RecordToolCall records a completed logical tool call.
func (m *AgentMetrics) RecordToolCall(tool, status string, seconds float64, retries int) {
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
	m.ToolCallDurationSeconds.WithLabelValues(tool, status).Observe(seconds)
	if retries > 0 {
		m.ToolRetriesTotal.WithLabelValues(tool).Add(float64(retries))
	}
}

// RecordTurn records a completed turn.
func (m *AgentMetrics) RecordTurn(state string, seconds float64) {
	m.TurnsTotal.WithLabelValues(state).Inc()
	m.TurnDurationSeconds.Observe(seconds)
}
