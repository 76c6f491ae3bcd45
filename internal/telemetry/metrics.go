// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package telemetry defines the Prometheus metrics of an extraction run and
// the HTTP server that exposes them.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "litminer"

var (
	// ─── Worker pool ─────────────────────────────────────────────────────────────

	PoolTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "tasks_total",
		Help:      "Tasks finished by the worker pool, labelled by terminal status.",
	}, []string{"status"})

	PoolRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "retries_total",
		Help:      "Retry attempts, labelled by the kind of the failure that caused them.",
	}, []string{"reason"})

	PoolInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "inflight",
		Help:      "Tasks currently executing.",
	})

	PoolTaskDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "task_duration_seconds",
		Help:      "Task execution time in seconds, including retries.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
	})

	LLMTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "llm",
		Name:      "tokens_total",
		Help:      "Tokens consumed, labelled by provider and direction.",
	}, []string{"provider", "direction"})

	// ─── Checkpoint ──────────────────────────────────────────────────────────────

	CheckpointFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checkpoint",
		Name:      "flushes_total",
		Help:      "Checkpoint flushes that reached stable storage.",
	})

	CheckpointEntries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checkpoint",
		Name:      "entries_total",
		Help:      "Checkpoint entries appended.",
	})

	// ─── Run ─────────────────────────────────────────────────────────────────────

	RunRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "run",
		Name:      "records",
		Help:      "Records of the current run, labelled by state (total, completed, failed).",
	}, []string{"state"})
)
