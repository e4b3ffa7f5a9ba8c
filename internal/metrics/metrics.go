/**
 * Copyright 2025-present Tevra Labs
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package metrics holds the engine's Prometheus instruments. All are
// registered on the default registry and exposed via /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automation_sweeps_total",
		Help: "Number of scheduler sweeps completed.",
	})

	RulesEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automation_rules_evaluated_total",
		Help: "Number of rule evaluations across all sweeps.",
	})

	RulesDue = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automation_rules_due_total",
		Help: "Number of rules found due during sweeps.",
	})

	ClaimsLost = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automation_claims_lost_total",
		Help: "Number of claim attempts that lost to a concurrent claimant.",
	})

	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automation_executions_total",
		Help: "Number of rule executions by outcome.",
	}, []string{"outcome"})

	RetriesScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automation_retries_scheduled_total",
		Help: "Number of retry attempts scheduled after transient failures.",
	})

	InFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "automation_rules_in_flight",
		Help: "Number of rules currently claimed for execution.",
	})

	ExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "automation_execution_duration_seconds",
		Help:    "Wall time from claim to terminal dispatch outcome.",
		Buckets: prometheus.DefBuckets,
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "automation_sweep_duration_seconds",
		Help:    "Wall time of a full scheduler sweep.",
		Buckets: prometheus.DefBuckets,
	})
)

// Execution outcome label values.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)
