/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ai

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	aiCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubemedic_ai_calls_total",
			Help: "Total number of AI provider calls",
		},
		[]string{"provider", "result"},
	)

	aiTokensUsedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubemedic_ai_tokens_used_total",
			Help: "Total tokens consumed by AI calls",
		},
		[]string{"provider"},
	)

	aiCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kubemedic_ai_call_duration_seconds",
			Help:    "Duration of AI provider calls",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 90},
		},
		[]string{"provider"},
	)

	aiCircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kubemedic_ai_circuit_state",
			Help: "Circuit breaker state per provider (0=closed, 1=open, 2=half-open)",
		},
		[]string{"provider"},
	)

	aiBudgetTokensUsed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kubemedic_ai_budget_tokens_used",
			Help: "Current token usage within budget window",
		},
		[]string{"window"},
	)
)

func init() {
	metrics.Registry.MustRegister(
		aiCallsTotal,
		aiTokensUsedTotal,
		aiCallDuration,
		aiCircuitState,
		aiBudgetTokensUsed,
	)
}

// Call results recorded in kubemedic_ai_calls_total.
const (
	callResultSuccess     = "success"
	callResultError       = "error"
	callResultCircuitOpen = "circuit_open"
	callResultBudget      = "budget_exceeded"
)

// RecordAICall records metrics for an AI provider call.
func RecordAICall(provider, result string, tokens int, duration time.Duration) {
	aiCallsTotal.WithLabelValues(provider, result).Inc()
	if tokens > 0 {
		aiTokensUsedTotal.WithLabelValues(provider).Add(float64(tokens))
	}
	if duration > 0 {
		aiCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
	}
}

func recordCircuitState(provider string, state CircuitState) {
	aiCircuitState.WithLabelValues(provider).Set(float64(state))
}

// UpdateBudgetMetrics updates budget usage gauges from current Budget state.
func UpdateBudgetMetrics(b *Budget) {
	if b == nil {
		return
	}
	for _, wu := range b.GetUsage() {
		aiBudgetTokensUsed.WithLabelValues(wu.Name).Set(float64(wu.Used))
	}
}
