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

package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubemedic_agent_runs_total",
			Help: "Total specialist runs by terminal state",
		},
		[]string{"agent", "state"},
	)

	iterationsHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kubemedic_agent_iterations",
			Help:    "Think steps taken per specialist run",
			Buckets: []float64{1, 2, 3, 4, 5, 7, 10, 15, 20},
		},
		[]string{"agent"},
	)
)

func init() {
	metrics.Registry.MustRegister(runsTotal, iterationsHistogram)
}

func recordRun(o Outcome) {
	runsTotal.WithLabelValues(o.Agent, string(o.State)).Inc()
	iterationsHistogram.WithLabelValues(o.Agent).Observe(float64(o.Iterations))
}
