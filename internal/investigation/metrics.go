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

package investigation

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	investigationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kubemedic_investigations_total",
		Help: "Total investigations by mode and final status",
	}, []string{"mode", "status"})
	investigationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kubemedic_investigation_duration_seconds",
		Help:    "Duration of investigations including retries",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"mode"})
	investigationRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kubemedic_investigation_retries_total",
		Help: "Total retried investigation attempts",
	})
	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kubemedic_investigation_queue_depth",
		Help: "Current depth of the async investigation queue",
	})
	queueDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kubemedic_investigation_queue_dropped_total",
		Help: "Total async investigations rejected due to a full queue",
	})
	deadLetterGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kubemedic_investigation_dead_letters",
		Help: "Current number of dead-lettered investigations",
	})
)

func init() {
	metrics.Registry.MustRegister(
		investigationsTotal,
		investigationDuration,
		investigationRetries,
		queueDepth,
		queueDroppedTotal,
		deadLetterGauge,
	)
}
