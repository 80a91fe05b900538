// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stats

import "github.com/prometheus/client_golang/prometheus"

// Global, unlabeled-cardinality Prometheus metrics, registered eagerly at
// init() the way the rate limiter's churn package registers its counters:
// harmless if nothing ever scrapes /metrics.
var (
	recordsEmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "biliclaw_records_emitted_total",
		Help: "Total records accepted by the sink, by entity kind (video, comment, account; replies count as comment)",
	}, []string{"kind"})

	recordsSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "biliclaw_records_skipped_total",
		Help: "Total records observed but not re-emitted because they were already in the emitted-id set",
	}, []string{"kind"})

	activeWorkers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "biliclaw_active_workers",
		Help: "Number of currently running worker goroutines, by pipeline stage",
	}, []string{"stage"})

	credentialPoolValid = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "biliclaw_credential_pool_valid",
		Help: "Number of credentials currently enabled and valid in the rotation pool",
	})

	credentialPoolTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "biliclaw_credential_pool_total",
		Help: "Total number of credentials loaded into the rotation pool",
	})
)

func init() {
	prometheus.MustRegister(recordsEmittedTotal, recordsSkippedTotal, activeWorkers, credentialPoolValid, credentialPoolTotal)
}

// RecordEmitted increments the emitted counter for kind by n.
func RecordEmitted(kind string, n int64) {
	if n <= 0 {
		return
	}
	recordsEmittedTotal.WithLabelValues(kind).Add(float64(n))
}

// RecordSkipped increments the skipped counter for kind by n.
func RecordSkipped(kind string, n int64) {
	if n <= 0 {
		return
	}
	recordsSkippedTotal.WithLabelValues(kind).Add(float64(n))
}

// SetActiveWorkers reports the current worker count for a stage.
func SetActiveWorkers(stage string, n int) {
	activeWorkers.WithLabelValues(stage).Set(float64(n))
}

// SetCredentialPoolHealth reports a Status snapshot from internal/creds.
func SetCredentialPoolHealth(total, valid int) {
	credentialPoolTotal.Set(float64(total))
	credentialPoolValid.Set(float64(valid))
}
