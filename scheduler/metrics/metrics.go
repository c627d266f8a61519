// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package metrics exports Prometheus metrics about service threads.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ThreadStageCallsTotal counts callback invocations per lifecycle stage.
	ThreadStageCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtcore_thread_stage_calls_total",
			Help: "Total number of callback invocations by service and stage",
		},
		[]string{"service", "stage"},
	)

	// ThreadKillsTotal counts forced terminations.
	ThreadKillsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtcore_thread_kills_total",
			Help: "Total number of threads forcibly terminated",
		},
		[]string{"service"},
	)

	// PoolThreads is the current size of a service thread pool.
	PoolThreads = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rtcore_pool_threads",
			Help: "Number of threads currently in a service pool",
		},
		[]string{"service"},
	)

	// CallbackErrorsTotal counts callback results that ended an episode badly.
	CallbackErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtcore_callback_errors_total",
			Help: "Total number of callback errors by service",
		},
		[]string{"service"},
	)
)

func RecordStage(service, stage string) {
	ThreadStageCallsTotal.WithLabelValues(service, stage).Inc()
}

func RecordKill(service string) {
	ThreadKillsTotal.WithLabelValues(service).Inc()
}

func RecordCallbackError(service string) {
	CallbackErrorsTotal.WithLabelValues(service).Inc()
}

func SetPoolThreads(service string, n int) {
	PoolThreads.WithLabelValues(service).Set(float64(n))
}
