// Copyright 2025 The axfor Authors
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

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all syncStore metrics
const (
	namespace = "syncstore"
	subsystem = "server"
)

// Label values shared by recorders and callers
const (
	ResultUp   = "up"
	ResultDown = "down"

	OutcomeOK        = "ok"
	OutcomeDuplicate = "duplicate"
	OutcomeAbsent    = "absent"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomePartial   = "partial"
	OutcomeAborted   = "aborted"
	OutcomeError     = "error"
)

// Metrics holds all Prometheus metrics for the syncStore server.
//
// Every Record method is safe on a nil *Metrics, so components can be
// built without a registry (tests, one-shot CLI commands).
type Metrics struct {
	// Health probe metrics
	ProbesTotal *prometheus.CounterVec
	StoreUp     *prometheus.GaugeVec

	// Router metrics
	RouteTotal    *prometheus.CounterVec
	RouteDuration *prometheus.HistogramVec
	MirrorTotal   *prometheus.CounterVec

	// Reconciliation metrics
	ReconcileRuns     *prometheus.CounterVec
	ReconcileCopies   *prometheus.CounterVec
	ReconcileFailures *prometheus.CounterVec
	ReconcileDuration prometheus.Histogram

	// HTTP API metrics
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestTotal    *prometheus.CounterVec
	RateLimitHits       *prometheus.CounterVec

	// gRPC request metrics
	GrpcRequestDuration *prometheus.HistogramVec
	GrpcRequestTotal    *prometheus.CounterVec
	GrpcRequestInFlight *prometheus.GaugeVec

	// Panic recovery metrics
	PanicsRecovered *prometheus.CounterVec
}

// New creates and registers all metrics
func New(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		ProbesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "probes_total",
				Help:      "Total number of store health probes by result",
			},
			[]string{"store", "result"}, // result: up, down
		),

		StoreUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "store_up",
				Help:      "1 if the last probe of the store succeeded, 0 otherwise",
			},
			[]string{"store"},
		),

		RouteTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "operations_total",
				Help:      "Total number of routed operations by serving store and result",
			},
			[]string{"operation", "store", "result"}, // store is "none" when both are down
		),

		RouteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "operation_duration_seconds",
				Help:      "Histogram of routed operation latencies, probes included",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		MirrorTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "mirror_total",
				Help:      "Total number of mirror writes by outcome",
			},
			[]string{"operation", "outcome"}, // ok, duplicate, absent, failed, skipped
		),

		ReconcileRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "runs_total",
				Help:      "Total number of reconciliation runs by outcome",
			},
			[]string{"outcome"}, // ok, partial, aborted, error, skipped
		),

		ReconcileCopies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "copies_total",
				Help:      "Total number of records copied by target store",
			},
			[]string{"target"},
		),

		ReconcileFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "failures_total",
				Help:      "Total number of failed record copies by target store",
			},
			[]string{"target"},
		),

		ReconcileDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "duration_seconds",
				Help:      "Histogram of reconciliation run durations",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Histogram of HTTP request latencies",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "code"},
		),

		HTTPRequestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "code"},
		),

		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rate_limit_hits_total",
				Help:      "Total number of rate limit hits",
			},
			[]string{"method"},
		),

		GrpcRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "grpc",
				Name:      "request_duration_seconds",
				Help:      "Histogram of gRPC request latencies",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "code"},
		),

		GrpcRequestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "grpc",
				Name:      "request_total",
				Help:      "Total number of gRPC requests",
			},
			[]string{"method", "code"},
		),

		GrpcRequestInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "grpc",
				Name:      "request_in_flight",
				Help:      "Current number of in-flight gRPC requests",
			},
			[]string{"method"},
		),

		PanicsRecovered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "panics_recovered_total",
				Help:      "Total number of panics recovered",
			},
			[]string{"where"},
		),
	}
}

// RecordProbe records one health probe outcome
func (m *Metrics) RecordProbe(store string, healthy bool) {
	if m == nil {
		return
	}
	result, up := ResultDown, 0.0
	if healthy {
		result, up = ResultUp, 1.0
	}
	m.ProbesTotal.WithLabelValues(store, result).Inc()
	m.StoreUp.WithLabelValues(store).Set(up)
}

// RecordRoute records a routed operation. store is "none" when no store served it.
func (m *Metrics) RecordRoute(operation, store string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := OutcomeOK
	if err != nil {
		result = OutcomeError
	}
	m.RouteTotal.WithLabelValues(operation, store, result).Inc()
	m.RouteDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordMirror records the outcome of a mirror write
func (m *Metrics) RecordMirror(operation, outcome string) {
	if m == nil {
		return
	}
	m.MirrorTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordReconcileRun records a finished (or skipped) reconciliation run
func (m *Metrics) RecordReconcileRun(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ReconcileRuns.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSkipped {
		m.ReconcileDuration.Observe(duration.Seconds())
	}
}

// RecordReconcileCopy records one copy attempt into target
func (m *Metrics) RecordReconcileCopy(target string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ReconcileFailures.WithLabelValues(target).Inc()
		return
	}
	m.ReconcileCopies.WithLabelValues(target).Inc()
}

// RecordHTTPRequest records an HTTP request's duration and status
func (m *Metrics) RecordHTTPRequest(method, route string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	c := statusCode(code)
	m.HTTPRequestDuration.WithLabelValues(method, route, c).Observe(duration.Seconds())
	m.HTTPRequestTotal.WithLabelValues(method, route, c).Inc()
}

// RecordGrpcRequest records a gRPC request's duration and status
func (m *Metrics) RecordGrpcRequest(method string, code string, duration time.Duration) {
	if m == nil {
		return
	}
	m.GrpcRequestDuration.WithLabelValues(method, code).Observe(duration.Seconds())
	m.GrpcRequestTotal.WithLabelValues(method, code).Inc()
}

// RecordRateLimitHit records a rate limit hit
func (m *Metrics) RecordRateLimitHit(method string) {
	if m == nil {
		return
	}
	m.RateLimitHits.WithLabelValues(method).Inc()
}

// RecordPanicRecovered records a recovered panic
func (m *Metrics) RecordPanicRecovered(where string) {
	if m == nil {
		return
	}
	m.PanicsRecovered.WithLabelValues(where).Inc()
}

func statusCode(code int) string {
	if code == 0 {
		code = 200
	}
	return strconv.Itoa(code)
}
