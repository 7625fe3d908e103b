// Package metrics provides counters, Prometheus collectors, and HTTP
// handlers for exporting flowprobe admin-call metrics.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 1. Internal State (Source of Truth)
var (
	adminCalls         int64
	adminCallsFailed   int64
	identitiesResolved int64
	nodesSkipped       int64
	lastRun            int64
)

const counterInc int64 = 1

// 2. Prometheus Collectors
var (
	promAdminCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowprobe_admin_calls_total",
			Help: "Total admin commands sent, by command and outcome",
		},
		[]string{"cmd", "status"},
	)
	promIdentities = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flowprobe_identities_resolved_total",
			Help: "Total nodes whose identity was resolved via whoami",
		},
	)
	promSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flowprobe_nodes_skipped_total",
			Help: "Total nodes skipped during identity resolution because no role matched",
		},
	)
	promCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "flowprobe_admin_call_duration_seconds",
			Help: "Round-trip duration of admin commands",
			Buckets: []float64{
				0.005,
				0.01,
				0.05,
				0.1,
				0.5,
				1,
				5,
				30,
			},
		},
		[]string{"cmd"},
	)
	promLastRun = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowprobe_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last completed probe run",
		},
	)
)

func init() {
	prometheus.MustRegister(
		promAdminCalls,
		promIdentities,
		promSkipped,
		promCallDuration,
		promLastRun,
	)
}

// 3. Public API (Updates both Atomic and Prometheus)

// ObserveAdminCall records one admin command round trip.
func ObserveAdminCall(cmd string, d time.Duration, err error) {
	atomic.AddInt64(&adminCalls, counterInc)
	status := "success"
	if err != nil {
		atomic.AddInt64(&adminCallsFailed, counterInc)
		status = "failure"
	}
	promAdminCalls.WithLabelValues(cmd, status).Inc()
	promCallDuration.WithLabelValues(cmd).Observe(d.Seconds())
}

// IncIdentityResolved increments the resolved-identity counter.
func IncIdentityResolved() {
	atomic.AddInt64(&identitiesResolved, counterInc)
	promIdentities.Inc()
}

// IncNodeSkipped increments the counter for nodes without a matching role.
func IncNodeSkipped() {
	atomic.AddInt64(&nodesSkipped, counterInc)
	promSkipped.Inc()
}

// SetLastRun stores the provided time as the last run timestamp and
// updates the corresponding Prometheus gauge.
func SetLastRun(t time.Time) {
	atomic.StoreInt64(&lastRun, t.Unix())
	promLastRun.Set(float64(t.Unix()))
}

// 4. JSON Snapshot Struct

// StatsSnapshot is a snapshot of metrics for JSON encoding.
type StatsSnapshot struct {
	AdminCalls         int64  `json:"admin_calls"`
	AdminCallsFailed   int64  `json:"admin_calls_failed"`
	IdentitiesResolved int64  `json:"identities_resolved"`
	NodesSkipped       int64  `json:"nodes_skipped"`
	LastRun            int64  `json:"last_run_timestamp"`
	LastRunHuman       string `json:"last_run_human"`
}

// GetSnapshot returns a StatsSnapshot with the current values of all
// internal counters and timestamps.
func GetSnapshot() StatsSnapshot {
	ts := atomic.LoadInt64(&lastRun)
	return StatsSnapshot{
		AdminCalls:         atomic.LoadInt64(&adminCalls),
		AdminCallsFailed:   atomic.LoadInt64(&adminCallsFailed),
		IdentitiesResolved: atomic.LoadInt64(&identitiesResolved),
		NodesSkipped:       atomic.LoadInt64(&nodesSkipped),
		LastRun:            ts,
		LastRunHuman:       time.Unix(ts, 0).Format(time.RFC3339),
	}
}

// 5. Handlers

// PromHandler returns an HTTP handler that exposes Prometheus metrics.
func PromHandler() http.Handler { return promhttp.Handler() }

// JSONHandler returns an HTTP handler that serves the current metrics as
// a JSON-encoded StatsSnapshot.
func JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(GetSnapshot())
	})
}
