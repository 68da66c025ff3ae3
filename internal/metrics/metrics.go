// Package metrics exposes Prometheus collectors for the core pipeline:
// per-data-source connection pools, negotiator pushdown outcomes, FDW
// bridge session state, and auth verification — adapted from the
// teacher's internal/metrics (tenant-keyed pool/proxy counters) with
// tenants replaced by data sources and the proxy-specific counters
// replaced by bridge/negotiator ones.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector the core registers. Callers create
// one instance and pass it explicitly rather than relying on
// package-level globals, so tests can register their own registry.
type Metrics struct {
	reg *prometheus.Registry

	poolActive    *prometheus.GaugeVec
	poolIdle      *prometheus.GaugeVec
	poolWaiting   *prometheus.GaugeVec
	poolExhausted *prometheus.CounterVec

	negotiatorApplied *prometheus.CounterVec
	negotiatorLocal   *prometheus.CounterVec

	bridgeSessions  prometheus.Gauge
	bridgeQueries   *prometheus.CounterVec
	bridgeQueryErrs *prometheus.CounterVec

	authVerifications *prometheus.CounterVec
}

// New constructs and registers every collector against a fresh
// registry. Tests construct their own Metrics rather than sharing the
// default Prometheus registry, avoiding duplicate-registration panics
// across package tests.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		poolActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ansilo", Subsystem: "pool", Name: "active_connections",
			Help: "Active backend connections held by a data source's pool.",
		}, []string{"data_source"}),
		poolIdle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ansilo", Subsystem: "pool", Name: "idle_connections",
			Help: "Idle backend connections held by a data source's pool.",
		}, []string{"data_source"}),
		poolWaiting: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ansilo", Subsystem: "pool", Name: "waiting_acquires",
			Help: "Callers currently blocked on Pool.Acquire.",
		}, []string{"data_source"}),
		poolExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ansilo", Subsystem: "pool", Name: "exhausted_total",
			Help: "Times Pool.Acquire failed because the pool was at max size.",
		}, []string{"data_source"}),
		negotiatorApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ansilo", Subsystem: "negotiator", Name: "ops_applied_total",
			Help: "Pushdown candidates committed into a backend query, by kind.",
		}, []string{"kind"}),
		negotiatorLocal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ansilo", Subsystem: "negotiator", Name: "ops_local_total",
			Help: "Pushdown candidates left for local execution, by kind.",
		}, []string{"kind"}),
		bridgeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ansilo", Subsystem: "bridge", Name: "open_sessions",
			Help: "FDW bridge sessions currently open.",
		}),
		bridgeQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ansilo", Subsystem: "bridge", Name: "queries_total",
			Help: "Queries executed through the FDW bridge, by data source.",
		}, []string{"data_source"}),
		bridgeQueryErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ansilo", Subsystem: "bridge", Name: "query_errors_total",
			Help: "Query errors surfaced through the FDW bridge, by error kind.",
		}, []string{"kind"}),
		authVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ansilo", Subsystem: "auth", Name: "verifications_total",
			Help: "Credential verifications, by provider and outcome.",
		}, []string{"provider", "outcome"}),
	}

	m.reg.MustRegister(
		m.poolActive, m.poolIdle, m.poolWaiting, m.poolExhausted,
		m.negotiatorApplied, m.negotiatorLocal,
		m.bridgeSessions, m.bridgeQueries, m.bridgeQueryErrs,
		m.authVerifications,
	)
	return m
}

// Registry exposes the underlying Prometheus registry so internal/api
// can mount it behind promhttp.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) UpdatePoolStats(dataSourceID string, active, idle, waiting int) {
	m.poolActive.WithLabelValues(dataSourceID).Set(float64(active))
	m.poolIdle.WithLabelValues(dataSourceID).Set(float64(idle))
	m.poolWaiting.WithLabelValues(dataSourceID).Set(float64(waiting))
}

func (m *Metrics) PoolExhausted(dataSourceID string) {
	m.poolExhausted.WithLabelValues(dataSourceID).Inc()
}

func (m *Metrics) NegotiatorApplied(kind string) {
	m.negotiatorApplied.WithLabelValues(kind).Inc()
}

func (m *Metrics) NegotiatorLocal(kind string) {
	m.negotiatorLocal.WithLabelValues(kind).Inc()
}

func (m *Metrics) BridgeSessionOpened() { m.bridgeSessions.Inc() }
func (m *Metrics) BridgeSessionClosed() { m.bridgeSessions.Dec() }

func (m *Metrics) BridgeQuery(dataSourceID string) {
	m.bridgeQueries.WithLabelValues(dataSourceID).Inc()
}

func (m *Metrics) BridgeQueryError(kind string) {
	m.bridgeQueryErrs.WithLabelValues(kind).Inc()
}

func (m *Metrics) AuthVerification(provider, outcome string) {
	m.authVerifications.WithLabelValues(provider, outcome).Inc()
}
