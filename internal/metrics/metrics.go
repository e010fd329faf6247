// Package metrics holds the prometheus collectors for mint runs.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns its own prometheus registry so tests and multiple servers never
// collide on the global one.
type Registry struct {
	registry       *prometheus.Registry
	mintsTotal     *prometheus.CounterVec
	rpcCallsTotal  *prometheus.CounterVec
	rpcLatency     *prometheus.HistogramVec
	mintDuration   *prometheus.HistogramVec
	runsTotal      *prometheus.CounterVec
	deadLetters    prometheus.Gauge
	activeAccounts prometheus.Gauge
}

func New() *Registry {
	mints := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "minter_mints_total",
		Help: "Mint attempts by network and outcome",
	}, []string{"network", "outcome"})

	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "minter_rpc_calls_total",
		Help: "JSON-RPC calls by network, method and result",
	}, []string{"network", "method", "result"})

	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "minter_rpc_latency_seconds",
		Help:    "JSON-RPC call latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"network", "method"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "minter_mint_duration_seconds",
		Help:    "Time from lookup to receipt for one mint",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 120, 180},
	}, []string{"network"})

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "minter_runs_total",
		Help: "Campaign runs by result",
	}, []string{"result"})

	dlq := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "minter_dead_letter_depth",
		Help: "Number of dead letters awaiting review",
	})

	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "minter_active_accounts",
		Help: "Accounts currently being processed",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(mints, calls, latency, duration, runs, dlq, active)

	return &Registry{
		registry:       r,
		mintsTotal:     mints,
		rpcCallsTotal:  calls,
		rpcLatency:     latency,
		mintDuration:   duration,
		runsTotal:      runs,
		deadLetters:    dlq,
		activeAccounts: active,
	}
}

func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests.
func (m *Registry) Gatherer() prometheus.Gatherer { return m.registry }

func (m *Registry) ObserveMint(network, outcome string, elapsed time.Duration) {
	m.mintsTotal.WithLabelValues(network, outcome).Inc()
	m.mintDuration.WithLabelValues(network).Observe(elapsed.Seconds())
}

// ObserveRPC matches chain.Observer so a Connection can report into the registry.
func (m *Registry) ObserveRPC(network, method string, elapsed time.Duration, err error) {
	m.rpcCallsTotal.WithLabelValues(network, method, rpcResult(err)).Inc()
	m.rpcLatency.WithLabelValues(network, method).Observe(elapsed.Seconds())
}

func (m *Registry) IncRun(result string) {
	m.runsTotal.WithLabelValues(result).Inc()
}

func (m *Registry) SetDeadLetterDepth(depth int) {
	m.deadLetters.Set(float64(depth))
}

func (m *Registry) AccountStarted() { m.activeAccounts.Inc() }
func (m *Registry) AccountDone()    { m.activeAccounts.Dec() }

func rpcResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ethereum.NotFound):
		// pending receipts
		return "not_found"
	default:
		return "error"
	}
}
