package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/rickgao/livepredict/internal/wallet"
)

// Metrics collects the bridge's Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	LedgerRequests *prometheus.CounterVec
	LedgerLatency  *prometheus.HistogramVec

	CacheLookups *prometheus.CounterVec

	PollRuns    *prometheus.CounterVec
	PollLatency *prometheus.HistogramVec

	BridgeErrors *prometheus.CounterVec

	WalletPhase   *prometheus.GaugeVec
	WalletBalance *prometheus.GaugeVec

	HTTPRequests  *prometheus.CounterVec
	LiveClients   prometheus.Gauge
	Subscriptions prometheus.Gauge
}

// New creates the metrics on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		LedgerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livepredict_ledger_requests_total",
				Help: "Ledger GraphQL requests by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		LedgerLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "livepredict_ledger_request_duration_seconds",
				Help:    "Ledger GraphQL request latency",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"operation"},
		),

		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livepredict_cache_lookups_total",
				Help: "Query cache lookups by result",
			},
			[]string{"result"},
		),

		PollRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livepredict_poll_runs_total",
				Help: "Poll task runs by key kind and status",
			},
			[]string{"kind", "status"},
		),
		PollLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "livepredict_poll_duration_seconds",
				Help:    "Poll task run latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),

		BridgeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livepredict_market_bridge_errors_total",
				Help: "Market bridge failures by operation",
			},
			[]string{"operation"},
		),

		WalletPhase: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "livepredict_wallet_phase",
				Help: "1 for the current wallet session phase, 0 otherwise",
			},
			[]string{"phase"},
		),
		WalletBalance: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "livepredict_wallet_balance",
				Help: "Connected wallet balance",
			},
			[]string{"kind"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livepredict_http_requests_total",
				Help: "HTTP requests by route and status class",
			},
			[]string{"route", "status"},
		),
		LiveClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livepredict_ws_clients",
			Help: "Connected live update clients",
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livepredict_ws_subscriptions",
			Help: "Watched topics across live update clients",
		}),
	}

	m.registry.MustRegister(
		m.LedgerRequests,
		m.LedgerLatency,
		m.CacheLookups,
		m.PollRuns,
		m.PollLatency,
		m.BridgeErrors,
		m.WalletPhase,
		m.WalletBalance,
		m.HTTPRequests,
		m.LiveClients,
		m.Subscriptions,
		prometheus.NewGoCollector(),
	)

	return m
}

// Registry returns the registry backing the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveLedgerRequest implements ledger.Observer.
func (m *Metrics) ObserveLedgerRequest(operation, outcome string, d time.Duration) {
	m.LedgerRequests.WithLabelValues(operation, outcome).Inc()
	m.LedgerLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveCacheLookup implements cache.Observer.
func (m *Metrics) ObserveCacheLookup(result string) {
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObservePoll implements poller.Observer. Keys are reduced to their kind
// ("market:7" -> "market") to bound label cardinality.
func (m *Metrics) ObservePoll(key string, err error, d time.Duration) {
	kind, _, _ := strings.Cut(key, ":")
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.PollRuns.WithLabelValues(kind, status).Inc()
	m.PollLatency.WithLabelValues(kind).Observe(d.Seconds())
}

// ReportBridgeError implements market.Reporter.
func (m *Metrics) ReportBridgeError(operation, matchID string, err error) {
	m.BridgeErrors.WithLabelValues(operation).Inc()
}

// ObserveHTTPRequest counts one served request.
func (m *Metrics) ObserveHTTPRequest(route string, status int) {
	m.HTTPRequests.WithLabelValues(route, statusClass(status)).Inc()
}

// ObserveWallet records a wallet session snapshot.
func (m *Metrics) ObserveWallet(st wallet.State) {
	for _, p := range wallet.Phases {
		v := 0.0
		if p == st.Phase {
			v = 1
		}
		m.WalletPhase.WithLabelValues(string(p)).Set(v)
	}

	b := st.Wallet.Balance
	m.WalletBalance.WithLabelValues("available").Set(DecimalToFloat64(b.Available))
	m.WalletBalance.WithLabelValues("locked").Set(DecimalToFloat64(b.Locked))
	m.WalletBalance.WithLabelValues("total").Set(DecimalToFloat64(b.Total))
}

// WatchWallet keeps the wallet gauges current until the returned func is called.
func (m *Metrics) WatchWallet(s *wallet.Session) func() {
	m.ObserveWallet(s.State())
	return s.Subscribe(m.ObserveWallet)
}

// DecimalToFloat64 converts a decimal for use as a gauge value.
func DecimalToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	}
	return "2xx"
}
