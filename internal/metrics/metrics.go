package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build independent instances.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	ledgerEntries   *prometheus.CounterVec
	balanceDrift    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "filmtrack",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "filmtrack",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		ledgerEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "filmtrack",
			Name:      "stock_ledger_entries_total",
			Help:      "Stock ledger entries appended, by direction and outcome.",
		}, []string{"type", "outcome"}),
		balanceDrift: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "filmtrack",
			Name:      "stock_balance_drift_materials",
			Help:      "Materials whose counter disagreed with the ledger at the last reconcile.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.ledgerEntries,
		m.balanceDrift,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRequest(route string, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func (m *Metrics) LedgerEntry(txType string, outcome string) {
	if m == nil {
		return
	}
	m.ledgerEntries.WithLabelValues(txType, outcome).Inc()
}

func (m *Metrics) BalanceDrift(materials int) {
	if m == nil {
		return
	}
	m.balanceDrift.Set(float64(materials))
}
