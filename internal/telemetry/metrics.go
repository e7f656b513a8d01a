package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// OutcomeOK labels a successful resolution.
const OutcomeOK = "ok"

// Metrics holds the Prometheus collectors for the service. It satisfies
// resolver.Metrics and xrpc.Observer.
type Metrics struct {
	resolutions        *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec
	latestItemSources  *prometheus.CounterVec
	upstreamCalls      *prometheus.CounterVec
	upstreamDuration   *prometheus.HistogramVec
	httpRequests       *prometheus.CounterVec
}

// NewMetrics registers all collectors on registerer, or on the default
// registerer when nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listfresh_resolutions_total",
				Help: "Total number of list resolutions by outcome",
			},
			[]string{"outcome"},
		),
		resolutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "listfresh_resolution_duration_seconds",
				Help:    "Duration of list resolutions in seconds",
				Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"outcome"},
		),
		latestItemSources: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listfresh_latest_item_source_total",
				Help: "How the newest list item was located",
			},
			[]string{"source"},
		),
		upstreamCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listfresh_upstream_calls_total",
				Help: "Total number of XRPC calls by method and status",
			},
			[]string{"method", "status"},
		),
		upstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "listfresh_upstream_call_duration_seconds",
				Help:    "Duration of XRPC calls in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listfresh_http_requests_total",
				Help: "Total number of HTTP requests served",
			},
			[]string{"method", "status"},
		),
	}
}

// ObserveResolution records one resolution. outcome is OutcomeOK or an error code.
func (m *Metrics) ObserveResolution(outcome string, duration time.Duration) {
	m.resolutions.WithLabelValues(outcome).Inc()
	m.resolutionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *Metrics) ObserveLatestItemSource(source string) {
	m.latestItemSources.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveUpstreamCall(method, status string, duration time.Duration) {
	m.upstreamCalls.WithLabelValues(method, status).Inc()
	m.upstreamDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (m *Metrics) ObserveHTTPRequest(method string, status int) {
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}
