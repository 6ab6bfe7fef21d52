// Package metrics provides Prometheus metric definitions for botreport.
//
// Labels stay low cardinality: dispatch kind, result class and bus
// subscriber name. Endpoint URLs and bot ids are never used as labels.
package metrics

import (
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sureshkrishnan-v/botreport/internal/constants"
)

// Metrics holds all Prometheus metrics for botreport.
type Metrics struct {
	// Dispatch metrics
	Dispatches       *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec

	// Event intake metrics
	EventsFiltered prometheus.Counter
	EventsIgnored  prometheus.Counter
	EventErrors    prometheus.Counter

	// Quick operation metrics
	QuickOps *prometheus.CounterVec

	// Event bus metrics
	BusQueueDepth *prometheus.GaugeVec
	BusDropped    prometheus.Counter

	lastDropped uint64
}

// New creates and registers all botreport metrics with reg.
// A nil reg registers nothing, which is what tests usually want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Dispatches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: constants.MetricDispatches,
				Help: "Report POSTs by kind (lifecycle, heartbeat, event) and result.",
			},
			constants.LabelsKindResult,
		),

		DispatchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    constants.MetricDispatchDuration,
				Help:    "Report POST latency in seconds, including connection retries.",
				Buckets: constants.DispatchLatencyBuckets,
			},
			constants.LabelsKind,
		),

		EventsFiltered: f.NewCounter(prometheus.CounterOpts{
			Name: constants.MetricEventsFiltered,
			Help: "Events suppressed by the event filter.",
		}),

		EventsIgnored: f.NewCounter(prometheus.CounterOpts{
			Name: constants.MetricEventsIgnored,
			Help: "Events the serializer has no report shape for.",
		}),

		EventErrors: f.NewCounter(prometheus.CounterOpts{
			Name: constants.MetricEventErrors,
			Help: "Events whose handling failed or panicked.",
		}),

		QuickOps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: constants.MetricQuickOps,
				Help: "Quick operation feedback attempts by result.",
			},
			constants.LabelsResult,
		),

		BusQueueDepth: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: constants.MetricBusQueueDepth,
				Help: "Events buffered per event bus subscriber.",
			},
			constants.LabelsSubscriber,
		),

		BusDropped: f.NewCounter(prometheus.CounterOpts{
			Name: constants.MetricBusDropped,
			Help: "Events dropped because a subscriber buffer was full.",
		}),
	}
}

// ObserveDispatch records one finished report POST.
func (m *Metrics) ObserveDispatch(kind, result string, d time.Duration) {
	m.Dispatches.WithLabelValues(kind, result).Inc()
	m.DispatchDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveQuickOp records a quick operation outcome.
func (m *Metrics) ObserveQuickOp(result string) {
	m.QuickOps.WithLabelValues(result).Inc()
}

// SetBusStats copies an event bus snapshot into the gauges. dropped is the
// bus-wide running total; only the increase since the last call is added.
// Called from a single collector goroutine.
func (m *Metrics) SetBusStats(depth map[string]int, dropped uint64) {
	for name, n := range depth {
		m.BusQueueDepth.WithLabelValues(name).Set(float64(n))
	}
	if dropped > m.lastDropped {
		m.BusDropped.Add(float64(dropped - m.lastDropped))
	}
	m.lastDropped = dropped
}

// EndpointHost reduces a report URL to its host for logging, so secrets
// in paths or query strings never reach the logs.
// Examples:
//
//	"http://127.0.0.1:8080/report?token=x" → "127.0.0.1:8080"
//	"https://bot.example.com/hook"          → "bot.example.com"
//	"::bad"                                 → "invalid"
func EndpointHost(raw string) string {
	if raw == "" {
		return "none"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "invalid"
	}
	return u.Host
}
