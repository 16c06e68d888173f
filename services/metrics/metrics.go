package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "yarcoin"

// Metrics holds the application collectors in their own registry.
type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	bids        *prometheus.CounterVec
	bidAmount   prometheus.Histogram
	settlements prometheus.Counter
	refunds     prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "route"}),

		bids: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bidding",
			Name:      "bids_total",
			Help:      "Bid placements by outcome (placed or the rejection reason).",
		}, []string{"outcome"}),
		bidAmount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bidding",
			Name:      "bid_amount_yar",
			Help:      "Amounts of the placed bids.",
			Buckets:   prometheus.ExponentialBuckets(10, 2, 12), // 10 to ~20k YAR
		}),
		settlements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bidding",
			Name:      "settlements_total",
			Help:      "Students acquired through settlement.",
		}),
		refunds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bidding",
			Name:      "refunds_total",
			Help:      "Superseded bids refunded at settlement.",
		}),
	}

	m.Registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.bids,
		m.bidAmount,
		m.settlements,
		m.refunds,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler exposes the registered collectors.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// RequestStarted must be paired with RequestDone.
func (m *Metrics) RequestStarted() { m.httpInFlight.Inc() }

func (m *Metrics) RequestDone(method, route string, status int, duration time.Duration) {
	m.httpInFlight.Dec()
	if route == "" {
		route = "unmatched"
	}
	method = strings.ToUpper(method)
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// BidPlaced records a successful bid.
func (m *Metrics) BidPlaced(amount int64) {
	m.bids.WithLabelValues("placed").Inc()
	m.bidAmount.Observe(float64(amount))
}

// BidRejected records a refused bid by reason (bid_too_low, busy...).
func (m *Metrics) BidRejected(reason string) {
	if reason == "" {
		reason = "error"
	}
	m.bids.WithLabelValues(reason).Inc()
}

func (m *Metrics) Settled(refunds int) {
	m.settlements.Inc()
	m.refunds.Add(float64(refunds))
}
