package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tether",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	packetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "packets",
			Name:      "total",
			Help:      "Packet events by kind.",
		},
		[]string{"node", "event"},
	)
	packetsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "packets",
			Name:      "rejected_total",
			Help:      "Rejected inbound packets by reason.",
		},
		[]string{"node", "reason"},
	)
	sessionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "sessions",
			Name:      "events_total",
			Help:      "Session lifecycle events by kind and reason.",
		},
		[]string{"node", "event", "reason"},
	)
	sessionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tether",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Remote sessions currently in the table.",
		},
		[]string{"node"},
	)
	reliableOutstanding = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tether",
			Subsystem: "reliability",
			Name:      "outstanding",
			Help:      "Reliable packets awaiting acknowledgment.",
		},
		[]string{"node"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			packetsTotal,
			packetsRejected,
			sessionEvents,
			sessionsActive,
			reliableOutstanding,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordPacket(node, event string) {
	RegisterMetrics()
	packetsTotal.WithLabelValues(node, event).Inc()
}

func RecordRejected(node, reason string) {
	RegisterMetrics()
	packetsRejected.WithLabelValues(node, reason).Inc()
}

func RecordSessionEvent(node, event, reason string) {
	RegisterMetrics()
	sessionEvents.WithLabelValues(node, event, reason).Inc()
}

func SetSessionsActive(node string, n int) {
	RegisterMetrics()
	sessionsActive.WithLabelValues(node).Set(float64(n))
}

func SetOutstanding(node string, n int) {
	RegisterMetrics()
	reliableOutstanding.WithLabelValues(node).Set(float64(n))
}
