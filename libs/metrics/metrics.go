package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the default registry; mount it at /metrics on the base mux.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CalendarMetrics exposes counters for calendar writes and snapshot fan-out.
type CalendarMetrics struct {
	writesTotal    *prometheus.CounterVec
	snapshotsTotal *prometheus.CounterVec
	streamSessions prometheus.Gauge
}

func NewCalendarMetrics(reg prometheus.Registerer) *CalendarMetrics {
	m := &CalendarMetrics{
		writesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carebook",
			Subsystem: "calendar",
			Name:      "writes_total",
			Help:      "Total accepted calendar writes",
		}, []string{"entity", "op"}),
		snapshotsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carebook",
			Subsystem: "calendar",
			Name:      "snapshots_total",
			Help:      "Total snapshots fanned out to feed subscribers",
		}, []string{"entity"}),
		streamSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "carebook",
			Subsystem: "calendar",
			Name:      "stream_sessions",
			Help:      "Open calendar stream sessions",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.writesTotal, m.snapshotsTotal, m.streamSessions)
	return m
}

func (m *CalendarMetrics) ObserveWrite(entity, op string) {
	if m == nil {
		return
	}
	m.writesTotal.WithLabelValues(entity, op).Inc()
}

func (m *CalendarMetrics) ObserveSnapshot(entity string) {
	if m == nil {
		return
	}
	m.snapshotsTotal.WithLabelValues(entity).Inc()
}

func (m *CalendarMetrics) StreamOpened() {
	if m == nil {
		return
	}
	m.streamSessions.Inc()
}

func (m *CalendarMetrics) StreamClosed() {
	if m == nil {
		return
	}
	m.streamSessions.Dec()
}

// ConsumerMetrics exposes counters for event consumers.
type ConsumerMetrics struct {
	processedTotal *prometheus.CounterVec
	processSeconds *prometheus.HistogramVec
}

func NewConsumerMetrics(reg prometheus.Registerer, subsystem string) *ConsumerMetrics {
	m := &ConsumerMetrics{
		processedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carebook",
			Subsystem: subsystem,
			Name:      "events_processed_total",
			Help:      "Total consumed events by outcome",
		}, []string{"event_type", "status"}),
		processSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "carebook",
			Subsystem: subsystem,
			Name:      "event_process_seconds",
			Help:      "Latency of event processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.processedTotal, m.processSeconds)
	return m
}

func (m *ConsumerMetrics) ObserveProcessed(eventType, status string) {
	if m == nil {
		return
	}
	m.processedTotal.WithLabelValues(eventType, status).Inc()
}

func (m *ConsumerMetrics) ObserveProcessSeconds(eventType string, seconds float64) {
	if m == nil {
		return
	}
	m.processSeconds.WithLabelValues(eventType).Observe(seconds)
}

// DeliveryMetrics exposes counters for reminder deliveries.
type DeliveryMetrics struct {
	sentTotal *prometheus.CounterVec
}

func NewDeliveryMetrics(reg prometheus.Registerer) *DeliveryMetrics {
	m := &DeliveryMetrics{
		sentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carebook",
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Total reminder deliveries by channel and outcome",
		}, []string{"channel", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.sentTotal)
	return m
}

func (m *DeliveryMetrics) ObserveDelivery(channel, status string) {
	if m == nil {
		return
	}
	m.sentTotal.WithLabelValues(channel, status).Inc()
}
