package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"alertengine/internal/domain"
)

// Collector aggregates engine counters behind a private registry.
// Params: prometheus instruments for events, notifications, delivery, and escalations.
// Returns: nil-safe metrics facade shared across the pipeline.
type Collector struct {
	registry              *prometheus.Registry
	eventsProcessed       prometheus.Counter
	notificationsCreated  *prometheus.CounterVec
	sends                 *prometheus.CounterVec
	retriesScheduled      prometheus.Counter
	escalationsFired      *prometheus.CounterVec
	acknowledgments       prometheus.Counter
	acknowledgmentLatency prometheus.Histogram
}

// NewCollector creates the engine metrics collector.
// Params: none.
// Returns: collector backed by a fresh registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	return &Collector{
		registry: registry,
		eventsProcessed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "alertengine_events_processed_total",
			Help: "Total number of events run through rule evaluation",
		}),
		notificationsCreated: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "alertengine_notifications_created_total",
			Help: "Total number of notifications created, by severity",
		}, []string{"severity"}),
		sends: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "alertengine_sends_total",
			Help: "Total number of delivery attempts, by channel and outcome",
		}, []string{"channel", "outcome"}),
		retriesScheduled: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "alertengine_send_retries_scheduled_total",
			Help: "Total number of delivery retries scheduled",
		}),
		escalationsFired: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "alertengine_escalations_fired_total",
			Help: "Total number of escalation steps fired, by level",
		}, []string{"level"}),
		acknowledgments: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "alertengine_acknowledgments_total",
			Help: "Total number of notification acknowledgments",
		}),
		acknowledgmentLatency: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "alertengine_acknowledgment_latency_minutes",
			Help:    "Minutes between notification creation and acknowledgment",
			Buckets: []float64{1, 5, 15, 30, 60, 240, 1440},
		}),
	}
}

// EventProcessed counts one evaluated event.
// Params: none.
// Returns: nothing.
func (c *Collector) EventProcessed() {
	if c == nil {
		return
	}
	c.eventsProcessed.Inc()
}

// NotificationCreated counts one created notification.
// Params: notification severity.
// Returns: nothing.
func (c *Collector) NotificationCreated(severity domain.Severity) {
	if c == nil {
		return
	}
	c.notificationsCreated.WithLabelValues(string(severity)).Inc()
}

// SendAttempt counts one delivery attempt outcome.
// Params: channel and outcome label ("ok", "error", "permanent", "exhausted").
// Returns: nothing.
func (c *Collector) SendAttempt(channel domain.Channel, outcome string) {
	if c == nil {
		return
	}
	c.sends.WithLabelValues(string(channel), outcome).Inc()
}

// RetryScheduled counts one scheduled delivery retry.
// Params: none.
// Returns: nothing.
func (c *Collector) RetryScheduled() {
	if c == nil {
		return
	}
	c.retriesScheduled.Inc()
}

// EscalationFired counts one fired escalation step.
// Params: escalation level.
// Returns: nothing.
func (c *Collector) EscalationFired(level int) {
	if c == nil {
		return
	}
	c.escalationsFired.WithLabelValues(strconv.Itoa(level)).Inc()
}

// Acknowledged counts one acknowledgment and observes response latency.
// Params: elapsed time between creation and acknowledgment.
// Returns: nothing.
func (c *Collector) Acknowledged(latency time.Duration) {
	if c == nil {
		return
	}
	c.acknowledgments.Inc()
	c.acknowledgmentLatency.Observe(latency.Minutes())
}

// Handler exposes the registry over HTTP.
// Params: none.
// Returns: promhttp handler for the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
