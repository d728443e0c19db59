// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics surface used by the service layers.
type Recorder interface {
	RecordUsageDecision(tool, decision string)
	RecordRegistration(result string)
	RecordLogin(result string)
	RecordCheckout(result string)
	RecordWebhook(outcome string)
	RecordHTTPRequest(method string, status int, duration time.Duration)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	usageDecisions *prometheus.CounterVec
	registrations  *prometheus.CounterVec
	logins         *prometheus.CounterVec
	checkouts      *prometheus.CounterVec
	webhooks       *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpLatency    prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics, plus the Go
// runtime and process collectors, with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		usageDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promptstudio_usage_decisions_total",
			Help: "Metering decisions by tool and outcome.",
		}, []string{"tool", "decision"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promptstudio_registrations_total",
			Help: "Account registrations by result.",
		}, []string{"result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promptstudio_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promptstudio_checkout_sessions_total",
			Help: "Checkout session attempts by result.",
		}, []string{"result"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promptstudio_webhook_events_total",
			Help: "Payment webhook deliveries by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promptstudio_http_requests_total",
			Help: "HTTP responses by method and status code.",
		}, []string{"method", "status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "promptstudio_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.usageDecisions,
		c.registrations,
		c.logins,
		c.checkouts,
		c.webhooks,
		c.httpRequests,
		c.httpLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

func (c *Collector) RecordUsageDecision(tool, decision string) {
	c.usageDecisions.WithLabelValues(tool, decision).Inc()
}

func (c *Collector) RecordRegistration(result string) {
	c.registrations.WithLabelValues(result).Inc()
}

func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

func (c *Collector) RecordCheckout(result string) {
	c.checkouts.WithLabelValues(result).Inc()
}

func (c *Collector) RecordWebhook(outcome string) {
	c.webhooks.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordHTTPRequest(method string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

// Nop discards all measurements.
type Nop struct{}

func (Nop) RecordUsageDecision(string, string) {}
func (Nop) RecordRegistration(string) {}
func (Nop) RecordLogin(string) {}
func (Nop) RecordCheckout(string) {}
func (Nop) RecordWebhook(string) {}
func (Nop) RecordHTTPRequest(string, int, time.Duration) {}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
