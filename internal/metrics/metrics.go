// Package metrics exposes Prometheus instruments for the relay. Every method
// is safe on a nil *Collector so components can run without metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Delivery outcomes.
const (
	OutcomeDelivered = "delivered"
	OutcomeOffline   = "offline"
	OutcomeFailed    = "failed"
)

// Admission results.
const (
	AdmissionAccepted = "accepted"
	AdmissionRejected = "rejected"
)

// Collector holds all Prometheus metrics for the relay.
type Collector struct {
	registry *prometheus.Registry

	OnlineUsers        prometheus.Gauge
	Admissions         *prometheus.CounterVec
	Messages           *prometheus.CounterVec
	TypingSignals      *prometheus.CounterVec
	PresenceBroadcasts *prometheus.CounterVec
	DeliveryFailures   *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// NewCollector creates a collector with its own registry under namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Number of identities with a registered connection",
		}),
		Admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Connection admission attempts by result",
		}, []string{"result"}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_routed_total",
			Help:      "Routed messages by receiver delivery outcome",
		}, []string{"outcome"}),
		TypingSignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "typing_signals_total",
			Help:      "Routed typing signals by outcome",
		}, []string{"outcome"}),
		PresenceBroadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_broadcasts_total",
			Help:      "Presence broadcasts by state",
		}, []string{"online"}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Outbound events that could not be handed to a connection",
		}, []string{"event"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		c.OnlineUsers,
		c.Admissions,
		c.Messages,
		c.TypingSignals,
		c.PresenceBroadcasts,
		c.DeliveryFailures,
		c.HTTPRequests,
		c.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the exposition format for this collector.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) SetOnline(n int) {
	if c == nil {
		return
	}
	c.OnlineUsers.Set(float64(n))
}

func (c *Collector) Admission(result string) {
	if c == nil {
		return
	}
	c.Admissions.WithLabelValues(result).Inc()
}

func (c *Collector) MessageRouted(outcome string) {
	if c == nil {
		return
	}
	c.Messages.WithLabelValues(outcome).Inc()
}

func (c *Collector) TypingRouted(outcome string) {
	if c == nil {
		return
	}
	c.TypingSignals.WithLabelValues(outcome).Inc()
}

func (c *Collector) PresenceBroadcast(online bool) {
	if c == nil {
		return
	}
	c.PresenceBroadcasts.WithLabelValues(strconv.FormatBool(online)).Inc()
}

func (c *Collector) DeliveryFailed(eventType string) {
	if c == nil {
		return
	}
	c.DeliveryFailures.WithLabelValues(eventType).Inc()
}

// ObserveHTTP records one finished request.
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
