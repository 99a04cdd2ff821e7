// Package metrics exposes prometheus counters for lifecycle events and
// HTTP traffic.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/goliatone/go-accounts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "accounts"

// Metrics owns a registry and the collectors registered on it
type Metrics struct {
	Registry        *prometheus.Registry
	Events          *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
}

// New creates the collectors on a fresh registry. Process and Go runtime
// collectors are included.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Account lifecycle events by type.",
		}, []string{"event"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		m.Events,
		m.RequestDuration,
		m.RequestsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Record implements accounts.ActivitySink
func (m *Metrics) Record(_ context.Context, event accounts.ActivityEvent) error {
	m.Events.WithLabelValues(string(event.EventType)).Inc()
	return nil
}

var _ accounts.ActivitySink = (*Metrics)(nil)

// Middleware observes every request. Routes are labeled by their pattern,
// not the raw path. Errors go through the app error handler before the
// status is read.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		if err := c.Next(); err != nil {
			if herr := c.App().Config().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()

		route := c.Route().Path
		if route == "" {
			route = "unmatched"
		}

		m.RequestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		m.RequestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()

		return nil
	}
}

// Handler serves the registry in the prometheus text format
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
}
