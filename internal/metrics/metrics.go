// Package metrics holds the prometheus collectors of the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "collab"

type Metrics struct {
	registry *prometheus.Registry

	Connections      prometheus.Gauge
	Rooms            prometheus.Gauge
	InboundEvents    *prometheus.CounterVec
	ThrottledEvents  prometheus.Counter
	Broadcasts       *prometheus.CounterVec
	DeliveryFailures prometheus.Counter
}

// New creates the collectors on a private registry, so several instances
// can live side by side in tests.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of registered client connections.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Number of workspace rooms with at least one member.",
		}),
		InboundEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_events_total",
			Help:      "Client events accepted by the rate limiter, by event name.",
		}, []string{"event"}),
		ThrottledEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttled_events_total",
			Help:      "Client events rejected by the rate limiter.",
		}),
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Room broadcasts, by outbound event name.",
		}, []string{"event"}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Outbound frames that could not be queued; the connection was closed.",
		}),
	}
	m.registry.MustRegister(
		m.Connections,
		m.Rooms,
		m.InboundEvents,
		m.ThrottledEvents,
		m.Broadcasts,
		m.DeliveryFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
