package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "zonemesh"

// Message directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Reservation outcomes.
const (
	ReservationGranted   = "granted"
	ReservationRejected  = "rejected"
	ReservationCancelled = "cancelled"
	ReservationExpired   = "expired"
	ReservationConfirmed = "confirmed"
	ReservationReleased  = "released"
)

// Registry holds all application metrics on a private Prometheus registry.
//
// All recording methods accept a nil receiver so components can run
// without metrics in tests.
type Registry struct {
	reg *prometheus.Registry

	// Peer protocol metrics
	Messages          *prometheus.CounterVec
	PendingRequests   prometheus.Gauge
	RequestsResolved  *prometheus.CounterVec
	ChannelEvents     *prometheus.CounterVec
	HandshakeFailures prometheus.Counter

	// Placement metrics
	Reservations *prometheus.CounterVec
}

// NewRegistry creates a registry with the process and Go collectors plus
// the peer protocol metrics.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "peer",
			Name:      "messages_total",
			Help:      "Peer messages by type and direction.",
		}, []string{"type", "direction"}),
		PendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "pending_requests",
			Help:      "Requests waiting for replies.",
		}),
		RequestsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_resolved_total",
			Help:      "Resolved requests, partitioned by whether a peer was lost mid-flight.",
		}, []string{"result"}),
		ChannelEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "peer",
			Name:      "channel_events_total",
			Help:      "Peer channel transitions.",
		}, []string{"event"}),
		HandshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "peer",
			Name:      "handshake_failures_total",
			Help:      "Inbound connections rejected during handshake.",
		}),
		Reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "placement",
			Name:      "reservations_total",
			Help:      "Place reservations by outcome.",
		}, []string{"outcome"}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.Messages,
		r.PendingRequests,
		r.RequestsResolved,
		r.ChannelEvents,
		r.HandshakeFailures,
		r.Reservations,
	)
	return r
}

// Register adds an extra collector.
func (r *Registry) Register(c prometheus.Collector) error {
	return r.reg.Register(c)
}

// Registerer exposes the underlying registry for collectors owned by
// other packages.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.reg
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// MessageSent counts one outbound message of the given type.
func (r *Registry) MessageSent(msgType string) {
	if r == nil {
		return
	}
	r.Messages.WithLabelValues(msgType, DirectionOut).Inc()
}

// MessageReceived counts one inbound message of the given type.
func (r *Registry) MessageReceived(msgType string) {
	if r == nil {
		return
	}
	r.Messages.WithLabelValues(msgType, DirectionIn).Inc()
}

// SetPending records the number of outstanding requests.
func (r *Registry) SetPending(n int) {
	if r == nil {
		return
	}
	r.PendingRequests.Set(float64(n))
}

// RequestResolved counts a completed request. lost is true when at least
// one expected peer disappeared before answering.
func (r *Registry) RequestResolved(lost bool) {
	if r == nil {
		return
	}
	result := "complete"
	if lost {
		result = "peer_lost"
	}
	r.RequestsResolved.WithLabelValues(result).Inc()
}

// ChannelEvent counts a channel transition ("up", "down", "replaced").
func (r *Registry) ChannelEvent(event string) {
	if r == nil {
		return
	}
	r.ChannelEvents.WithLabelValues(event).Inc()
}

// HandshakeFailed counts a rejected inbound handshake.
func (r *Registry) HandshakeFailed() {
	if r == nil {
		return
	}
	r.HandshakeFailures.Inc()
}

// Reservation counts a reservation outcome.
func (r *Registry) Reservation(outcome string) {
	if r == nil {
		return
	}
	r.Reservations.WithLabelValues(outcome).Inc()
}
