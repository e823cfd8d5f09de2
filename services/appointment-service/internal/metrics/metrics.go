package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes counters for the appointment lifecycle. A nil *Metrics is a no-op.
type Metrics struct {
	bookings    *prometheus.CounterVec
	transitions *prometheus.CounterVec
	payments    *prometheus.CounterVec
	deliveries  *prometheus.CounterVec
	published   *prometheus.CounterVec
	expired     prometheus.Counter
	gatherer    prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg uses a fresh registry
// that also carries the Go and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	m := &Metrics{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docbook",
			Subsystem: "booking",
			Name:      "reservations_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docbook",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Status transition attempts by target status and outcome",
		}, []string{"to", "outcome"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docbook",
			Subsystem: "payment",
			Name:      "confirmations_total",
			Help:      "Payment confirmations by ingress and outcome",
		}, []string{"source", "outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docbook",
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Notification delivery attempts by channel and outcome",
		}, []string{"channel", "outcome"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docbook",
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox events written to Kafka",
		}, []string{"topic"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docbook",
			Subsystem: "lifecycle",
			Name:      "payment_expired_total",
			Help:      "Appointments cancelled by the payment expiry policy",
		}),
		gatherer: reg,
	}
	reg.MustRegister(m.bookings, m.transitions, m.payments, m.deliveries, m.published, m.expired)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveTransition(to, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to, outcome).Inc()
}

func (m *Metrics) ObservePayment(source, outcome string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) ObserveDelivery(channel, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) ObservePublished(topic string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(topic).Inc()
}

func (m *Metrics) ObserveExpired() {
	if m == nil {
		return
	}
	m.expired.Inc()
}
