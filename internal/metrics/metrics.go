// Package metrics exposes prometheus counters for the stanza pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roster"

// Stanza results.
const (
	ResultEvents  = "events"
	ResultIgnored = "ignored"
	ResultError   = "error"
)

// Metrics groups the collectors of one process. A nil *Metrics records
// nothing.
type Metrics struct {
	stanzas       *prometheus.CounterVec
	events        *prometheus.CounterVec
	handlerErrors *prometheus.CounterVec
	unresolvable  prometheus.Counter
	invalid       prometheus.Counter
	inboxDepth    *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stanzas: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stanzas_total",
			Help:      "Stanzas classified, by stanza kind and result.",
		}, []string{"kind", "result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_events_total",
			Help:      "Server events dispatched, by event type.",
		}, []string{"type"}),
		handlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Events a handler failed to process.",
		}, []string{"handler"}),
		unresolvable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unresolvable_references_total",
			Help:      "Modifiers dropped because their target never arrived.",
		}),
		invalid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_messages_total",
			Help:      "Message log records rejected by validation.",
		}),
		inboxDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inbox_depth",
			Help:      "Stanzas waiting to be processed, by account.",
		}, []string{"account"}),
	}
	reg.MustRegister(m.stanzas, m.events, m.handlerErrors, m.unresolvable, m.invalid, m.inboxDepth)
	return m
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Stanza counts one classified stanza.
func (m *Metrics) Stanza(kind, result string) {
	if m == nil {
		return
	}
	m.stanzas.WithLabelValues(kind, result).Inc()
}

// Event counts one dispatched server event.
func (m *Metrics) Event(typ string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(typ).Inc()
}

// HandlerError counts one handler failure.
func (m *Metrics) HandlerError(handler string) {
	if m == nil {
		return
	}
	m.handlerErrors.WithLabelValues(handler).Inc()
}

// Reconciled counts the warnings and rejects of a reconcile pass.
func (m *Metrics) Reconciled(unresolvable, invalid int) {
	if m == nil {
		return
	}
	m.unresolvable.Add(float64(unresolvable))
	m.invalid.Add(float64(invalid))
}

// InboxDepth records how many stanzas wait in the inbox of account.
func (m *Metrics) InboxDepth(account string, depth int) {
	if m == nil {
		return
	}
	m.inboxDepth.WithLabelValues(account).Set(float64(depth))
}
