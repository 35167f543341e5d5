package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Stanza("message", ResultEvents)
	m.Stanza("message", ResultEvents)
	m.Stanza("iq", ResultError)
	m.Event("MessageEvent")
	m.HandlerError("rooms")
	m.Reconciled(2, 1)
	m.InboxDepth("me@example.com", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.stanzas.WithLabelValues("message", ResultEvents)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stanzas.WithLabelValues("iq", ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("MessageEvent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.handlerErrors.WithLabelValues("rooms")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.unresolvable))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invalid))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.inboxDepth.WithLabelValues("me@example.com")))

	err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP roster_handler_errors_total Events a handler failed to process.
# TYPE roster_handler_errors_total counter
roster_handler_errors_total{handler="rooms"} 1
`), "roster_handler_errors_total")
	require.NoError(t, err)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Stanza("message", ResultIgnored)
		m.Event("RoomEvent")
		m.HandlerError("rooms")
		m.Reconciled(1, 1)
		m.InboxDepth("me@example.com", 1)
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).Stanza("presence", ResultEvents)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `roster_stanzas_total{kind="presence",result="events"} 1`)
}
