package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetSessions(1)
		m.IncMessage("text")
		m.AddRelayForwarded(3)
		m.IncRecordings()
		m.IncRecorderDrops()
	})
}

func TestCounters(t *testing.T) {
	m := New()
	m.IncMessage("text")
	m.IncMessage("text")
	m.IncRelayDiscarded("bad_magic")
	m.AddBackpressureDrops(2)
	m.SetRelayPeers(4)
	m.IncRecorderDrops()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.messages.WithLabelValues("text")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.relayDiscarded.WithLabelValues("bad_magic")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.backpressureDrops))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.relayPeers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recorderDrops))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "meet_messages_total")
}
