package monitor

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Monitor) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMonitor_Counters(t *testing.T) {
	m := NewMonitor("pokerlobby")

	m.IncOnlineConnections()
	m.IncOnlineConnections()
	m.DecOnlineConnections()
	m.IncRoomsStarted()
	m.IncRoomsEnded()
	m.IncTurnTimeouts()
	m.IncSendFailures()
	m.IncMessagesReceived()
	m.SetActiveRooms(3)
	m.ObserveMessageLatency(time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, "pokerlobby_online_connections 1")
	assert.Contains(t, body, "pokerlobby_active_rooms 3")
	assert.Contains(t, body, "pokerlobby_rooms_started_total 1")
	assert.Contains(t, body, "pokerlobby_rooms_ended_total 1")
	assert.Contains(t, body, "pokerlobby_turn_timeouts_total 1")
	assert.Contains(t, body, "pokerlobby_send_failures_total 1")
	assert.Contains(t, body, "pokerlobby_messages_received_total 1")
	assert.Contains(t, body, "pokerlobby_message_latency_seconds_count 1")
}

func TestMonitor_NilIsNoop(t *testing.T) {
	var m *Monitor
	assert.NotPanics(t, func() {
		m.IncOnlineConnections()
		m.SetActiveRooms(1)
		m.IncTurnTimeouts()
		m.ObserveMessageLatency(time.Second)
	})
}

func TestMonitor_DebugVars(t *testing.T) {
	m := NewMonitor("pokerlobby")
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/debug/vars")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "uptime")
}
