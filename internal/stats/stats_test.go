// ABOUTME: Tests for orchestrator counters and their Prometheus mirror.
// ABOUTME: Uses testutil to read collector values from the private registry.

package stats

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats_Counters(t *testing.T) {
	s := New()
	s.Pulse("HEARTBEAT")
	s.Pulse("HEARTBEAT")
	s.Pulse("INTENT")
	s.Directive("ACK")
	s.Registration()
	s.Command()
	s.Command()

	snap := s.Snapshot()
	assert.Equal(t, uint64(3), snap.TotalPulses)
	assert.Equal(t, uint64(1), snap.TotalDirectives)
	assert.Equal(t, uint64(1), snap.TotalRegistrations)
	assert.Equal(t, uint64(2), snap.TotalCommands)
	assert.False(t, snap.ServerStart.IsZero())

	assert.Equal(t, 2.0, testutil.ToFloat64(s.pulsesTotal.WithLabelValues("HEARTBEAT")))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.commandsTotal))
}

func TestStats_NilIsNoop(t *testing.T) {
	var s *Stats
	s.Pulse("HEARTBEAT")
	s.Directive("ACK")
	s.Registration()
	s.Command()
	s.BusMessage(BusAcked)
	s.TrackConnected(func() int { return 1 })
	assert.Zero(t, s.Snapshot().TotalPulses)
}

func TestStats_Handler(t *testing.T) {
	s := New()
	s.BusMessage(BusDeadLettered)
	s.TrackConnected(func() int { return 4 })
	s.TrackConnected(func() int { return 99 })

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `orchestrator_bus_messages_total{outcome="dead_lettered"} 1`)
	assert.Contains(t, string(body), "orchestrator_connected_agents 4")
}
