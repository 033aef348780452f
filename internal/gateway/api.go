// ABOUTME: HTTP operations endpoints served next to the gRPC port.
// ABOUTME: Liveness, readiness, connected agents, orchestrator counters and Prometheus metrics.

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/2389/meta-orchestrator/internal/stats"
)

// AgentInfoResponse is one element of the GET /api/agents response.
type AgentInfoResponse struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	ConnectedAt time.Time `json:"connected_at"`
	LastPulseAt time.Time `json:"last_pulse_at"`
	IdleSeconds float64   `json:"idle_seconds"`
	PulseCount  uint64    `json:"pulse_count"`
	QueuedCount int       `json:"queued_directives"`
}

// StatsResponse is the JSON response for GET /api/stats.
type StatsResponse struct {
	stats.Snapshot
	ConnectedAgents int `json:"connected_agents"`
}

// registerHTTPRoutes wires every ops endpoint onto mux.
func (g *Gateway) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)
	mux.HandleFunc("/api/agents", g.handleListAgents)
	mux.HandleFunc("/api/stats", g.handleStats)
	if g.config.Metrics.Enabled {
		mux.Handle(g.config.Metrics.Path, g.stats.Handler())
	}
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the control plane answers its health probe.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	res := g.bridge.Health(r.Context())
	if res.String("cortex") == "unreachable" {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "control plane unreachable: %s", res.String("error"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d agents)", g.registry.Len())
}

// handleListAgents handles GET /api/agents requests.
// It returns a JSON array of agents with a live Pulse stream, sorted by id.
func (g *Gateway) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	now := time.Now()
	conns := g.registry.List()
	response := make([]AgentInfoResponse, 0, len(conns))
	for _, c := range conns {
		response = append(response, AgentInfoResponse{
			ID:          c.ID,
			Status:      c.Status().String(),
			ConnectedAt: c.ConnectedAt,
			LastPulseAt: c.LastPulseAt(),
			IdleSeconds: c.IdleFor(now).Seconds(),
			PulseCount:  c.PulseCount(),
			QueuedCount: c.QueueLen(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleStats handles GET /api/stats requests.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	response := StatsResponse{
		Snapshot:        g.stats.Snapshot(),
		ConnectedAgents: g.registry.Len(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
