// ABOUTME: Builds the SystemSnapshot sent in welcome acks, registration acks and GetSystemStatus.
// ABOUTME: Combines the control plane dashboard with local registry counts, degrading to local-only.

package gateway

import (
	"context"

	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/2389/meta-orchestrator/internal/agent"
	"github.com/2389/meta-orchestrator/internal/control"
	"github.com/2389/meta-orchestrator/proto/pulse"
)

// buildSnapshot composes the registry size with the latest dashboard. A
// failed dashboard fetch still yields a well-formed snapshot built from local
// counts with an empty agent list.
func buildSnapshot(ctx context.Context, bridge control.Bridge, registry *agent.Registry) *pulse.SystemSnapshot {
	local := int32(registry.Len())
	snap := &pulse.SystemSnapshot{
		OnlineAgents: local,
		TotalAgents:  local,
		Timestamp:    timestamppb.Now(),
		Agents:       []*pulse.AgentSummary{},
	}

	dash, err := bridge.Dashboard(ctx)
	if err != nil || dash == nil {
		return snap
	}

	if dash.OnlineCount != nil {
		snap.OnlineAgents = int32(*dash.OnlineCount)
	}
	if len(dash.Agents) > 0 {
		snap.TotalAgents = int32(len(dash.Agents))
	}
	snap.QueuedCommands = int32(dash.QueuedCommands)
	snap.RunningCommands = int32(dash.RunningCommands)

	for _, rec := range dash.Agents {
		snap.Agents = append(snap.Agents, agentSummary(rec))
	}
	return snap
}

func agentSummary(rec control.AgentRecord) *pulse.AgentSummary {
	summary := &pulse.AgentSummary{
		Name:         rec.Name,
		DisplayName:  rec.DisplayName,
		Status:       agent.ParseAgentStatus(rec.Status),
		AgentType:    agent.ParseAgentType(rec.AgentType),
		CurrentTask:  rec.CurrentTask,
		Capabilities: rec.Capabilities,
	}
	if !rec.LastSeen.IsZero() {
		summary.LastSeen = timestamppb.New(rec.LastSeen)
	}
	return summary
}
