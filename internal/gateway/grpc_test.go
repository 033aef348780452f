// ABOUTME: Tests for the NexusPulseService over an in-memory gRPC transport
// ABOUTME: Walks the welcome, heartbeat, intent and reap scenarios plus the unary RPCs

package gateway

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	reflectionpb "google.golang.org/grpc/reflection/grpc_reflection_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/2389/meta-orchestrator/internal/config"
	"github.com/2389/meta-orchestrator/internal/control"
	"github.com/2389/meta-orchestrator/proto/pulse"
)

func TestPulse_WelcomeThenRegistrationAck(t *testing.T) {
	h := newHarness(t)

	a1 := connect(t, h.client, registrationPulse("A1", 1))

	welcome := a1.next()
	assert.Equal(t, pulse.DirectiveTypeAck, welcome.GetDirectiveType())
	assert.Equal(t, uint64(1), welcome.GetSequenceNumber())
	assert.Contains(t, welcome.GetMessage(), "Welcome to NEXUS PRIME, A1")
	require.NotNil(t, welcome.GetSystemState())
	assert.Equal(t, int32(1), welcome.GetSystemState().GetOnlineAgents())
	assert.NotNil(t, welcome.GetSystemState().Timestamp)

	ack := a1.next()
	assert.Equal(t, pulse.DirectiveTypeAck, ack.GetDirectiveType())
	assert.Equal(t, uint64(2), ack.GetSequenceNumber())
	assert.Contains(t, ack.GetMessage(), "A1")
	assert.Contains(t, ack.GetMessage(), "registered")
	assert.Equal(t, "1", ack.GetAckForPulseID())
	assert.Equal(t, "corr-A1", ack.CorrelationID)

	regs := h.bridge.Registrations()
	require.Len(t, regs, 1)
	assert.Equal(t, "A1", regs[0].Name)
	assert.Equal(t, "planet", regs[0].AgentType)
	assert.Equal(t, []string{"scan", "report"}, regs[0].Capabilities)

	conn, ok := h.gw.registry.Get("A1")
	require.True(t, ok)
	assert.Equal(t, uint64(1), conn.PulseCount())
}

func TestPulse_HeartbeatRelayAndAcks(t *testing.T) {
	h := newHarness(t)
	a1 := register(t, h.client, "A1")

	for i, cpu := range []float64{10, 20, 30} {
		a1.send(heartbeatPulse("A1", uint64(i+2), cpu))
	}

	for i := 0; i < 3; i++ {
		ack := a1.next()
		assert.Equal(t, pulse.DirectiveTypeAck, ack.GetDirectiveType())
		assert.Equal(t, uint64(3+i), ack.GetSequenceNumber())
		assert.Equal(t, fmt.Sprintf("Heartbeat #%d received", i+2), ack.GetMessage())
	}

	hbs := h.bridge.Heartbeats()
	require.Len(t, hbs, 3)
	for i, cpu := range []float64{10, 20, 30} {
		assert.Equal(t, "A1", hbs[i].AgentName)
		assert.Equal(t, cpu, hbs[i].Metrics["cpu"])
	}
}

func TestPulse_TouchesConnBeforeHandler(t *testing.T) {
	h := newHarness(t)
	a1 := register(t, h.client, "A1")

	seen := make(chan time.Time, 1)
	h.bridge.SetHeartbeatFunc(func(name string) {
		conn, ok := h.gw.registry.Get(name)
		if !ok {
			seen <- time.Time{}
			return
		}
		seen <- conn.LastPulseAt()
	})

	time.Sleep(20 * time.Millisecond)
	sent := time.Now()
	a1.send(heartbeatPulse("A1", 2, 5))

	select {
	case lastPulse := <-seen:
		assert.False(t, lastPulse.Before(sent), "last pulse %v predates send %v", lastPulse, sent)
	case <-time.After(waitFor):
		t.Fatal("heartbeat never reached the bridge")
	}
}

func TestPulse_HeartbeatAckDisabled(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Agents.HeartbeatAck = false })
	a1 := register(t, h.client, "A1")

	a1.send(heartbeatPulse("A1", 2, 5))
	require.Eventually(t, func() bool { return len(h.bridge.Heartbeats()) == 1 }, waitFor, 10*time.Millisecond)
	a1.expectNone(100 * time.Millisecond)
}

func TestPulse_IntentRoutesToConnectedAgent(t *testing.T) {
	h := newHarness(t)
	h.bridge.SetSubmitFunc(func(req control.CommandRequest) control.Result {
		return control.Result{"command_id": "cmd-7", "target_agent": "A2"}
	})

	a1 := register(t, h.client, "A1")
	a2 := connect(t, h.client, heartbeatPulse("A2", 1, 1))
	a2.next() // welcome
	a2.next() // heartbeat ack

	a1.send(&pulse.AgentPulse{
		AgentID:        "A1",
		PulseType:      pulse.PulseTypeIntent,
		SequenceNumber: 2,
		Intent: &pulse.AgentIntent{
			RequestedAction: "scan",
			Priority:        2,
			Payload:         map[string]any{"k": 1.0},
		},
	})

	ack := a1.next()
	assert.Contains(t, ack.GetMessage(), "cmd-7")
	assert.Equal(t, "2", ack.GetAckForPulseID())

	task := a2.next()
	assert.Equal(t, pulse.DirectiveTypeExecuteTask, task.GetDirectiveType())
	assert.Equal(t, uint64(3), task.GetSequenceNumber())
	require.NotNil(t, task.GetCommand())
	assert.Equal(t, "cmd-7", task.GetCommand().GetCommandID())
	assert.Equal(t, "scan", task.GetCommand().GetCommandType())
	assert.Equal(t, "A1", task.GetCommand().GetOrigin())
	assert.Equal(t, map[string]any{"k": 1.0}, task.GetCommand().GetPayload())

	cmds := h.bridge.Commands()
	require.Len(t, cmds, 1)
	assert.Nil(t, cmds[0].TargetAgent)
	assert.Equal(t, 2, cmds[0].Priority)
}

func TestPulse_FirstPulseWithoutAgentID(t *testing.T) {
	h := newHarness(t)

	a := connect(t, h.client, &pulse.AgentPulse{PulseType: pulse.PulseTypeHeartbeat})
	err := a.end()

	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "agent_id")
	assert.Zero(t, h.gw.registry.Len())
	assert.Empty(t, h.bridge.Events())
}

func TestPulse_DisconnectPostsOneEvent(t *testing.T) {
	h := newHarness(t)
	a1 := register(t, h.client, "A1")

	require.NoError(t, a1.stream.CloseSend())
	assert.ErrorIs(t, a1.end(), io.EOF)

	require.Eventually(t, func() bool { return len(h.bridge.EventsOfType("info")) == 1 }, waitFor, 10*time.Millisecond)
	ev := h.bridge.EventsOfType("info")[0]
	assert.Equal(t, "A1", ev.AgentName)
	assert.Equal(t, control.SeverityMedium, ev.Severity)
	assert.Equal(t, "Agent A1 disconnected from gRPC Pulse", ev.Title)
	assert.Zero(t, h.gw.registry.Len())
}

func TestPulse_NewestStreamWins(t *testing.T) {
	h := newHarness(t)
	first := register(t, h.client, "A1")
	second := register(t, h.client, "A1")

	assert.ErrorIs(t, first.end(), io.EOF)
	require.Len(t, h.bridge.EventsOfType("warning"), 1)

	conn, ok := h.gw.registry.Get("A1")
	require.True(t, ok)
	assert.Equal(t, 1, h.gw.registry.Len())

	// The superseded stream's teardown must not evict the live one.
	second.send(heartbeatPulse("A1", 2, 1))
	second.next()
	current, ok := h.gw.registry.Get("A1")
	require.True(t, ok)
	assert.Same(t, conn, current)
	assert.Empty(t, h.bridge.EventsOfType("info"))
}

func TestPulse_StaleAgentReapedThenReadmitted(t *testing.T) {
	h := newHarness(t)
	h.bridge.SetSubmitFunc(func(req control.CommandRequest) control.Result {
		return control.Result{"command_id": "cmd-11", "target_agent": "A3"}
	})
	a3 := register(t, h.client, "A3")

	threshold := h.gw.config.Agents.StalenessThreshold
	reaped := h.gw.reaper.Sweep(context.Background(), time.Now().Add(threshold+time.Second))
	assert.Equal(t, []string{"A3"}, reaped)
	assert.Len(t, h.bridge.EventsOfType("alert"), 1)
	assert.Zero(t, h.gw.registry.Len())

	ack, err := h.client.SubmitCommand(context.Background(), &pulse.TaskCommand{CommandType: "scan", TargetAgent: "A3"})
	require.NoError(t, err)
	assert.True(t, ack.Success)
	assert.Equal(t, pulse.TaskStatusQueued, ack.Status)
	a3.expectNone(100 * time.Millisecond)

	// A pulse from the reaped stream puts it back.
	a3.send(heartbeatPulse("A3", 2, 1))
	a3.next()
	assert.Equal(t, 1, h.gw.registry.Len())
	assert.Len(t, h.bridge.EventsOfType("alert"), 1)
}

func TestPulse_ShutdownEndsStreams(t *testing.T) {
	h := newHarness(t)
	a1 := register(t, h.client, "A1")

	require.NoError(t, h.gw.Shutdown(context.Background()))
	assert.Error(t, a1.end())
	assert.True(t, h.bridge.Closed())
	assert.Zero(t, h.gw.registry.Len())
}

func TestRegisterAgent_Unary(t *testing.T) {
	h := newHarness(t)

	ack, err := h.client.RegisterAgent(context.Background(), &pulse.AgentRegistration{
		Name:         "svc-1",
		AgentType:    pulse.AgentTypeSwarm,
		Capabilities: []string{"crawl"},
	})
	require.NoError(t, err)
	assert.True(t, ack.Success)
	assert.Equal(t, "svc-1", ack.AgentID)
	assert.Equal(t, "Agent svc-1 registered successfully", ack.Message)
	assert.NotNil(t, ack.RegisteredAt)
	assert.NotNil(t, ack.SystemState)

	regs := h.bridge.Registrations()
	require.Len(t, regs, 1)
	assert.Equal(t, "swarm", regs[0].AgentType)
	assert.Equal(t, uint64(1), h.gw.stats.Snapshot().TotalRegistrations)
}

func TestRegisterAgent_BridgeFailure(t *testing.T) {
	h := newHarness(t)
	h.bridge.RegisterResult = control.Result{"error": "duplicate"}

	ack, err := h.client.RegisterAgent(context.Background(), &pulse.AgentRegistration{Name: "svc-1"})
	require.NoError(t, err)
	assert.False(t, ack.Success)
	assert.Equal(t, "Registration failed: duplicate", ack.Message)
	assert.Nil(t, ack.SystemState)
}

func TestSubmitCommand_Defaults(t *testing.T) {
	h := newHarness(t)
	h.bridge.SubmitResult = control.Result{"command_id": "cmd-1"}

	ack, err := h.client.SubmitCommand(context.Background(), &pulse.TaskCommand{CommandType: "report"})
	require.NoError(t, err)
	assert.True(t, ack.Success)
	assert.Equal(t, "cmd-1", ack.CommandID)
	assert.Equal(t, "auto-routed", ack.TargetAgent)
	assert.Equal(t, pulse.TaskStatusQueued, ack.Status)
	assert.Equal(t, "Command queued successfully", ack.Message)

	cmds := h.bridge.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, "grpc_client", cmds[0].Origin)
	assert.Equal(t, 5, cmds[0].Priority)
	assert.Nil(t, cmds[0].TargetAgent)
	assert.Equal(t, uint64(1), h.gw.stats.Snapshot().TotalCommands)
}

func TestSubmitCommand_BridgeFailure(t *testing.T) {
	h := newHarness(t)
	h.bridge.SubmitResult = control.Result{"error": "no route"}

	ack, err := h.client.SubmitCommand(context.Background(), &pulse.TaskCommand{CommandType: "report"})
	require.NoError(t, err)
	assert.False(t, ack.Success)
	assert.Equal(t, "Command failed: no route", ack.Message)
}

func TestSubmitCommand_PushesOnceToConnectedTarget(t *testing.T) {
	h := newHarness(t)
	h.bridge.SubmitResult = control.Result{"command_id": "cmd-5", "target_agent": "A2"}
	a2 := register(t, h.client, "A2")

	req := &pulse.TaskCommand{CommandType: "scan", Origin: "ops", TargetAgent: "A2", Priority: 1}
	ack, err := h.client.SubmitCommand(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "A2", ack.TargetAgent)

	task := a2.next()
	assert.Equal(t, pulse.DirectiveTypeExecuteTask, task.GetDirectiveType())
	assert.Equal(t, "cmd-5", task.GetCommand().GetCommandID())
	assert.Equal(t, "ops", task.GetCommand().GetOrigin())
	assert.Equal(t, int32(1), task.GetCommand().GetPriority())
	assert.Equal(t, "A2", task.GetRouting().GetTargetAgent())

	cmds := h.bridge.Commands()
	require.Len(t, cmds, 1)
	require.NotNil(t, cmds[0].TargetAgent)
	assert.Equal(t, "A2", *cmds[0].TargetAgent)

	// Same command id again: already delivered.
	_, err = h.client.SubmitCommand(context.Background(), req)
	require.NoError(t, err)
	a2.expectNone(100 * time.Millisecond)
}

func TestGetSystemStatus_FallsBackToLocalCounts(t *testing.T) {
	h := newHarness(t)
	register(t, h.client, "A1")
	register(t, h.client, "A2")

	snap, err := h.client.GetSystemStatus(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), snap.OnlineAgents)
	assert.Equal(t, int32(2), snap.TotalAgents)
	assert.Zero(t, snap.QueuedCommands)
	assert.Empty(t, snap.Agents)
	assert.NotNil(t, snap.Timestamp)
}

func TestGetSystemStatus_UsesDashboard(t *testing.T) {
	h := newHarness(t)
	online := 1
	h.bridge.SetDashboard(&control.Dashboard{
		OnlineCount:     &online,
		QueuedCommands:  4,
		RunningCommands: 2,
		Agents: []control.AgentRecord{
			{Name: "A1", DisplayName: "Alpha", Status: "busy", AgentType: "planet", Capabilities: []string{"scan"}},
			{Name: "A2", DisplayName: "A2", Status: "online", AgentType: "service"},
			{Name: "A3", DisplayName: "A3", Status: "offline", AgentType: "swarm"},
		},
	})

	snap, err := h.client.GetSystemStatus(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), snap.OnlineAgents)
	assert.Equal(t, int32(3), snap.TotalAgents)
	assert.Equal(t, int32(4), snap.QueuedCommands)
	assert.Equal(t, int32(2), snap.RunningCommands)
	require.Len(t, snap.Agents, 3)
	assert.Equal(t, "Alpha", snap.Agents[0].DisplayName)
	assert.Equal(t, pulse.AgentStatusBusy, snap.Agents[0].Status)
	assert.Equal(t, pulse.AgentTypePlanet, snap.Agents[0].AgentType)
	assert.Equal(t, pulse.AgentStatusIdle, snap.Agents[1].Status)
	assert.Equal(t, pulse.AgentTypeService, snap.Agents[1].AgentType)
	assert.Equal(t, pulse.AgentStatusOffline, snap.Agents[2].Status)
	assert.Equal(t, pulse.AgentTypeService, snap.Agents[2].AgentType)
}

func TestHealthService(t *testing.T) {
	h := newHarness(t)

	resp, err := healthpb.NewHealthClient(h.cc).Check(context.Background(), &healthpb.HealthCheckRequest{
		Service: pulse.NexusPulseService_ServiceName,
	})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestReflectionListsServices(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	stream, err := reflectionpb.NewServerReflectionClient(h.cc).ServerReflectionInfo(ctx)
	require.NoError(t, err)
	require.NoError(t, stream.Send(&reflectionpb.ServerReflectionRequest{
		MessageRequest: &reflectionpb.ServerReflectionRequest_ListServices{ListServices: "*"},
	}))
	resp, err := stream.Recv()
	require.NoError(t, err)

	var names []string
	for _, svc := range resp.GetListServicesResponse().GetService() {
		names = append(names, svc.GetName())
	}
	assert.Contains(t, names, pulse.NexusPulseService_ServiceName)
	assert.Contains(t, names, healthpb.Health_ServiceDesc.ServiceName)
}
