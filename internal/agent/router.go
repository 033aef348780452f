// ABOUTME: Classifies inbound pulses by type and runs the matching handler.
// ABOUTME: Handlers relay to the control plane and enqueue acks on the sending agent's queue.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/meta-orchestrator/internal/control"
	"github.com/2389/meta-orchestrator/internal/stats"
	"github.com/2389/meta-orchestrator/proto/pulse"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Bridge control.Bridge
	Pusher *Pusher
	Stats  *stats.Stats
	// HeartbeatAck enables an Ack for every Heartbeat pulse.
	HeartbeatAck bool
	Logger       *slog.Logger
}

// Router dispatches pulses. Dispatch is called sequentially per stream, so a
// slow bridge only delays the agent whose pulse is being handled.
type Router struct {
	bridge       control.Bridge
	pusher       *Pusher
	stats        *stats.Stats
	heartbeatAck bool
	logger       *slog.Logger
}

// NewRouter creates a Router.
func NewRouter(cfg RouterConfig) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		bridge:       cfg.Bridge,
		pusher:       cfg.Pusher,
		stats:        cfg.Stats,
		heartbeatAck: cfg.HeartbeatAck,
		logger:       logger,
	}
}

// Dispatch handles one pulse from conn. Errors never escape; they are logged.
func (r *Router) Dispatch(ctx context.Context, conn *Conn, p *pulse.AgentPulse) {
	r.stats.Pulse(p.GetPulseType().String())

	switch p.GetPulseType() {
	case pulse.PulseTypeHeartbeat:
		r.handleHeartbeat(ctx, conn, p)
	case pulse.PulseTypeRegistration:
		r.handleRegistration(ctx, conn, p)
	case pulse.PulseTypeTaskResult:
		r.handleTaskResult(ctx, conn, p)
	case pulse.PulseTypeError:
		r.handleError(ctx, conn, p)
	case pulse.PulseTypeIntent:
		r.handleIntent(ctx, conn, p)
	case pulse.PulseTypeStateUpdate:
		r.handleStateUpdate(ctx, conn, p)
	default:
		r.logger.Warn("ignoring pulse of unknown type",
			"agent_id", conn.ID,
			"pulse_type", p.GetPulseType().String(),
			"sequence", p.GetSequenceNumber(),
		)
	}
}

func (r *Router) handleHeartbeat(ctx context.Context, conn *Conn, p *pulse.AgentPulse) {
	state := p.GetState()
	metrics := map[string]any{}
	if m := state.GetMetrics(); m != nil {
		metrics = map[string]any{
			"cpu":          m.GetCPUUsagePercent(),
			"memory":       m.GetMemoryUsagePercent(),
			"latency_ms":   m.GetRequestLatencyMs(),
			"active_tasks": m.GetActiveTasks(),
		}
	}
	r.bridge.Heartbeat(ctx, conn.ID, state.GetCurrentTask(), metrics)

	if r.heartbeatAck {
		r.reply(conn, AckFor(p, fmt.Sprintf("Heartbeat #%d received", conn.PulseCount())))
	}
}

func (r *Router) handleRegistration(ctx context.Context, conn *Conn, p *pulse.AgentPulse) {
	displayName := p.DisplayName
	if displayName == "" {
		displayName = conn.ID
	}
	res := r.bridge.RegisterAgent(ctx, control.Registration{
		Name:         conn.ID,
		DisplayName:  displayName,
		AgentType:    AgentTypeName(p.AgentType),
		Capabilities: p.Capabilities,
		Endpoint:     p.Endpoint,
	})
	r.stats.Registration()
	if err := res.Err(); err != nil {
		r.logger.Warn("pulse registration not recorded upstream", "agent_id", conn.ID, "error", err)
	}

	r.reply(conn, AckFor(p, fmt.Sprintf("Agent %s registered via Pulse stream", conn.ID)))
}

func (r *Router) handleTaskResult(ctx context.Context, conn *Conn, p *pulse.AgentPulse) {
	result := p.GetResult()
	if result.GetCommandID() == "" {
		r.logger.Warn("task result without command_id", "agent_id", conn.ID)
		return
	}

	status := CommandStatusName(result.GetStatus())
	upd := control.CommandUpdate{
		CommandID: result.GetCommandID(),
		Status:    status,
		Result:    result.GetOutput(),
	}
	if msg := result.GetErrorMessage(); msg != "" {
		upd.ErrorMsg = &msg
	}
	r.bridge.UpdateCommand(ctx, upd)

	r.logger.Info("task result",
		"agent_id", conn.ID,
		"command_id", result.GetCommandID(),
		"status", status,
		"execution_ms", result.ExecutionTimeMs,
	)
}

func (r *Router) handleError(ctx context.Context, conn *Conn, p *pulse.AgentPulse) {
	r.bridge.PostEvent(ctx, control.Event{
		AgentName: conn.ID,
		EventType: "error",
		Severity:  control.SeverityHigh,
		Title:     fmt.Sprintf("Error from %s: %s", conn.ID, p.ErrorCode),
		Body: map[string]any{
			"code":        p.ErrorCode,
			"message":     p.ErrorMessage,
			"stack_trace": p.ErrorStackTrace,
		},
	})
	r.logger.Error("agent reported error",
		"agent_id", conn.ID,
		"code", p.ErrorCode,
		"message", p.ErrorMessage,
	)
}

func (r *Router) handleIntent(ctx context.Context, conn *Conn, p *pulse.AgentPulse) {
	intent := p.GetIntent()
	if intent == nil {
		r.logger.Warn("intent pulse without intent", "agent_id", conn.ID)
		return
	}

	req := control.CommandRequest{
		CommandType: intent.GetRequestedAction(),
		Origin:      conn.ID,
		Payload:     intent.GetPayload(),
		Priority:    int(EffectivePriority(intent.GetPriority())),
	}
	if target := intent.GetTargetAgent(); target != "" {
		req.TargetAgent = &target
	}
	res := r.bridge.SubmitCommand(ctx, req)
	r.stats.Command()

	commandID := res.String("command_id")
	label := commandID
	if label == "" {
		label = "unknown"
	}
	r.reply(conn, AckFor(p, "Intent routed: "+label))

	target := res.String("target_agent")
	if res.Err() != nil || commandID == "" || target == "" || r.pusher == nil {
		return
	}
	err := r.pusher.Push(Task{
		CommandID:   commandID,
		CommandType: req.CommandType,
		Origin:      conn.ID,
		Target:      target,
		Payload:     req.Payload,
		Priority:    int32(req.Priority),
		Message:     fmt.Sprintf("Intent from %s: %s", conn.ID, req.CommandType),
	})
	if err != nil && !errors.Is(err, ErrAgentNotFound) && !errors.Is(err, ErrDuplicateCommand) {
		r.logger.Warn("intent push failed", "agent_id", conn.ID, "command_id", commandID, "error", err)
	}
}

func (r *Router) handleStateUpdate(ctx context.Context, conn *Conn, p *pulse.AgentPulse) {
	state := p.GetState()
	if state == nil {
		return
	}
	conn.SetStatus(state.GetStatus())

	metrics := map[string]any{}
	if m := state.GetMetrics(); m != nil {
		metrics = map[string]any{
			"cpu":    m.GetCPUUsagePercent(),
			"memory": m.GetMemoryUsagePercent(),
		}
	}
	r.bridge.Heartbeat(ctx, conn.ID, state.GetCurrentTask(), metrics)
}

// reply enqueues an ack. A full queue drops it with a warning.
func (r *Router) reply(conn *Conn, d *pulse.OrchestratorDirective) {
	if err := conn.Enqueue(d); err != nil {
		r.logger.Warn("ack dropped",
			"agent_id", conn.ID,
			"ack_for", d.AckForPulseID,
			"error", err,
		)
	}
}
