// ABOUTME: NexusPulseService gRPC implementation: the Pulse stream and the three unary RPCs
// ABOUTME: Each Pulse stream runs a sequential reader that dispatches pulses and a sender that drains the agent queue

package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/2389/meta-orchestrator/internal/agent"
	"github.com/2389/meta-orchestrator/internal/control"
	"github.com/2389/meta-orchestrator/proto/pulse"
)

// Defaults applied to unary SubmitCommand requests.
const (
	defaultCommandOrigin = "grpc_client"
	autoRoutedTarget     = "auto-routed"
)

// pulseServer implements the NexusPulseService gRPC service.
type pulseServer struct {
	pulse.UnimplementedNexusPulseServiceServer
	gateway *Gateway
	logger  *slog.Logger
}

// newPulseServer creates a new NexusPulseService instance.
func newPulseServer(gw *Gateway, logger *slog.Logger) *pulseServer {
	return &pulseServer{
		gateway: gw,
		logger:  logger,
	}
}

// Pulse handles the bidirectional stream with one agent.
// Protocol flow:
// 1. Agent sends any pulse carrying its agent_id
// 2. Server queues a welcome Ack with a system snapshot, then handles that pulse
// 3. Agent keeps sending pulses; each is handled before the next is read
// 4. Server writes queued directives in order, numbering them from 1
func (s *pulseServer) Pulse(stream pulse.NexusPulseService_PulseServer) error {
	first, err := stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
			return nil
		}
		return status.Errorf(codes.Internal, "receiving first pulse: %v", err)
	}

	agentID := first.GetAgentID()
	if agentID == "" {
		s.logger.Warn("rejecting pulse stream without agent_id")
		return status.Error(codes.InvalidArgument, "first pulse must contain agent_id")
	}

	gw := s.gateway
	conn := agent.NewConn(agentID, gw.config.Agents.QueueCapacity)
	if replaced := gw.registry.Register(conn); replaced != nil {
		replaced.Close()
		gw.bridge.PostEvent(stream.Context(), control.Event{
			AgentName: agentID,
			EventType: "warning",
			Severity:  control.SeverityWarning,
			Title:     fmt.Sprintf("Agent %s opened a new Pulse stream; previous stream closed", agentID),
		})
	}

	ctx, cancel := context.WithCancel(stream.Context())
	senderDone := make(chan struct{})
	go func() {
		defer close(senderDone)
		s.sendDirectives(ctx, stream, conn)
	}()

	defer func() {
		cancel()
		<-senderDone
		s.teardown(context.WithoutCancel(stream.Context()), conn)
	}()

	welcome := agent.NewDirective(pulse.DirectiveTypeAck,
		fmt.Sprintf("Welcome to NEXUS PRIME, %s. Pulse stream active.", agentID))
	welcome.SystemState = buildSnapshot(ctx, gw.bridge, gw.registry)
	if err := conn.Enqueue(welcome); err != nil {
		s.logger.Warn("welcome ack dropped", "agent_id", agentID, "error", err)
	}

	conn.Touch(time.Now())
	gw.router.Dispatch(ctx, conn, first)

	pulses := make(chan *pulse.AgentPulse)
	recvErr := make(chan error, 1)
	go func() {
		for {
			p, err := stream.Recv()
			if err != nil {
				recvErr <- err
				return
			}
			select {
			case pulses <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("pulse stream cancelled", "agent_id", agentID)
			return nil

		case <-conn.Done():
			s.logger.Info("pulse stream superseded", "agent_id", agentID)
			return nil

		case <-gw.shutdown:
			s.logger.Info("closing pulse stream for shutdown", "agent_id", agentID)
			return nil

		case err := <-recvErr:
			if errors.Is(err, io.EOF) {
				s.logger.Info("agent closed pulse stream", "agent_id", agentID)
				return nil
			}
			if status.Code(err) == codes.Canceled {
				s.logger.Info("pulse stream cancelled", "agent_id", agentID)
				return nil
			}
			s.logger.Error("receiving pulse", "agent_id", agentID, "error", err)
			return status.Errorf(codes.Internal, "receiving pulse: %v", err)

		case p := <-pulses:
			conn.Touch(time.Now())
			if !gw.registry.Holds(conn) && gw.registry.Readmit(conn) {
				s.logger.Info("stale agent resumed pulsing, readmitted", "agent_id", agentID)
			}
			gw.router.Dispatch(ctx, conn, p)
		}
	}
}

// sendDirectives drains conn's queue onto the stream until ctx ends, the
// connection closes or a write fails. Sequence numbers are stamped here so
// they follow write order.
func (s *pulseServer) sendDirectives(ctx context.Context, stream pulse.NexusPulseService_PulseServer, conn *agent.Conn) {
	for {
		d, err := conn.Next(ctx)
		if err != nil {
			return
		}
		d.SequenceNumber = conn.NextSeq()
		if err := stream.Send(d); err != nil {
			s.logger.Warn("directive sender ended", "agent_id", conn.ID, "error", err)
			return
		}
		s.gateway.stats.Directive(d.GetDirectiveType().String())
	}
}

// teardown removes conn and reports the disconnect once. A connection that
// was already reaped or superseded produces no second event.
func (s *pulseServer) teardown(ctx context.Context, conn *agent.Conn) {
	defer conn.Close()

	gw := s.gateway
	if !gw.registry.Unregister(conn) {
		return
	}
	gw.bridge.PostEvent(ctx, control.Event{
		AgentName: conn.ID,
		EventType: "info",
		Severity:  control.SeverityMedium,
		Title:     fmt.Sprintf("Agent %s disconnected from gRPC Pulse", conn.ID),
	})
}

// RegisterAgent registers an agent with the control plane without a stream.
func (s *pulseServer) RegisterAgent(ctx context.Context, req *pulse.AgentRegistration) (*pulse.RegistrationAck, error) {
	gw := s.gateway
	res := gw.bridge.RegisterAgent(ctx, control.Registration{
		Name:         req.Name,
		DisplayName:  req.DisplayName,
		AgentType:    agent.AgentTypeName(req.AgentType),
		Capabilities: req.Capabilities,
		Endpoint:     req.Endpoint,
	})
	gw.stats.Registration()

	if err := res.Err(); err != nil {
		return &pulse.RegistrationAck{
			Success: false,
			AgentID: req.Name,
			Message: "Registration failed: " + res.String("error"),
		}, nil
	}

	s.logger.Info("agent registered (unary)", "agent", req.Name)
	return &pulse.RegistrationAck{
		Success:      true,
		AgentID:      req.Name,
		Message:      fmt.Sprintf("Agent %s registered successfully", req.Name),
		RegisteredAt: timestamppb.Now(),
		SystemState:  buildSnapshot(ctx, gw.bridge, gw.registry),
	}, nil
}

// SubmitCommand hands a command to the control plane and, when the routed
// target is connected here, pushes it straight onto that agent's stream.
// The push is best effort; the stream bus remains the durable path.
func (s *pulseServer) SubmitCommand(ctx context.Context, req *pulse.TaskCommand) (*pulse.CommandAck, error) {
	gw := s.gateway

	origin := req.GetOrigin()
	if origin == "" {
		origin = defaultCommandOrigin
	}
	creq := control.CommandRequest{
		CommandType: req.GetCommandType(),
		Origin:      origin,
		Payload:     req.GetPayload(),
		Priority:    int(agent.EffectivePriority(req.GetPriority())),
	}
	if target := req.GetTargetAgent(); target != "" {
		creq.TargetAgent = &target
	}

	res := gw.bridge.SubmitCommand(ctx, creq)
	gw.stats.Command()

	if err := res.Err(); err != nil {
		return &pulse.CommandAck{
			Success: false,
			Message: "Command failed: " + res.String("error"),
		}, nil
	}

	commandID := res.String("command_id")
	target := res.String("target_agent")
	if target == "" {
		target = autoRoutedTarget
	}

	if gw.pusher.Connected(target) {
		err := gw.pusher.Push(agent.Task{
			CommandID:   commandID,
			CommandType: creq.CommandType,
			Origin:      origin,
			Target:      target,
			Payload:     creq.Payload,
			Priority:    int32(creq.Priority),
			Message:     fmt.Sprintf("Command %s from %s", creq.CommandType, origin),
		})
		switch {
		case err == nil:
			s.logger.Info("command pushed directly to agent", "command_id", commandID, "target", target)
		case errors.Is(err, agent.ErrDuplicateCommand), errors.Is(err, agent.ErrAgentNotFound):
		default:
			s.logger.Warn("direct push failed, relying on stream bus", "command_id", commandID, "target", target, "error", err)
		}
	}

	return &pulse.CommandAck{
		Success:     true,
		CommandID:   commandID,
		TargetAgent: target,
		Status:      pulse.TaskStatusQueued,
		Message:     "Command queued successfully",
	}, nil
}

// GetSystemStatus returns the current cluster snapshot.
func (s *pulseServer) GetSystemStatus(ctx context.Context, _ *emptypb.Empty) (*pulse.SystemSnapshot, error) {
	return buildSnapshot(ctx, s.gateway.bridge, s.gateway.registry), nil
}
