// ABOUTME: Constructors for outbound directives and the enum/string mappings shared with the control plane.
// ABOUTME: Sequence numbers are never set here; the sender stamps them at dequeue.

package agent

import (
	"strconv"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/2389/meta-orchestrator/proto/pulse"
)

// DefaultPriority replaces a zero command priority.
const DefaultPriority = 5

// NewDirective creates a directive with a fresh id and timestamp.
func NewDirective(t pulse.DirectiveType, message string) *pulse.OrchestratorDirective {
	return &pulse.OrchestratorDirective{
		DirectiveID:   uuid.NewString(),
		DirectiveType: t,
		Timestamp:     timestamppb.Now(),
		Message:       message,
	}
}

// AckFor creates an Ack referencing p by sequence number and correlation id.
func AckFor(p *pulse.AgentPulse, message string) *pulse.OrchestratorDirective {
	d := NewDirective(pulse.DirectiveTypeAck, message)
	d.AckForPulseID = strconv.FormatUint(p.GetSequenceNumber(), 10)
	d.CorrelationID = p.GetCorrelationID()
	return d
}

// EffectivePriority applies DefaultPriority to an unset priority.
func EffectivePriority(p int32) int32 {
	if p == 0 {
		return DefaultPriority
	}
	return p
}

// AgentTypeName is the control plane's name for t. Unknown types are "planet".
func AgentTypeName(t pulse.AgentType) string {
	switch t {
	case pulse.AgentTypeService:
		return "service"
	case pulse.AgentTypeHuman:
		return "human"
	case pulse.AgentTypeSwarm:
		return "swarm"
	default:
		return "planet"
	}
}

// ParseAgentType maps a control plane agent_type. Anything but "planet" is a service.
func ParseAgentType(s string) pulse.AgentType {
	if s == "planet" {
		return pulse.AgentTypePlanet
	}
	return pulse.AgentTypeService
}

// ParseAgentStatus maps a control plane status string.
func ParseAgentStatus(s string) pulse.AgentStatus {
	switch s {
	case "online", "idle":
		return pulse.AgentStatusIdle
	case "busy":
		return pulse.AgentStatusBusy
	case "error":
		return pulse.AgentStatusError
	case "offline":
		return pulse.AgentStatusOffline
	default:
		return pulse.AgentStatusUnspecified
	}
}

// CommandStatusName maps a reported TaskStatus to the control plane's
// command status vocabulary.
func CommandStatusName(s pulse.TaskStatus) string {
	switch s {
	case pulse.TaskStatusSuccess:
		return "done"
	case pulse.TaskStatusFailed:
		return "failed"
	case pulse.TaskStatusPartial, pulse.TaskStatusRunning:
		return "running"
	default:
		return "done"
	}
}
