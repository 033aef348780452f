// ABOUTME: Enumerations of the NexusPulse ABI with stable numeric values.
// ABOUTME: Zero is always the unspecified value, matching proto3 conventions.

package pulse

import "strconv"

// PulseType tags the payload carried by an AgentPulse.
type PulseType int32

const (
	PulseTypeUnspecified  PulseType = 0
	PulseTypeHeartbeat    PulseType = 1
	PulseTypeRegistration PulseType = 2
	PulseTypeTaskResult   PulseType = 3
	PulseTypeError        PulseType = 4
	PulseTypeIntent       PulseType = 5
	PulseTypeStateUpdate  PulseType = 6
)

var pulseTypeNames = map[PulseType]string{
	PulseTypeUnspecified:  "PULSE_TYPE_UNSPECIFIED",
	PulseTypeHeartbeat:    "PULSE_TYPE_HEARTBEAT",
	PulseTypeRegistration: "PULSE_TYPE_REGISTRATION",
	PulseTypeTaskResult:   "PULSE_TYPE_TASK_RESULT",
	PulseTypeError:        "PULSE_TYPE_ERROR",
	PulseTypeIntent:       "PULSE_TYPE_INTENT",
	PulseTypeStateUpdate:  "PULSE_TYPE_STATE_UPDATE",
}

func (t PulseType) String() string {
	return enumName(pulseTypeNames, t)
}

// DirectiveType tags the purpose of an OrchestratorDirective.
type DirectiveType int32

const (
	DirectiveTypeUnspecified DirectiveType = 0
	DirectiveTypeAck         DirectiveType = 1
	DirectiveTypeExecuteTask DirectiveType = 2
	DirectiveTypeReconfigure DirectiveType = 3
	DirectiveTypeShutdown    DirectiveType = 4
	DirectiveTypeBroadcast   DirectiveType = 5
)

var directiveTypeNames = map[DirectiveType]string{
	DirectiveTypeUnspecified: "DIRECTIVE_TYPE_UNSPECIFIED",
	DirectiveTypeAck:         "DIRECTIVE_TYPE_ACK",
	DirectiveTypeExecuteTask: "DIRECTIVE_TYPE_EXECUTE_TASK",
	DirectiveTypeReconfigure: "DIRECTIVE_TYPE_RECONFIGURE",
	DirectiveTypeShutdown:    "DIRECTIVE_TYPE_SHUTDOWN",
	DirectiveTypeBroadcast:   "DIRECTIVE_TYPE_BROADCAST",
}

func (t DirectiveType) String() string {
	return enumName(directiveTypeNames, t)
}

// AgentStatus is the self-reported state of an agent.
type AgentStatus int32

const (
	AgentStatusUnspecified AgentStatus = 0
	AgentStatusIdle        AgentStatus = 1
	AgentStatusBusy        AgentStatus = 2
	AgentStatusError       AgentStatus = 3
	AgentStatusOffline     AgentStatus = 4
)

var agentStatusNames = map[AgentStatus]string{
	AgentStatusUnspecified: "AGENT_STATUS_UNSPECIFIED",
	AgentStatusIdle:        "AGENT_STATUS_IDLE",
	AgentStatusBusy:        "AGENT_STATUS_BUSY",
	AgentStatusError:       "AGENT_STATUS_ERROR",
	AgentStatusOffline:     "AGENT_STATUS_OFFLINE",
}

func (s AgentStatus) String() string {
	return enumName(agentStatusNames, s)
}

// AgentType classifies an agent for the control plane.
type AgentType int32

const (
	AgentTypeUnspecified AgentType = 0
	AgentTypePlanet      AgentType = 1
	AgentTypeService     AgentType = 2
	AgentTypeHuman       AgentType = 3
	AgentTypeSwarm       AgentType = 4
)

var agentTypeNames = map[AgentType]string{
	AgentTypeUnspecified: "AGENT_TYPE_UNSPECIFIED",
	AgentTypePlanet:      "AGENT_TYPE_PLANET",
	AgentTypeService:     "AGENT_TYPE_SERVICE",
	AgentTypeHuman:       "AGENT_TYPE_HUMAN",
	AgentTypeSwarm:       "AGENT_TYPE_SWARM",
}

func (t AgentType) String() string {
	return enumName(agentTypeNames, t)
}

// TaskStatus is the lifecycle state of a command.
type TaskStatus int32

const (
	TaskStatusUnspecified TaskStatus = 0
	TaskStatusQueued      TaskStatus = 1
	TaskStatusRunning     TaskStatus = 2
	TaskStatusSuccess     TaskStatus = 3
	TaskStatusFailed      TaskStatus = 4
	TaskStatusPartial     TaskStatus = 5
)

var taskStatusNames = map[TaskStatus]string{
	TaskStatusUnspecified: "TASK_STATUS_UNSPECIFIED",
	TaskStatusQueued:      "TASK_STATUS_QUEUED",
	TaskStatusRunning:     "TASK_STATUS_RUNNING",
	TaskStatusSuccess:     "TASK_STATUS_SUCCESS",
	TaskStatusFailed:      "TASK_STATUS_FAILED",
	TaskStatusPartial:     "TASK_STATUS_PARTIAL",
}

func (s TaskStatus) String() string {
	return enumName(taskStatusNames, s)
}

func enumName[T ~int32](names map[T]string, v T) string {
	if name, ok := names[v]; ok {
		return name
	}
	return strconv.Itoa(int(v))
}
