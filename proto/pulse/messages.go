// ABOUTME: NexusPulse message types exchanged over the Pulse stream and unary RPCs.
// ABOUTME: Getters are nil-safe so handlers can chain them without guards.

package pulse

import (
	"google.golang.org/protobuf/types/known/timestamppb"
)

// AgentMetrics is the resource snapshot an agent attaches to its state.
type AgentMetrics struct {
	CPUUsagePercent    float64 `json:"cpu_usage_percent,omitempty"`
	MemoryUsagePercent float64 `json:"memory_usage_percent,omitempty"`
	RequestLatencyMs   float64 `json:"request_latency_ms,omitempty"`
	ActiveTasks        int32   `json:"active_tasks,omitempty"`
	CompletedTasks     int32   `json:"completed_tasks,omitempty"`
	FailedTasks        int32   `json:"failed_tasks,omitempty"`
	UptimeSeconds      float64 `json:"uptime_seconds,omitempty"`
}

func (m *AgentMetrics) GetCPUUsagePercent() float64 {
	if m == nil {
		return 0
	}
	return m.CPUUsagePercent
}

func (m *AgentMetrics) GetMemoryUsagePercent() float64 {
	if m == nil {
		return 0
	}
	return m.MemoryUsagePercent
}

func (m *AgentMetrics) GetRequestLatencyMs() float64 {
	if m == nil {
		return 0
	}
	return m.RequestLatencyMs
}

func (m *AgentMetrics) GetActiveTasks() int32 {
	if m == nil {
		return 0
	}
	return m.ActiveTasks
}

// AgentState is carried by Heartbeat and StateUpdate pulses.
type AgentState struct {
	Status      AgentStatus   `json:"status,omitempty"`
	CurrentTask string        `json:"current_task,omitempty"`
	Metrics     *AgentMetrics `json:"metrics,omitempty"`
}

func (s *AgentState) GetStatus() AgentStatus {
	if s == nil {
		return AgentStatusUnspecified
	}
	return s.Status
}

func (s *AgentState) GetCurrentTask() string {
	if s == nil {
		return ""
	}
	return s.CurrentTask
}

func (s *AgentState) GetMetrics() *AgentMetrics {
	if s == nil {
		return nil
	}
	return s.Metrics
}

// TaskResult reports the outcome of a previously dispatched command.
type TaskResult struct {
	CommandID       string         `json:"command_id,omitempty"`
	Status          TaskStatus     `json:"status,omitempty"`
	Output          map[string]any `json:"output,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	ExecutionTimeMs int64          `json:"execution_time_ms,omitempty"`
}

func (r *TaskResult) GetCommandID() string {
	if r == nil {
		return ""
	}
	return r.CommandID
}

func (r *TaskResult) GetStatus() TaskStatus {
	if r == nil {
		return TaskStatusUnspecified
	}
	return r.Status
}

func (r *TaskResult) GetOutput() map[string]any {
	if r == nil {
		return nil
	}
	return r.Output
}

func (r *TaskResult) GetErrorMessage() string {
	if r == nil {
		return ""
	}
	return r.ErrorMessage
}

// AgentIntent asks the orchestrator to route work to another agent.
type AgentIntent struct {
	RequestedAction string         `json:"requested_action,omitempty"`
	TargetAgent     string         `json:"target_agent,omitempty"`
	Payload         map[string]any `json:"payload,omitempty"`
	Priority        int32          `json:"priority,omitempty"`
}

func (i *AgentIntent) GetRequestedAction() string {
	if i == nil {
		return ""
	}
	return i.RequestedAction
}

func (i *AgentIntent) GetTargetAgent() string {
	if i == nil {
		return ""
	}
	return i.TargetAgent
}

func (i *AgentIntent) GetPayload() map[string]any {
	if i == nil {
		return nil
	}
	return i.Payload
}

func (i *AgentIntent) GetPriority() int32 {
	if i == nil {
		return 0
	}
	return i.Priority
}

// AgentPulse is one inbound message on the Pulse stream.
type AgentPulse struct {
	AgentID        string                 `json:"agent_id,omitempty"`
	PulseType      PulseType              `json:"pulse_type,omitempty"`
	SequenceNumber uint64                 `json:"sequence_number,omitempty"`
	CorrelationID  string                 `json:"correlation_id,omitempty"`
	Timestamp      *timestamppb.Timestamp `json:"timestamp,omitempty"`

	// Heartbeat, StateUpdate
	State *AgentState `json:"state,omitempty"`
	// TaskResult
	Result *TaskResult `json:"task_result,omitempty"`
	// Intent
	Intent *AgentIntent `json:"intent,omitempty"`

	// Error
	ErrorCode       string `json:"error_code,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	ErrorStackTrace string `json:"error_stack_trace,omitempty"`

	// Registration
	DisplayName  string    `json:"display_name,omitempty"`
	AgentType    AgentType `json:"agent_type,omitempty"`
	Capabilities []string  `json:"capabilities,omitempty"`
	Endpoint     string    `json:"endpoint,omitempty"`
}

func (p *AgentPulse) GetAgentID() string {
	if p == nil {
		return ""
	}
	return p.AgentID
}

func (p *AgentPulse) GetPulseType() PulseType {
	if p == nil {
		return PulseTypeUnspecified
	}
	return p.PulseType
}

func (p *AgentPulse) GetSequenceNumber() uint64 {
	if p == nil {
		return 0
	}
	return p.SequenceNumber
}

func (p *AgentPulse) GetCorrelationID() string {
	if p == nil {
		return ""
	}
	return p.CorrelationID
}

func (p *AgentPulse) GetState() *AgentState {
	if p == nil {
		return nil
	}
	return p.State
}

func (p *AgentPulse) GetResult() *TaskResult {
	if p == nil {
		return nil
	}
	return p.Result
}

func (p *AgentPulse) GetIntent() *AgentIntent {
	if p == nil {
		return nil
	}
	return p.Intent
}

// TaskCommand is a unit of work, either submitted by a client or pushed to an agent.
type TaskCommand struct {
	CommandID   string         `json:"command_id,omitempty"`
	CommandType string         `json:"command_type,omitempty"`
	Origin      string         `json:"origin,omitempty"`
	TargetAgent string         `json:"target_agent,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	Priority    int32          `json:"priority,omitempty"`
}

func (c *TaskCommand) GetCommandID() string {
	if c == nil {
		return ""
	}
	return c.CommandID
}

func (c *TaskCommand) GetCommandType() string {
	if c == nil {
		return ""
	}
	return c.CommandType
}

func (c *TaskCommand) GetOrigin() string {
	if c == nil {
		return ""
	}
	return c.Origin
}

func (c *TaskCommand) GetTargetAgent() string {
	if c == nil {
		return ""
	}
	return c.TargetAgent
}

func (c *TaskCommand) GetPayload() map[string]any {
	if c == nil {
		return nil
	}
	return c.Payload
}

func (c *TaskCommand) GetPriority() int32 {
	if c == nil {
		return 0
	}
	return c.Priority
}

// RoutingInfo records how a directive reached its agent.
type RoutingInfo struct {
	TargetAgent string `json:"target_agent,omitempty"`
	SourceAgent string `json:"source_agent,omitempty"`
}

func (r *RoutingInfo) GetTargetAgent() string {
	if r == nil {
		return ""
	}
	return r.TargetAgent
}

// OrchestratorDirective is one outbound message on the Pulse stream.
type OrchestratorDirective struct {
	DirectiveID    string                 `json:"directive_id,omitempty"`
	DirectiveType  DirectiveType          `json:"directive_type,omitempty"`
	Timestamp      *timestamppb.Timestamp `json:"timestamp,omitempty"`
	Command        *TaskCommand           `json:"command,omitempty"`
	Routing        *RoutingInfo           `json:"routing,omitempty"`
	Config         map[string]any         `json:"config,omitempty"`
	Message        string                 `json:"message,omitempty"`
	AckForPulseID  string                 `json:"ack_for_pulse_id,omitempty"`
	CorrelationID  string                 `json:"correlation_id,omitempty"`
	SequenceNumber uint64                 `json:"sequence_number,omitempty"`
	SystemState    *SystemSnapshot        `json:"system_state,omitempty"`
}

func (d *OrchestratorDirective) GetDirectiveType() DirectiveType {
	if d == nil {
		return DirectiveTypeUnspecified
	}
	return d.DirectiveType
}

func (d *OrchestratorDirective) GetCommand() *TaskCommand {
	if d == nil {
		return nil
	}
	return d.Command
}

func (d *OrchestratorDirective) GetRouting() *RoutingInfo {
	if d == nil {
		return nil
	}
	return d.Routing
}

func (d *OrchestratorDirective) GetMessage() string {
	if d == nil {
		return ""
	}
	return d.Message
}

func (d *OrchestratorDirective) GetAckForPulseID() string {
	if d == nil {
		return ""
	}
	return d.AckForPulseID
}

func (d *OrchestratorDirective) GetSequenceNumber() uint64 {
	if d == nil {
		return 0
	}
	return d.SequenceNumber
}

func (d *OrchestratorDirective) GetSystemState() *SystemSnapshot {
	if d == nil {
		return nil
	}
	return d.SystemState
}

// AgentRegistration is the unary registration request.
type AgentRegistration struct {
	Name         string            `json:"name,omitempty"`
	DisplayName  string            `json:"display_name,omitempty"`
	AgentType    AgentType         `json:"agent_type,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Endpoint     string            `json:"endpoint,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// RegistrationAck answers AgentRegistration.
type RegistrationAck struct {
	Success      bool                   `json:"success,omitempty"`
	AgentID      string                 `json:"agent_id,omitempty"`
	Message      string                 `json:"message,omitempty"`
	RegisteredAt *timestamppb.Timestamp `json:"registered_at,omitempty"`
	SystemState  *SystemSnapshot        `json:"system_state,omitempty"`
}

// CommandAck answers SubmitCommand.
type CommandAck struct {
	Success     bool       `json:"success,omitempty"`
	CommandID   string     `json:"command_id,omitempty"`
	TargetAgent string     `json:"target_agent,omitempty"`
	Status      TaskStatus `json:"status,omitempty"`
	Message     string     `json:"message,omitempty"`
}

// AgentSummary is one agent row in a SystemSnapshot.
type AgentSummary struct {
	Name         string                 `json:"name,omitempty"`
	DisplayName  string                 `json:"display_name,omitempty"`
	Status       AgentStatus            `json:"status,omitempty"`
	AgentType    AgentType              `json:"agent_type,omitempty"`
	LastSeen     *timestamppb.Timestamp `json:"last_seen,omitempty"`
	CurrentTask  string                 `json:"current_task,omitempty"`
	Capabilities []string               `json:"capabilities,omitempty"`
}

// SystemSnapshot is a read-only view of the cluster.
type SystemSnapshot struct {
	OnlineAgents    int32                  `json:"online_agents,omitempty"`
	TotalAgents     int32                  `json:"total_agents,omitempty"`
	QueuedCommands  int32                  `json:"queued_commands,omitempty"`
	RunningCommands int32                  `json:"running_commands,omitempty"`
	Timestamp       *timestamppb.Timestamp `json:"timestamp,omitempty"`
	Agents          []*AgentSummary        `json:"agents,omitempty"`
}

func (s *SystemSnapshot) GetOnlineAgents() int32 {
	if s == nil {
		return 0
	}
	return s.OnlineAgents
}

func (s *SystemSnapshot) GetTotalAgents() int32 {
	if s == nil {
		return 0
	}
	return s.TotalAgents
}

func (s *SystemSnapshot) GetAgents() []*AgentSummary {
	if s == nil {
		return nil
	}
	return s.Agents
}
