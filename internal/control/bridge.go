// ABOUTME: Bridge contract to the downstream REST control plane and its request/result types.
// ABOUTME: Results are error-shaped maps so a flaky endpoint never aborts a caller.

package control

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable is wrapped by Result.Err when the control plane could not be reached
// or answered with a failure status.
var ErrUnavailable = errors.New("control plane unavailable")

// Bridge is the orchestrator's view of the control plane.
type Bridge interface {
	Health(ctx context.Context) Result
	RegisterAgent(ctx context.Context, reg Registration) Result
	Heartbeat(ctx context.Context, agentName, currentTask string, metrics map[string]any) Result
	SubmitCommand(ctx context.Context, req CommandRequest) Result
	UpdateCommand(ctx context.Context, upd CommandUpdate) Result
	PostEvent(ctx context.Context, ev Event) Result
	Dashboard(ctx context.Context) (*Dashboard, error)
	Agents(ctx context.Context) ([]AgentRecord, error)
	Close() error
}

// Result is a decoded JSON response body. A failed call yields a Result with
// a single "error" key instead of a Go error.
type Result map[string]any

// errorResult builds the shaped failure value returned by every bridge method.
func errorResult(err error) Result {
	return Result{"error": err.Error()}
}

// Err reports the failure recorded in the result, if any.
func (r Result) Err() error {
	v, ok := r["error"]
	if !ok || v == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, v)
}

// String returns the value at key when it is a string, or "".
func (r Result) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Registration is the body of POST /agent/register.
type Registration struct {
	Name         string   `json:"name"`
	DisplayName  string   `json:"display_name"`
	AgentType    string   `json:"agent_type"`
	Capabilities []string `json:"capabilities"`
	Endpoint     string   `json:"endpoint"`
}

// CommandRequest is the body of POST /command. A nil TargetAgent lets the
// control plane pick the agent.
type CommandRequest struct {
	CommandType string         `json:"command_type"`
	Origin      string         `json:"origin"`
	TargetAgent *string        `json:"target_agent"`
	Payload     map[string]any `json:"payload"`
	Priority    int            `json:"priority"`
}

// CommandUpdate is the body of PATCH /command/{id}. Only non-empty fields are sent.
type CommandUpdate struct {
	CommandID string
	Status    string
	Result    map[string]any
	ErrorMsg  *string
}

func (u CommandUpdate) body() map[string]any {
	body := map[string]any{"status": u.Status}
	if len(u.Result) > 0 {
		body["result"] = u.Result
	}
	if u.ErrorMsg != nil && *u.ErrorMsg != "" {
		body["error_msg"] = *u.ErrorMsg
	}
	return body
}

// Event is the body of POST /event.
type Event struct {
	AgentName string         `json:"agent_name"`
	EventType string         `json:"event_type"`
	Severity  string         `json:"severity"`
	Title     string         `json:"title,omitempty"`
	Body      map[string]any `json:"body"`
	CommandID string         `json:"command_id,omitempty"`
}

// Event severities used by the orchestrator.
const (
	SeverityInfo    = "info"
	SeverityMedium  = "medium"
	SeverityHigh    = "high"
	SeverityWarning = "warning"
)

// Dashboard is the parsed GET /dashboard payload.
type Dashboard struct {
	// OnlineCount is nil when the control plane omitted stats.online_count.
	OnlineCount     *int
	QueuedCommands  int
	RunningCommands int
	Agents          []AgentRecord
}

// AgentRecord is one agent as the control plane knows it.
type AgentRecord struct {
	Name         string
	DisplayName  string
	Status       string
	AgentType    string
	LastSeen     time.Time
	CurrentTask  string
	Capabilities []string
}
