// ABOUTME: In-memory Bridge implementation for tests.
// ABOUTME: Records every call and returns configurable results.

package control

import (
	"context"
	"errors"
	"sync"
)

// HeartbeatCall records one Heartbeat invocation.
type HeartbeatCall struct {
	AgentName   string
	CurrentTask string
	Metrics     map[string]any
}

// MockBridge is a Bridge for tests. Set the exported result fields before use;
// they are read under the mock's lock.
type MockBridge struct {
	mu sync.Mutex

	HealthResult   Result
	RegisterResult Result
	SubmitResult   Result
	// SubmitFunc overrides SubmitResult when set.
	SubmitFunc func(req CommandRequest) Result
	// HeartbeatFunc, when set, runs on every Heartbeat outside the lock.
	HeartbeatFunc func(agentName string)
	DashboardVal  *Dashboard
	DashboardErr  error
	AgentsVal     []AgentRecord

	registrations []Registration
	heartbeats    []HeartbeatCall
	commands      []CommandRequest
	updates       []CommandUpdate
	events        []Event
	closed        bool
}

// NewMockBridge returns a MockBridge whose dashboard is unreachable until set.
func NewMockBridge() *MockBridge {
	return &MockBridge{
		HealthResult: Result{"status": "ok"},
		DashboardErr: errors.New("dashboard not configured"),
	}
}

func (m *MockBridge) Health(ctx context.Context) Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.HealthResult
}

func (m *MockBridge) RegisterAgent(ctx context.Context, reg Registration) Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registrations = append(m.registrations, reg)
	if m.RegisterResult != nil {
		return m.RegisterResult
	}
	return Result{"name": reg.Name, "status": "online"}
}

func (m *MockBridge) Heartbeat(ctx context.Context, agentName, currentTask string, metrics map[string]any) Result {
	m.mu.Lock()
	m.heartbeats = append(m.heartbeats, HeartbeatCall{AgentName: agentName, CurrentTask: currentTask, Metrics: metrics})
	fn := m.HeartbeatFunc
	m.mu.Unlock()
	if fn != nil {
		fn(agentName)
	}
	return Result{"ok": true}
}

func (m *MockBridge) SubmitCommand(ctx context.Context, req CommandRequest) Result {
	m.mu.Lock()
	m.commands = append(m.commands, req)
	fn, res := m.SubmitFunc, m.SubmitResult
	m.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	if res != nil {
		return res
	}
	return Result{"command_id": "cmd-mock"}
}

func (m *MockBridge) UpdateCommand(ctx context.Context, upd CommandUpdate) Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, upd)
	return Result{"command_id": upd.CommandID, "status": upd.Status}
}

func (m *MockBridge) PostEvent(ctx context.Context, ev Event) Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return Result{"ok": true}
}

func (m *MockBridge) Dashboard(ctx context.Context) (*Dashboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DashboardVal != nil {
		return m.DashboardVal, nil
	}
	return nil, m.DashboardErr
}

func (m *MockBridge) Agents(ctx context.Context) ([]AgentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.AgentsVal, nil
}

func (m *MockBridge) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SetDashboard makes Dashboard succeed with d.
func (m *MockBridge) SetDashboard(d *Dashboard) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DashboardVal = d
}

// SetSubmitFunc installs a SubmitCommand responder.
func (m *MockBridge) SetSubmitFunc(fn func(req CommandRequest) Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SubmitFunc = fn
}

// SetHeartbeatFunc installs a hook observed by every Heartbeat call.
func (m *MockBridge) SetHeartbeatFunc(fn func(agentName string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HeartbeatFunc = fn
}

func (m *MockBridge) Registrations() []Registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Registration(nil), m.registrations...)
}

func (m *MockBridge) Heartbeats() []HeartbeatCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]HeartbeatCall(nil), m.heartbeats...)
}

func (m *MockBridge) Commands() []CommandRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CommandRequest(nil), m.commands...)
}

func (m *MockBridge) Updates() []CommandUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CommandUpdate(nil), m.updates...)
}

func (m *MockBridge) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// EventsOfType filters recorded events by EventType.
func (m *MockBridge) EventsOfType(eventType string) []Event {
	var out []Event
	for _, ev := range m.Events() {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// Closed reports whether Close was called.
func (m *MockBridge) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var _ Bridge = (*MockBridge)(nil)
var _ Bridge = (*Client)(nil)
