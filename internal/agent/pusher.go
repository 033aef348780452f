// ABOUTME: Delivers ExecuteTask directives to connected agents on behalf of every command source.
// ABOUTME: A dedupe cache keeps one command from reaching the same agent stream twice.

package agent

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/meta-orchestrator/internal/dedupe"
	"github.com/2389/meta-orchestrator/proto/pulse"
)

// ErrDuplicateCommand indicates the command was already pushed to the agent.
var ErrDuplicateCommand = errors.New("command already delivered")

// Task describes one command to push.
type Task struct {
	CommandID   string
	CommandType string
	Origin      string
	Target      string
	Payload     map[string]any
	Priority    int32
	Message     string
}

// Pusher enqueues ExecuteTask directives on target agents' queues.
type Pusher struct {
	registry *Registry
	seen     *dedupe.Cache
	logger   *slog.Logger
}

// NewPusher creates a Pusher. seen may be nil to disable deduplication.
func NewPusher(registry *Registry, seen *dedupe.Cache, logger *slog.Logger) *Pusher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pusher{
		registry: registry,
		seen:     seen,
		logger:   logger,
	}
}

// Connected reports whether id has a live stream here.
func (p *Pusher) Connected(id string) bool {
	_, ok := p.registry.Get(id)
	return ok
}

// Push enqueues task on its target. It returns ErrAgentNotFound when the
// target is not connected here, ErrDuplicateCommand when already delivered,
// and a wrapped ErrQueueFull or ErrConnClosed when the enqueue failed.
func (p *Pusher) Push(task Task) error {
	conn, ok := p.registry.Get(task.Target)
	if !ok {
		return ErrAgentNotFound
	}

	key := dedupe.CommandKey(task.Target, conn.Session, task.CommandID)
	if task.CommandID != "" && p.seen != nil && p.seen.CheckAndMark(key) {
		p.logger.Debug("skipping duplicate command push",
			"command_id", task.CommandID,
			"target", task.Target,
			"origin", task.Origin,
		)
		return ErrDuplicateCommand
	}

	if err := conn.Enqueue(executeTask(task)); err != nil {
		if task.CommandID != "" && p.seen != nil {
			p.seen.Forget(key)
		}
		p.logger.Warn("command push dropped",
			"command_id", task.CommandID,
			"target", task.Target,
			"origin", task.Origin,
			"error", err,
		)
		return fmt.Errorf("pushing %s to %s: %w", task.CommandID, task.Target, err)
	}

	p.logger.Info("command pushed to agent",
		"command_id", task.CommandID,
		"command_type", task.CommandType,
		"target", task.Target,
		"origin", task.Origin,
		"queued", conn.QueueLen(),
	)
	return nil
}

func executeTask(task Task) *pulse.OrchestratorDirective {
	d := NewDirective(pulse.DirectiveTypeExecuteTask, task.Message)
	d.Command = &pulse.TaskCommand{
		CommandID:   task.CommandID,
		CommandType: task.CommandType,
		Origin:      task.Origin,
		TargetAgent: task.Target,
		Payload:     task.Payload,
		Priority:    task.Priority,
	}
	d.Routing = &pulse.RoutingInfo{
		TargetAgent: task.Target,
		SourceAgent: task.Origin,
	}
	return d
}
