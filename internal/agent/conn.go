// ABOUTME: Per-stream agent state: identity, bounded directive queue, sequence counter, liveness.
// ABOUTME: Many producers enqueue; only the stream's sender goroutine dequeues.

package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/meta-orchestrator/proto/pulse"
)

// DefaultQueueCapacity bounds each agent's outbound directive queue.
const DefaultQueueCapacity = 100

var (
	// ErrQueueFull indicates the agent's directive queue has no room.
	ErrQueueFull = errors.New("directive queue full")

	// ErrConnClosed indicates the connection has been torn down.
	ErrConnClosed = errors.New("connection closed")
)

// Conn is one live Pulse stream. It is created on the stream's first pulse
// and closed exactly once when the stream ends.
type Conn struct {
	ID          string
	Session     string // unique per stream
	ConnectedAt time.Time

	queue chan *pulse.OrchestratorDirective

	lastPulse atomic.Int64 // unix nanos
	pulses    atomic.Uint64
	seq       atomic.Uint64

	mu     sync.RWMutex
	status pulse.AgentStatus

	done      chan struct{}
	closeOnce sync.Once
}

// NewConn creates a Conn whose last pulse time is its connect time.
// A non-positive capacity uses DefaultQueueCapacity.
func NewConn(id string, capacity int) *Conn {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	now := time.Now()
	c := &Conn{
		ID:          id,
		Session:     uuid.NewString(),
		ConnectedAt: now,
		queue:       make(chan *pulse.OrchestratorDirective, capacity),
		status:      pulse.AgentStatusIdle,
		done:        make(chan struct{}),
	}
	c.lastPulse.Store(now.UnixNano())
	return c
}

// Touch records an inbound pulse at now and returns the new pulse count.
// It must run before the pulse is dispatched.
func (c *Conn) Touch(now time.Time) uint64 {
	c.lastPulse.Store(now.UnixNano())
	return c.pulses.Add(1)
}

func (c *Conn) LastPulseAt() time.Time {
	return time.Unix(0, c.lastPulse.Load())
}

// IdleFor returns how long the agent has been silent as of now.
func (c *Conn) IdleFor(now time.Time) time.Duration {
	return now.Sub(c.LastPulseAt())
}

func (c *Conn) PulseCount() uint64 {
	return c.pulses.Load()
}

// NextSeq returns the next outbound sequence number, starting at 1.
func (c *Conn) NextSeq() uint64 {
	return c.seq.Add(1)
}

func (c *Conn) Status() pulse.AgentStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Conn) SetStatus(s pulse.AgentStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
}

// Enqueue adds d to the outbound queue without blocking.
func (c *Conn) Enqueue(d *pulse.OrchestratorDirective) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.queue <- d:
		return nil
	default:
		return ErrQueueFull
	}
}

// Next blocks until a directive is queued, the connection closes, or ctx ends.
// Directives still queued at close are discarded.
func (c *Conn) Next(ctx context.Context) (*pulse.OrchestratorDirective, error) {
	select {
	case <-c.done:
		return nil, ErrConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case d := <-c.queue:
		return d, nil
	}
}

// QueueLen returns the number of directives waiting to be sent.
func (c *Conn) QueueLen() int {
	return len(c.queue)
}

// Close marks the connection closed. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed when the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
