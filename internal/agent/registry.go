// ABOUTME: Registry of live agent connections keyed by agent id.
// ABOUTME: Newest stream wins on id collision; removal is by identity so teardown is idempotent.

package agent

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
)

// ErrAgentNotFound indicates the specified agent is not connected.
var ErrAgentNotFound = errors.New("agent not found")

// Registry tracks connected agents. At most one Conn per id is present.
type Registry struct {
	conns  map[string]*Conn
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:  make(map[string]*Conn),
		logger: logger,
	}
}

// Register inserts conn. If another Conn already holds the id it is removed
// and returned so the caller can close it and report the takeover.
func (r *Registry) Register(conn *Conn) (replaced *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, exists := r.conns[conn.ID]; exists && old != conn {
		replaced = old
	}
	r.conns[conn.ID] = conn

	r.logger.Info("=== AGENT CONNECTED ===",
		"agent_id", conn.ID,
		"replaced_stream", replaced != nil,
		"total_agents", len(r.conns),
	)
	return replaced
}

// Unregister removes conn if it is still the registered Conn for its id.
// It reports whether anything was removed.
func (r *Registry) Unregister(conn *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.conns[conn.ID]; !ok || current != conn {
		return false
	}
	delete(r.conns, conn.ID)

	r.logger.Info("=== AGENT DISCONNECTED ===",
		"agent_id", conn.ID,
		"total_agents", len(r.conns),
	)
	return true
}

// Readmit re-inserts a Conn that was removed while its stream stayed open
// (for example after a reap). It does nothing if the id is taken.
func (r *Registry) Readmit(conn *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[conn.ID]; exists {
		return false
	}
	r.conns[conn.ID] = conn
	r.logger.Info("agent readmitted", "agent_id", conn.ID, "total_agents", len(r.conns))
	return true
}

// Holds reports whether conn is the registered Conn for its id.
func (r *Registry) Holds(conn *Conn) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[conn.ID] == conn
}

func (r *Registry) Get(id string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// List returns the connected agents sorted by id. The slice is a copy.
func (r *Registry) List() []*Conn {
	r.mu.RLock()
	out := make([]*Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		out = append(out, conn)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
