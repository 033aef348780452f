// ABOUTME: Shared fixtures for agent package tests.
// ABOUTME: Provides a discard logger and a helper that drains queued directives.

package agent

import (
	"io"
	"log/slog"

	"github.com/2389/meta-orchestrator/proto/pulse"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// drain returns every directive currently queued on conn without blocking.
func drain(conn *Conn) []*pulse.OrchestratorDirective {
	var out []*pulse.OrchestratorDirective
	for {
		select {
		case d := <-conn.queue:
			out = append(out, d)
		default:
			return out
		}
	}
}
