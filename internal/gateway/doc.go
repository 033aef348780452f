// Package gateway orchestrates the meta-orchestrator server components.
//
// # Overview
//
// The gateway package is the central coordinator of the orchestrator. It
// owns the gRPC server that hosts NexusPulseService, the HTTP operations
// server, the agent registry and its reaper, the direct pusher, and the
// Redis stream bus that relays control plane commands.
//
// # Gateway Struct
//
//	type Gateway struct {
//	    config     *config.Config
//	    bridge     control.Bridge
//	    registry   *agent.Registry
//	    pusher     *agent.Pusher
//	    router     *agent.Router
//	    reaper     *agent.Reaper
//	    bus        *streambus.Bus
//	    grpcServer *grpc.Server
//	    httpServer *http.Server
//	    // ... and more
//	}
//
// # Pulse Stream
//
// Each agent holds one bidirectional Pulse stream:
//
//  1. The first pulse must carry agent_id or the stream fails with InvalidArgument
//  2. The agent is registered; an older stream for the same id is closed
//  3. A welcome Ack with a SystemSnapshot is queued, then the first pulse is handled
//  4. Later pulses are handled one at a time, in arrival order
//  5. A sender goroutine writes queued directives, numbering them from 1
//
// When the stream ends the agent is unregistered and one disconnect event is
// posted, unless the reaper or a newer stream already removed it.
//
// # Unary RPCs
//
//   - RegisterAgent: registers without a stream
//   - SubmitCommand: submits to the control plane and pushes to a connected target
//   - GetSystemStatus: returns the current snapshot
//
// # HTTP API
//
//   - GET /health: liveness
//   - GET /health/ready: control plane reachability
//   - GET /api/agents: agents with a live stream
//   - GET /api/stats: orchestrator counters
//   - GET /metrics: Prometheus exposition (when enabled)
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	if err := gw.Run(ctx); err != nil {
//	    return err
//	}
//
// Run returns once ctx is cancelled and every component has stopped. Shutdown
// may also be called directly and is safe to call more than once.
package gateway
