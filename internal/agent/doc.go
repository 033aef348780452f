// Package agent holds the orchestrator's view of connected agents.
//
// # Conn
//
// A Conn is created for every Pulse stream once its first pulse names the
// agent. It owns a bounded FIFO of outbound directives (capacity 100 by
// default) that any goroutine may Enqueue into without blocking, and that
// only the stream's sender drains with Next:
//
//	conn := agent.NewConn("A1", agent.DefaultQueueCapacity)
//	if err := conn.Enqueue(d); errors.Is(err, agent.ErrQueueFull) {
//	    // dropped; upstream owns durability
//	}
//
// Sequence numbers come from NextSeq and start at 1. The sender stamps them
// at dequeue so they are strictly increasing in send order.
//
// # Registry
//
// The Registry maps agent ids to Conns. A second stream for the same id
// replaces the first:
//
//	if old := registry.Register(conn); old != nil {
//	    old.Close()
//	}
//
// Unregister removes a Conn only if it is still the registered one, so the
// stream teardown, a takeover, and the Reaper can race without removing a
// newer stream.
//
// # Router
//
// The Router runs one handler per pulse type:
//
//   - Heartbeat: relay projected metrics to the control plane, optionally ack
//   - Registration: register with the control plane, ack
//   - TaskResult: update the command's status
//   - Error: post a high severity event
//   - Intent: submit a command, ack with its id, push it if the target is here
//   - StateUpdate: record the agent status, relay metrics
//
// # Pusher
//
// The Pusher turns commands from SubmitCommand, intents, and the stream bus
// into ExecuteTask directives on the target's queue, skipping commands the
// target already received.
//
// # Reaper
//
// The Reaper removes agents that have been silent longer than the staleness
// threshold and posts one alert event per removal.
package agent
