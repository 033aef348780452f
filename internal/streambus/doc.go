// Package streambus consumes command announcements from a Redis stream and
// pushes them to agents connected to this orchestrator.
//
// Every orchestrator pod joins the same consumer group, so each stream entry
// is handled by exactly one pod. A pod acks an entry once it has pushed it,
// or once it decides the entry is not its business (wrong type, no target,
// target connected elsewhere). Entries whose handling fails stay pending and
// are retried; after three failures they are copied to a dead-letter stream
// and acked.
//
// A legacy pub/sub listener logs traffic on the old event channels. It never
// affects the stream consumer.
package streambus
