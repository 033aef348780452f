// Package control is the orchestrator's client for the downstream REST
// control plane (agent records, command state, events, dashboard).
//
// The Bridge interface is what the rest of the orchestrator depends on; Client
// is the HTTP implementation and MockBridge the in-memory one used by tests.
// No Bridge method returns a transport error to a stream handler: failures are
// logged and come back as a Result carrying an "error" key.
package control
