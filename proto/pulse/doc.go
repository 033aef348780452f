// Package pulse defines the NexusPulse wire ABI spoken between agents and the
// meta-orchestrator.
//
// # Service
//
//	service NexusPulseService {
//	    rpc Pulse(stream AgentPulse) returns (stream OrchestratorDirective);
//	    rpc RegisterAgent(AgentRegistration) returns (RegistrationAck);
//	    rpc SubmitCommand(TaskCommand) returns (CommandAck);
//	    rpc GetSystemStatus(google.protobuf.Empty) returns (SystemSnapshot);
//	}
//
// # Encoding
//
// Messages are plain Go structs carried by the "json" gRPC codec registered in
// codec.go. The codec is chosen per call through the content subtype
// (application/grpc+json), so the standard health and reflection services on
// the same server keep using protobuf. Clients built with
// NewNexusPulseServiceClient request the json subtype on every call.
//
// Timestamps are google.protobuf.Timestamp values (timestamppb) and struct
// payloads are free-form JSON objects. The message set is fixed: fields are
// never renamed or renumbered, and unknown fields are ignored on decode.
//
// # Operators
//
// Server reflection lists NexusPulseService by name, but no protobuf file
// descriptor backs it, so grpcurl can neither describe nor invoke its
// methods. Probe liveness with the standard health service
// (grpcurl -plaintext host:50051 grpc.health.v1.Health/Check) or use the
// meta-orchestrator CLI: "meta-orchestrator health" and
// "meta-orchestrator status" speak the json codec.
//
// # Tagged Unions
//
// AgentPulse and OrchestratorDirective are tagged unions. PulseType and
// DirectiveType select which optional payload is meaningful; receivers switch
// on the tag and ignore the other payload fields.
package pulse
