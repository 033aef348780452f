// ABOUTME: Service descriptor, server interface, and client stub for NexusPulseService.
// ABOUTME: Follows the protoc-gen-go-grpc layout so callers use the familiar API.

package pulse

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

const (
	NexusPulseService_ServiceName                    = "nexus.prime.NexusPulseService"
	NexusPulseService_Pulse_FullMethodName           = "/nexus.prime.NexusPulseService/Pulse"
	NexusPulseService_RegisterAgent_FullMethodName   = "/nexus.prime.NexusPulseService/RegisterAgent"
	NexusPulseService_SubmitCommand_FullMethodName   = "/nexus.prime.NexusPulseService/SubmitCommand"
	NexusPulseService_GetSystemStatus_FullMethodName = "/nexus.prime.NexusPulseService/GetSystemStatus"
)

// NexusPulseService_PulseServer is the server side of the Pulse stream.
type NexusPulseService_PulseServer = grpc.BidiStreamingServer[AgentPulse, OrchestratorDirective]

// NexusPulseService_PulseClient is the client side of the Pulse stream.
type NexusPulseService_PulseClient = grpc.BidiStreamingClient[AgentPulse, OrchestratorDirective]

// NexusPulseServiceServer is the server API for NexusPulseService.
// Implementations must embed UnimplementedNexusPulseServiceServer.
type NexusPulseServiceServer interface {
	Pulse(NexusPulseService_PulseServer) error
	RegisterAgent(context.Context, *AgentRegistration) (*RegistrationAck, error)
	SubmitCommand(context.Context, *TaskCommand) (*CommandAck, error)
	GetSystemStatus(context.Context, *emptypb.Empty) (*SystemSnapshot, error)
	mustEmbedUnimplementedNexusPulseServiceServer()
}

// UnimplementedNexusPulseServiceServer returns Unimplemented for every method.
type UnimplementedNexusPulseServiceServer struct{}

func (UnimplementedNexusPulseServiceServer) Pulse(NexusPulseService_PulseServer) error {
	return status.Error(codes.Unimplemented, "method Pulse not implemented")
}

func (UnimplementedNexusPulseServiceServer) RegisterAgent(context.Context, *AgentRegistration) (*RegistrationAck, error) {
	return nil, status.Error(codes.Unimplemented, "method RegisterAgent not implemented")
}

func (UnimplementedNexusPulseServiceServer) SubmitCommand(context.Context, *TaskCommand) (*CommandAck, error) {
	return nil, status.Error(codes.Unimplemented, "method SubmitCommand not implemented")
}

func (UnimplementedNexusPulseServiceServer) GetSystemStatus(context.Context, *emptypb.Empty) (*SystemSnapshot, error) {
	return nil, status.Error(codes.Unimplemented, "method GetSystemStatus not implemented")
}

func (UnimplementedNexusPulseServiceServer) mustEmbedUnimplementedNexusPulseServiceServer() {}

// RegisterNexusPulseServiceServer registers srv on s.
func RegisterNexusPulseServiceServer(s grpc.ServiceRegistrar, srv NexusPulseServiceServer) {
	s.RegisterService(&NexusPulseService_ServiceDesc, srv)
}

func _NexusPulseService_Pulse_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(NexusPulseServiceServer).Pulse(&grpc.GenericServerStream[AgentPulse, OrchestratorDirective]{ServerStream: stream})
}

func _NexusPulseService_RegisterAgent_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AgentRegistration)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NexusPulseServiceServer).RegisterAgent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: NexusPulseService_RegisterAgent_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(NexusPulseServiceServer).RegisterAgent(ctx, req.(*AgentRegistration))
	}
	return interceptor(ctx, in, info, handler)
}

func _NexusPulseService_SubmitCommand_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(TaskCommand)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NexusPulseServiceServer).SubmitCommand(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: NexusPulseService_SubmitCommand_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(NexusPulseServiceServer).SubmitCommand(ctx, req.(*TaskCommand))
	}
	return interceptor(ctx, in, info, handler)
}

func _NexusPulseService_GetSystemStatus_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NexusPulseServiceServer).GetSystemStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: NexusPulseService_GetSystemStatus_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(NexusPulseServiceServer).GetSystemStatus(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// NexusPulseService_ServiceDesc is the grpc.ServiceDesc for NexusPulseService.
var NexusPulseService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: NexusPulseService_ServiceName,
	HandlerType: (*NexusPulseServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RegisterAgent", Handler: _NexusPulseService_RegisterAgent_Handler},
		{MethodName: "SubmitCommand", Handler: _NexusPulseService_SubmitCommand_Handler},
		{MethodName: "GetSystemStatus", Handler: _NexusPulseService_GetSystemStatus_Handler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Pulse",
			Handler:       _NexusPulseService_Pulse_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "nexus_pulse.proto",
}

// NexusPulseServiceClient is the client API for NexusPulseService.
type NexusPulseServiceClient interface {
	Pulse(ctx context.Context, opts ...grpc.CallOption) (NexusPulseService_PulseClient, error)
	RegisterAgent(ctx context.Context, in *AgentRegistration, opts ...grpc.CallOption) (*RegistrationAck, error)
	SubmitCommand(ctx context.Context, in *TaskCommand, opts ...grpc.CallOption) (*CommandAck, error)
	GetSystemStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*SystemSnapshot, error)
}

type nexusPulseServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewNexusPulseServiceClient wraps cc. Every call uses the json content subtype.
func NewNexusPulseServiceClient(cc grpc.ClientConnInterface) NexusPulseServiceClient {
	return &nexusPulseServiceClient{cc: cc}
}

func callOptions(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *nexusPulseServiceClient) Pulse(ctx context.Context, opts ...grpc.CallOption) (NexusPulseService_PulseClient, error) {
	stream, err := c.cc.NewStream(ctx, &NexusPulseService_ServiceDesc.Streams[0], NexusPulseService_Pulse_FullMethodName, callOptions(opts)...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[AgentPulse, OrchestratorDirective]{ClientStream: stream}, nil
}

func (c *nexusPulseServiceClient) RegisterAgent(ctx context.Context, in *AgentRegistration, opts ...grpc.CallOption) (*RegistrationAck, error) {
	out := new(RegistrationAck)
	if err := c.cc.Invoke(ctx, NexusPulseService_RegisterAgent_FullMethodName, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nexusPulseServiceClient) SubmitCommand(ctx context.Context, in *TaskCommand, opts ...grpc.CallOption) (*CommandAck, error) {
	out := new(CommandAck)
	if err := c.cc.Invoke(ctx, NexusPulseService_SubmitCommand_FullMethodName, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nexusPulseServiceClient) GetSystemStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*SystemSnapshot, error) {
	out := new(SystemSnapshot)
	if err := c.cc.Invoke(ctx, NexusPulseService_GetSystemStatus_FullMethodName, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}
