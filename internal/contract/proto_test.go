// ABOUTME: Contract tests for the gRPC service surface to detect breaking API changes.
// ABOUTME: Validates that expected services, methods and stream shapes exist in the pulse package.

package contract

import (
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc"

	"github.com/2389/meta-orchestrator/proto/pulse"
)

// expectedServices defines the contract for our gRPC API surface.
// If a service or method is removed or renamed, these tests will fail,
// catching breaking changes before they reach deployed agents.
var expectedServices = map[string]struct {
	methods []string
	streams []string
}{
	"nexus.prime.NexusPulseService": {
		methods: []string{
			"RegisterAgent",
			"SubmitCommand",
			"GetSystemStatus",
		},
		streams: []string{"Pulse"},
	},
}

// TestProtoSurface verifies that all expected gRPC services and methods exist.
func TestProtoSurface(t *testing.T) {
	serviceDescs := map[string]grpc.ServiceDesc{
		"nexus.prime.NexusPulseService": pulse.NexusPulseService_ServiceDesc,
	}

	for serviceName, expected := range expectedServices {
		t.Run(serviceName, func(t *testing.T) {
			desc, exists := serviceDescs[serviceName]
			if !assert.True(t, exists, "service %s should be registered", serviceName) {
				return
			}

			assert.Equal(t, serviceName, desc.ServiceName, "service name should match")

			actualMethods := make(map[string]bool)
			for _, m := range desc.Methods {
				actualMethods[m.MethodName] = true
			}

			actualStreams := make(map[string]bool)
			for _, s := range desc.Streams {
				actualStreams[s.StreamName] = true
			}

			for _, method := range expected.methods {
				fullName := fmt.Sprintf("/%s/%s", serviceName, method)
				assert.True(t, actualMethods[method],
					"method %s should exist in service %s", fullName, serviceName)
			}

			for _, stream := range expected.streams {
				fullName := fmt.Sprintf("/%s/%s", serviceName, stream)
				assert.True(t, actualStreams[stream],
					"stream %s should exist in service %s", fullName, serviceName)
			}

			// Report any extras not in contract (informational, not failure)
			for method := range actualMethods {
				if !slices.Contains(expected.methods, method) {
					t.Logf("INFO: extra method %s/%s not in contract (consider adding)", serviceName, method)
				}
			}
			for stream := range actualStreams {
				if !slices.Contains(expected.streams, stream) {
					t.Logf("INFO: extra stream %s/%s not in contract (consider adding)", serviceName, stream)
				}
			}
		})
	}
}

// TestPulseIsBidirectional pins the stream shape agents are built against.
func TestPulseIsBidirectional(t *testing.T) {
	desc := pulse.NexusPulseService_ServiceDesc
	if !assert.Len(t, desc.Streams, 1) {
		return
	}
	assert.True(t, desc.Streams[0].ClientStreams, "agents stream pulses")
	assert.True(t, desc.Streams[0].ServerStreams, "orchestrator streams directives")
	assert.Equal(t, "nexus_pulse.proto", desc.Metadata)
}

// TestFullMethodNames pins the paths deployed clients dial.
func TestFullMethodNames(t *testing.T) {
	assert.Equal(t, "/nexus.prime.NexusPulseService/Pulse", pulse.NexusPulseService_Pulse_FullMethodName)
	assert.Equal(t, "/nexus.prime.NexusPulseService/RegisterAgent", pulse.NexusPulseService_RegisterAgent_FullMethodName)
	assert.Equal(t, "/nexus.prime.NexusPulseService/SubmitCommand", pulse.NexusPulseService_SubmitCommand_FullMethodName)
	assert.Equal(t, "/nexus.prime.NexusPulseService/GetSystemStatus", pulse.NexusPulseService_GetSystemStatus_FullMethodName)
}

// TestEnumNumbers pins the numeric values carried on the wire.
func TestEnumNumbers(t *testing.T) {
	assert.Equal(t, int32(1), int32(pulse.PulseTypeHeartbeat))
	assert.Equal(t, int32(2), int32(pulse.PulseTypeRegistration))
	assert.Equal(t, int32(3), int32(pulse.PulseTypeTaskResult))
	assert.Equal(t, int32(4), int32(pulse.PulseTypeError))
	assert.Equal(t, int32(5), int32(pulse.PulseTypeIntent))
	assert.Equal(t, int32(6), int32(pulse.PulseTypeStateUpdate))
	assert.Equal(t, int32(1), int32(pulse.DirectiveTypeAck))
	assert.Equal(t, int32(2), int32(pulse.DirectiveTypeExecuteTask))
	assert.Equal(t, int32(1), int32(pulse.TaskStatusQueued))
	assert.Equal(t, int32(3), int32(pulse.TaskStatusSuccess))
	assert.Equal(t, int32(1), int32(pulse.AgentStatusIdle))
	assert.Equal(t, int32(4), int32(pulse.AgentStatusOffline))
	assert.Equal(t, int32(1), int32(pulse.AgentTypePlanet))
	assert.Equal(t, int32(2), int32(pulse.AgentTypeService))
}
