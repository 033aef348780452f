// ABOUTME: Shared test harness for the gateway: in-memory gRPC transport and a scripted agent client
// ABOUTME: Each agent client reads directives on its own goroutine so tests can wait with timeouts

package gateway

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/2389/meta-orchestrator/internal/config"
	"github.com/2389/meta-orchestrator/internal/control"
	"github.com/2389/meta-orchestrator/proto/pulse"
)

const waitFor = 5 * time.Second

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	gw     *Gateway
	bridge *control.MockBridge
	cc     *grpc.ClientConn
	client pulse.NexusPulseServiceClient
}

// newHarness serves a Gateway over bufconn with a mock bridge and no bus.
func newHarness(t *testing.T, mutate ...func(*config.Config)) *harness {
	t.Helper()

	cfg := config.Default()
	cfg.Bus.URL = ""
	for _, m := range mutate {
		m(cfg)
	}

	bridge := control.NewMockBridge()
	gw, err := NewWithDeps(cfg, Deps{Bridge: bridge}, testLogger())
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = gw.grpcServer.Serve(lis) }()
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })

	return &harness{
		gw:     gw,
		bridge: bridge,
		cc:     cc,
		client: pulse.NewNexusPulseServiceClient(cc),
	}
}

// agentClient is one scripted agent holding a Pulse stream open.
type agentClient struct {
	t          *testing.T
	stream     pulse.NexusPulseService_PulseClient
	cancel     context.CancelFunc
	directives chan *pulse.OrchestratorDirective
	ended      chan error
}

// connect opens a Pulse stream and sends first as the opening pulse.
func connect(t *testing.T, client pulse.NexusPulseServiceClient, first *pulse.AgentPulse) *agentClient {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := client.Pulse(ctx)
	require.NoError(t, err)
	t.Cleanup(cancel)

	a := &agentClient{
		t:          t,
		stream:     stream,
		cancel:     cancel,
		directives: make(chan *pulse.OrchestratorDirective, 128),
		ended:      make(chan error, 1),
	}
	go func() {
		for {
			d, err := stream.Recv()
			if err != nil {
				a.ended <- err
				close(a.directives)
				return
			}
			a.directives <- d
		}
	}()

	a.send(first)
	return a
}

func (a *agentClient) send(p *pulse.AgentPulse) {
	a.t.Helper()
	require.NoError(a.t, a.stream.Send(p))
}

// next waits for the next directive.
func (a *agentClient) next() *pulse.OrchestratorDirective {
	a.t.Helper()
	select {
	case d, ok := <-a.directives:
		require.True(a.t, ok, "stream ended while waiting for a directive")
		return d
	case <-time.After(waitFor):
		a.t.Fatal("timed out waiting for directive")
		return nil
	}
}

// expectNone asserts no directive arrives within wait.
func (a *agentClient) expectNone(wait time.Duration) {
	a.t.Helper()
	select {
	case d, ok := <-a.directives:
		if ok {
			a.t.Fatalf("unexpected directive %s: %q", d.GetDirectiveType(), d.GetMessage())
		}
	case <-time.After(wait):
	}
}

// end waits for the stream to finish and returns its terminal error.
func (a *agentClient) end() error {
	a.t.Helper()
	select {
	case err := <-a.ended:
		return err
	case <-time.After(waitFor):
		a.t.Fatal("timed out waiting for stream to end")
		return nil
	}
}

func registrationPulse(id string, seq uint64) *pulse.AgentPulse {
	return &pulse.AgentPulse{
		AgentID:        id,
		PulseType:      pulse.PulseTypeRegistration,
		SequenceNumber: seq,
		CorrelationID:  "corr-" + id,
		AgentType:      pulse.AgentTypePlanet,
		Capabilities:   []string{"scan", "report"},
	}
}

func heartbeatPulse(id string, seq uint64, cpu float64) *pulse.AgentPulse {
	return &pulse.AgentPulse{
		AgentID:        id,
		PulseType:      pulse.PulseTypeHeartbeat,
		SequenceNumber: seq,
		State: &pulse.AgentState{
			Status:  pulse.AgentStatusIdle,
			Metrics: &pulse.AgentMetrics{CPUUsagePercent: cpu},
		},
	}
}

// register connects id with a Registration pulse and consumes the welcome
// and registration acks.
func register(t *testing.T, client pulse.NexusPulseServiceClient, id string) *agentClient {
	t.Helper()
	a := connect(t, client, registrationPulse(id, 1))
	a.next()
	a.next()
	return a
}
