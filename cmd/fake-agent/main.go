// ABOUTME: Minimal fake agent for E2E testing: opens a Pulse stream, heartbeats and completes every task.
// ABOUTME: Usage: fake-agent [--addr localhost:50051] [--id fake-planet-1] [--interval 10s]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/2389/meta-orchestrator/proto/pulse"
)

type options struct {
	addr         string
	agentID      string
	displayName  string
	capabilities []string
	interval     time.Duration
	workTime     time.Duration
}

func main() {
	var opts options
	pflag.StringVar(&opts.addr, "addr", "localhost:50051", "gRPC server address")
	pflag.StringVar(&opts.agentID, "id", "fake-planet-1", "Agent ID")
	pflag.StringVar(&opts.displayName, "name", "Fake Planet", "Agent display name")
	pflag.StringSliceVar(&opts.capabilities, "capabilities", []string{"scan", "report"}, "Advertised capabilities")
	pflag.DurationVar(&opts.interval, "interval", 10*time.Second, "Heartbeat interval")
	pflag.DurationVar(&opts.workTime, "work", 200*time.Millisecond, "Simulated execution time per task")
	pflag.Parse()

	if err := run(opts); err != nil {
		log.Fatal(err)
	}
}

// agent holds the stream and the per-stream pulse counter. Only the run loop
// sends; task goroutines hand their results back over a channel.
type agent struct {
	opts   options
	stream pulse.NexusPulseService_PulseClient
	seq    uint64
	tasks  int32
	done   int32
}

func run(opts options) error {
	conn, err := grpc.NewClient(opts.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	stream, err := pulse.NewNexusPulseServiceClient(conn).Pulse(ctx)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	a := &agent{opts: opts, stream: stream}

	if err := a.send(&pulse.AgentPulse{
		PulseType:    pulse.PulseTypeRegistration,
		DisplayName:  opts.displayName,
		AgentType:    pulse.AgentTypePlanet,
		Capabilities: opts.capabilities,
		Endpoint:     "fake://" + opts.agentID,
	}); err != nil {
		return fmt.Errorf("failed to register: %w", err)
	}

	directives := make(chan *pulse.OrchestratorDirective)
	recvErr := make(chan error, 1)
	go func() {
		for {
			d, err := stream.Recv()
			if err != nil {
				recvErr <- err
				return
			}
			directives <- d
		}
	}()

	results := make(chan *pulse.TaskResult)
	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = stream.CloseSend()
			return nil

		case err := <-recvErr:
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("recv error: %w", err)

		case <-ticker.C:
			if err := a.send(a.heartbeat()); err != nil {
				return fmt.Errorf("heartbeat failed: %w", err)
			}

		case d := <-directives:
			a.handle(ctx, d, results)

		case res := <-results:
			a.done++
			if err := a.send(&pulse.AgentPulse{PulseType: pulse.PulseTypeTaskResult, Result: res}); err != nil {
				log.Printf("send result error: %v", err)
			}
		}
	}
}

func (a *agent) send(p *pulse.AgentPulse) error {
	a.seq++
	p.AgentID = a.opts.agentID
	p.SequenceNumber = a.seq
	p.Timestamp = timestamppb.Now()
	return a.stream.Send(p)
}

func (a *agent) heartbeat() *pulse.AgentPulse {
	status := pulse.AgentStatusIdle
	if a.tasks > a.done {
		status = pulse.AgentStatusBusy
	}
	return &pulse.AgentPulse{
		PulseType: pulse.PulseTypeHeartbeat,
		State: &pulse.AgentState{
			Status: status,
			Metrics: &pulse.AgentMetrics{
				CPUUsagePercent: 12.5,
				ActiveTasks:     a.tasks - a.done,
				CompletedTasks:  a.done,
			},
		},
	}
}

func (a *agent) handle(ctx context.Context, d *pulse.OrchestratorDirective, results chan<- *pulse.TaskResult) {
	switch d.GetDirectiveType() {
	case pulse.DirectiveTypeAck:
		log.Printf("ack #%d: %s", d.GetSequenceNumber(), d.GetMessage())

	case pulse.DirectiveTypeExecuteTask:
		cmd := d.GetCommand()
		log.Printf("task #%d: %s %s from %s", d.GetSequenceNumber(), cmd.GetCommandID(), cmd.GetCommandType(), cmd.GetOrigin())
		a.tasks++
		go func() {
			start := time.Now()
			select {
			case <-ctx.Done():
				return
			case <-time.After(a.opts.workTime):
			}
			res := &pulse.TaskResult{
				CommandID:       cmd.GetCommandID(),
				Status:          pulse.TaskStatusSuccess,
				Output:          map[string]any{"handled_by": a.opts.agentID, "command_type": cmd.GetCommandType()},
				ExecutionTimeMs: time.Since(start).Milliseconds(),
			}
			select {
			case results <- res:
			case <-ctx.Done():
			}
		}()

	default:
		log.Printf("ignoring directive %s: %s", d.GetDirectiveType(), d.GetMessage())
	}
}
