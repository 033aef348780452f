// ABOUTME: Operator commands that query a running orchestrator
// ABOUTME: health uses the gRPC health service, status calls GetSystemStatus, agents reads /api/agents

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/2389/meta-orchestrator/internal/config"
	"github.com/2389/meta-orchestrator/internal/gateway"
	"github.com/2389/meta-orchestrator/proto/pulse"
)

const requestTimeout = 5 * time.Second

var addrFlag string

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check orchestrator health over gRPC",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cluster snapshot",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List agents with a live Pulse stream",
	Args:  cobra.NoArgs,
	RunE:  runAgents,
}

func init() {
	for _, c := range []*cobra.Command{healthCmd, statusCmd, agentsCmd} {
		c.Flags().StringVar(&addrFlag, "addr", "", "server address (overrides the configured listen address)")
	}
}

// dialAddr turns a listen address into one a local client can reach.
func dialAddr(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}

// createClient creates a gRPC client connection to the configured RPC port.
func createClient(cfg *config.Config) (*grpc.ClientConn, error) {
	addr := addrFlag
	if addr == "" {
		addr = dialAddr(cfg.Server.RPCAddr)
	}

	creds := insecure.NewCredentials()
	if cfg.Server.TLSCertFile != "" {
		tlsCreds, err := credentials.NewClientTLSFromFile(cfg.Server.TLSCertFile, "")
		if err != nil {
			return nil, fmt.Errorf("loading TLS certificate: %w", err)
		}
		creds = tlsCreds
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return conn, nil
}

func runHealth(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	conn, err := createClient(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{
		Service: pulse.NexusPulseService_ServiceName,
	})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("unhealthy: %s", resp.GetStatus())
	}

	fmt.Println("healthy")
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	conn, err := createClient(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	snap, err := pulse.NewNexusPulseServiceClient(conn).GetSystemStatus(ctx, &emptypb.Empty{})
	if err != nil {
		return fmt.Errorf("getting system status: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  System Status")
	cyan.Println("  -------------")
	fmt.Printf("  Online agents:    %d / %d\n", snap.OnlineAgents, snap.TotalAgents)
	fmt.Printf("  Queued commands:  %d\n", snap.QueuedCommands)
	fmt.Printf("  Running commands: %d\n", snap.RunningCommands)
	fmt.Println()

	if len(snap.Agents) == 0 {
		fmt.Println("  (control plane reported no agents)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tTYPE\tSTATUS\tLAST SEEN\tTASK")
	fmt.Fprintln(w, "  ----\t----\t------\t---------\t----")
	for _, a := range snap.Agents {
		lastSeen := "-"
		if a.LastSeen != nil {
			lastSeen = a.LastSeen.AsTime().Local().Format("Jan 02 15:04:05")
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", a.Name, strings.TrimPrefix(a.AgentType.String(), "AGENT_TYPE_"),
			strings.TrimPrefix(a.Status.String(), "AGENT_STATUS_"), lastSeen, a.CurrentTask)
	}
	w.Flush()
	fmt.Println()
	return nil
}

func runAgents(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	addr := addrFlag
	if addr == "" {
		if cfg.Server.HTTPAddr == "" {
			return fmt.Errorf("server.http_addr is not configured; pass --addr")
		}
		addr = dialAddr(cfg.Server.HTTPAddr)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	url := fmt.Sprintf("http://%s/api/agents", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("agents request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agents request failed: status %d", resp.StatusCode)
	}

	var agents []gateway.AgentInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&agents); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if len(agents) == 0 {
		fmt.Println("  (no connected agents)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tSTATUS\tCONNECTED\tIDLE\tPULSES\tQUEUED")
	fmt.Fprintln(w, "  --\t------\t---------\t----\t------\t------")
	for _, a := range agents {
		idle := (time.Duration(a.IdleSeconds * float64(time.Second))).Round(time.Second)
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%d\t%d\n", a.ID, strings.TrimPrefix(a.Status, "AGENT_STATUS_"),
			a.ConnectedAt.Local().Format("Jan 02 15:04"), idle, a.PulseCount, a.QueuedCount)
	}
	w.Flush()
	return nil
}
