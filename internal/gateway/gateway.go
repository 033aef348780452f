// ABOUTME: Gateway lifecycle that wires the bridge, registry, router, stream bus, reaper and servers
// ABOUTME: Owns startup ordering, self-registration and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/meta-orchestrator/internal/agent"
	"github.com/2389/meta-orchestrator/internal/config"
	"github.com/2389/meta-orchestrator/internal/control"
	"github.com/2389/meta-orchestrator/internal/dedupe"
	"github.com/2389/meta-orchestrator/internal/stats"
	"github.com/2389/meta-orchestrator/internal/streambus"
	"github.com/2389/meta-orchestrator/proto/pulse"
)

// Server tuning.
const (
	maxMessageSize   = 50 * 1024 * 1024
	keepaliveTime    = 30 * time.Second
	keepaliveTimeout = 10 * time.Second
	shutdownGrace    = 5 * time.Second

	defaultTailscaleRPCPort = ":50051"
	tailscaleHTTPPort       = ":80"
)

// Self-registration identity.
const (
	SelfName        = "META-ORCHESTRATOR"
	SelfDisplayName = "Meta-Orchestrator (gRPC)"
)

// SelfCapabilities are advertised when the orchestrator registers itself.
var SelfCapabilities = []string{"orchestrate", "route", "monitor", "pulse_stream"}

// Deps overrides external clients, mainly for tests. Nil fields are built
// from the config.
type Deps struct {
	Bridge control.Bridge
	Redis  redis.UniversalClient
}

// Gateway orchestrates the meta-orchestrator server components.
// It owns the gRPC server for agent streams, the HTTP ops server and the
// background stream bus and reaper.
type Gateway struct {
	config      *config.Config
	bridge      control.Bridge
	redis       redis.UniversalClient
	registry    *agent.Registry
	pusher      *agent.Pusher
	router      *agent.Router
	reaper      *agent.Reaper
	bus         *streambus.Bus
	seen        *dedupe.Cache
	stats       *stats.Stats
	grpcServer  *grpc.Server
	health      *health.Server
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// shutdown is closed once Shutdown starts; open Pulse streams watch it.
	shutdown     chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a Gateway whose bridge and stream client come from cfg.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	return NewWithDeps(cfg, Deps{}, logger)
}

// NewWithDeps creates a Gateway using any clients supplied in deps.
func NewWithDeps(cfg *config.Config, deps Deps, logger *slog.Logger) (*Gateway, error) {
	bridge := deps.Bridge
	if bridge == nil {
		bridge = control.NewClient(control.ClientConfig{
			BaseURL:        cfg.Control.URL,
			Timeout:        cfg.Control.Timeout,
			ConnectTimeout: cfg.Control.ConnectTimeout,
			MaxConns:       cfg.Control.MaxConns,
			MaxIdleConns:   cfg.Control.MaxIdleConns,
			Logger:         logger.With("component", "control"),
		})
	}

	rdb := deps.Redis
	if rdb == nil && cfg.Bus.URL != "" {
		opts, err := redis.ParseURL(cfg.Bus.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing bus url: %w", err)
		}
		rdb = redis.NewClient(opts)
	}

	grpcServer, err := createGRPCServer(cfg)
	if err != nil {
		return nil, err
	}

	st := stats.New()
	registry := agent.NewRegistry(logger.With("component", "registry"))
	seen := dedupe.New(cfg.Agents.DedupeTTL, dedupe.DefaultMaxSize)
	pusher := agent.NewPusher(registry, seen, logger.With("component", "pusher"))
	st.TrackConnected(registry.Len)

	gw := &Gateway{
		config:   cfg,
		bridge:   bridge,
		redis:    rdb,
		registry: registry,
		pusher:   pusher,
		router: agent.NewRouter(agent.RouterConfig{
			Bridge:       bridge,
			Pusher:       pusher,
			Stats:        st,
			HeartbeatAck: cfg.Agents.HeartbeatAck,
			Logger:       logger.With("component", "router"),
		}),
		reaper: agent.NewReaper(agent.ReaperConfig{
			Registry:  registry,
			Bridge:    bridge,
			Threshold: cfg.Agents.StalenessThreshold,
			Interval:  cfg.Agents.CheckInterval,
			Logger:    logger.With("component", "reaper"),
		}),
		seen:       seen,
		stats:      st,
		grpcServer: grpcServer,
		health:     health.NewServer(),
		logger:     logger.With("component", "gateway"),
		shutdown:   make(chan struct{}),
	}

	if rdb != nil {
		gw.bus = streambus.New(streambus.Config{
			Client:          rdb,
			Pusher:          pusher,
			Stats:           st,
			Stream:          cfg.Bus.Stream,
			Group:           cfg.Bus.Group,
			Consumer:        cfg.Bus.Consumer,
			DeadLetter:      cfg.Bus.DeadLetter,
			Channels:        cfg.Bus.LegacyChannels,
			MaxRetries:      cfg.Bus.MaxRetries,
			TrimProbability: cfg.Bus.TrimProbability,
			TrimMaxLen:      cfg.Bus.TrimMaxLen,
			Logger:          logger.With("component", "streambus"),
		})
	}

	// Register gRPC services
	pulse.RegisterNexusPulseServiceServer(grpcServer, newPulseServer(gw, logger.With("component", "grpc")))
	healthpb.RegisterHealthServer(grpcServer, gw.health)
	gw.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	gw.health.SetServingStatus(pulse.NexusPulseService_ServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	// Create HTTP server for health checks, API and metrics
	mux := http.NewServeMux()
	gw.registerHTTPRoutes(mux)
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// createGRPCServer builds the RPC server with message limits, keepalive and
// optional TLS.
func createGRPCServer(cfg *config.Config) (*grpc.Server, error) {
	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(maxMessageSize),
		grpc.MaxSendMsgSize(maxMessageSize),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    keepaliveTime,
			Timeout: keepaliveTimeout,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	if cfg.Server.TLSCertFile != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading TLS credentials: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}
	return grpc.NewServer(opts...), nil
}

// Registry exposes the connected-agent registry.
func (g *Gateway) Registry() *agent.Registry {
	return g.registry
}

// Stats exposes the orchestrator counters.
func (g *Gateway) Stats() *stats.Stats {
	return g.stats
}

// Run probes dependencies, starts the servers and background workers, then
// registers the orchestrator with the control plane. It blocks until ctx is
// canceled or a server fails, and always shuts down before returning.
// Returns nil on graceful shutdown (context canceled).
func (g *Gateway) Run(ctx context.Context) error {
	g.probeDependencies(ctx)

	rpcLn, httpLn, err := g.setupListeners(ctx)
	if err != nil {
		return err
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		g.logger.Info("gRPC server listening", "addr", rpcLn.Addr().String())
		if err := g.grpcServer.Serve(rpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("gRPC server: %w", err)
		}
		return nil
	})

	if httpLn != nil {
		eg.Go(func() error {
			g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
			if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server: %w", err)
			}
			return nil
		})
	}

	if g.bus != nil {
		eg.Go(func() error { return g.runBus(egCtx) })
	}

	eg.Go(func() error { return g.reaper.Run(egCtx) })

	eg.Go(func() error {
		<-egCtx.Done()
		if ctx.Err() != nil {
			g.logger.Info("context canceled, initiating shutdown")
		}
		return g.gracefulShutdown()
	})

	g.selfRegister(egCtx, rpcLn.Addr())

	return eg.Wait()
}

// probeDependencies checks the control plane and the stream store. Neither
// failure is fatal; both are retried on demand.
func (g *Gateway) probeDependencies(ctx context.Context) {
	res := g.bridge.Health(ctx)
	if res.String("cortex") == "unreachable" {
		g.logger.Warn("control plane not reachable, will retry on demand", "error", res.String("error"))
	} else {
		g.logger.Info("control plane connected", "health", map[string]any(res))
	}

	if g.redis == nil {
		g.logger.Warn("bus.url not set, stream bus disabled")
		return
	}
	if err := g.redis.Ping(ctx).Err(); err != nil {
		g.logger.Warn("stream store not reachable, will retry", "error", err)
		return
	}
	g.logger.Info("stream store connected")
}

// runBus starts the consumer group, retrying with backoff while the stream
// store is unreachable, then consumes until ctx ends.
func (g *Gateway) runBus(ctx context.Context) error {
	delay := time.Second
	for {
		err := g.bus.Start(ctx)
		if err == nil {
			break
		}
		g.logger.Warn("stream bus start failed", "error", err, "retry_in", delay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, 30*time.Second)
	}
	return g.bus.Run(ctx)
}

// selfRegister announces the orchestrator to the control plane as a service agent.
func (g *Gateway) selfRegister(ctx context.Context, addr net.Addr) {
	endpoint := g.config.Server.RPCAddr
	if endpoint == "" || g.config.Tailscale.Enabled {
		endpoint = addr.String()
	}
	res := g.bridge.RegisterAgent(ctx, control.Registration{
		Name:         SelfName,
		DisplayName:  SelfDisplayName,
		AgentType:    "service",
		Capabilities: SelfCapabilities,
		Endpoint:     "grpc://" + endpoint,
	})
	if err := res.Err(); err != nil {
		g.logger.Warn("self-registration failed", "error", err)
		return
	}
	g.logger.Info("orchestrator registered with control plane", "name", SelfName)
}

// setupTCPListeners creates standard TCP listeners for gRPC and HTTP. The
// HTTP listener is nil when no HTTP address is configured.
func (g *Gateway) setupTCPListeners() (rpcLn, httpLn net.Listener, err error) {
	g.logger.Info("starting meta-orchestrator",
		"rpc_addr", g.config.Server.RPCAddr,
		"http_addr", g.config.Server.HTTPAddr,
		"tls", g.config.Server.TLSCertFile != "",
	)

	rpcLn, err = net.Listen("tcp", g.config.Server.RPCAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on RPC address: %w", err)
	}

	if g.config.Server.HTTPAddr == "" {
		return rpcLn, nil, nil
	}
	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		_ = rpcLn.Close()
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	return rpcLn, httpLn, nil
}

// setupListeners creates listeners based on configuration (Tailscale or TCP).
func (g *Gateway) setupListeners(ctx context.Context) (rpcLn, httpLn net.Listener, err error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.RPCAddr != "" || g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.rpc_addr and server.http_addr are ignored when tailscale is enabled",
				"rpc_addr", g.config.Server.RPCAddr,
				"http_addr", g.config.Server.HTTPAddr,
			)
		}
		return g.setupTailscaleListeners(ctx)
	}
	return g.setupTCPListeners()
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "meta-orchestrator", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// tailscaleRPCPort returns the tailnet listen address for RPC: the port of
// the configured RPC address, so RPC_PORT applies on the tailnet too.
func tailscaleRPCPort(rpcAddr string) string {
	_, port, err := net.SplitHostPort(rpcAddr)
	if err != nil || port == "" {
		return defaultTailscaleRPCPort
	}
	return ":" + port
}

// setupTailscaleListeners joins the tailnet and listens there for gRPC and HTTP.
func (g *Gateway) setupTailscaleListeners(ctx context.Context) (rpcLn, httpLn net.Listener, err error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	rpcLn, err = g.tsnetServer.Listen("tcp", tailscaleRPCPort(g.config.Server.RPCAddr))
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("listening on tailscale RPC port: %w", err)
	}

	httpLn, err = g.tsnetServer.Listen("tcp", tailscaleHTTPPort)
	if err != nil {
		_ = rpcLn.Close()
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return rpcLn, httpLn, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return g.Shutdown(ctx)
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops every component in order: open streams, stream bus, RPC and
// HTTP servers, then the bridge and stream clients. It is safe to call more
// than once; later calls return the first result.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.shutdownOnce.Do(func() {
		g.shutdownErr = g.shutdownComponents(ctx)
	})
	return g.shutdownErr
}

func (g *Gateway) shutdownComponents(ctx context.Context) error {
	g.logger.Info("shutting down meta-orchestrator")
	close(g.shutdown)
	g.health.Shutdown()

	if g.bus != nil {
		g.bus.Stop()
	}

	g.shutdownGRPCServer(ctx)

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "bridge close", g.bridge.Close())
	if g.redis != nil {
		errs = appendCloseError(errs, "stream client close", g.redis.Close())
	}
	g.seen.Close()

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	g.logger.Info("meta-orchestrator stopped")
	return nil
}
