// ABOUTME: HTTP implementation of Bridge with a bounded connection pool and fixed timeouts.
// ABOUTME: Every method logs and shapes failures instead of returning transport errors.

package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Pool and timeout defaults. They keep a stuck control plane from pinning
// orchestrator goroutines.
const (
	DefaultTimeout        = 10 * time.Second
	DefaultConnectTimeout = 5 * time.Second
	DefaultMaxConns       = 50
	DefaultMaxIdleConns   = 20
)

// maxErrorBody caps how much of a failure body is echoed into a Result.
const maxErrorBody = 512

// ClientConfig configures NewClient. Zero values take the defaults above.
type ClientConfig struct {
	BaseURL        string
	Timeout        time.Duration
	ConnectTimeout time.Duration
	MaxConns       int
	MaxIdleConns   int
	Logger         *slog.Logger
}

// Client talks to the control plane over HTTP/JSON.
type Client struct {
	baseURL   string
	http      *http.Client
	transport *http.Transport
	logger    *slog.Logger
}

// NewClient creates a Client for cfg.BaseURL.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = DefaultMaxConns
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = DefaultMaxIdleConns
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxConnsPerHost:     cfg.MaxConns,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		transport: transport,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		logger: logger,
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.transport.CloseIdleConnections()
	c.logger.Info("control bridge closed")
	return nil
}

// do sends a JSON request and returns the raw response body.
// Non-2xx statuses are reported as errors carrying a truncated body.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(raw)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(snippet))
	}
	return raw, nil
}

// call performs a request and decodes the body into a Result.
func (c *Client) call(ctx context.Context, method, path string, body any) (Result, error) {
	raw, err := c.do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	result := Result{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return result, nil
}

// Health probes GET /health.
func (c *Client) Health(ctx context.Context) Result {
	result, err := c.call(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		c.logger.Error("control plane health check failed", "error", err)
		return Result{"cortex": "unreachable", "error": err.Error()}
	}
	return result
}

// RegisterAgent calls POST /agent/register.
func (c *Client) RegisterAgent(ctx context.Context, reg Registration) Result {
	if reg.DisplayName == "" {
		reg.DisplayName = reg.Name
	}
	if reg.Capabilities == nil {
		reg.Capabilities = []string{}
	}
	result, err := c.call(ctx, http.MethodPost, "/agent/register", reg)
	if err != nil {
		c.logger.Error("agent registration failed", "agent", reg.Name, "error", err)
		return errorResult(err)
	}
	c.logger.Info("registered agent with control plane", "agent", reg.Name)
	return result
}

// Heartbeat relays POST /agent/{name}/heartbeat. Failures are logged at warn.
func (c *Client) Heartbeat(ctx context.Context, agentName, currentTask string, metrics map[string]any) Result {
	if metrics == nil {
		metrics = map[string]any{}
	}
	body := map[string]any{
		"current_task": nullable(currentTask),
		"metrics":      metrics,
	}
	result, err := c.call(ctx, http.MethodPost, "/agent/"+url.PathEscape(agentName)+"/heartbeat", body)
	if err != nil {
		c.logger.Warn("heartbeat relay failed", "agent", agentName, "error", err)
		return errorResult(err)
	}
	return result
}

// SubmitCommand calls POST /command and returns the routed command.
func (c *Client) SubmitCommand(ctx context.Context, req CommandRequest) Result {
	if req.Payload == nil {
		req.Payload = map[string]any{}
	}
	result, err := c.call(ctx, http.MethodPost, "/command", req)
	if err != nil {
		c.logger.Error("command submission failed", "command_type", req.CommandType, "error", err)
		return errorResult(err)
	}
	target := "auto-route"
	if req.TargetAgent != nil {
		target = *req.TargetAgent
	}
	c.logger.Info("command submitted",
		"command_id", result.String("command_id"),
		"requested_target", target,
	)
	return result
}

// UpdateCommand calls PATCH /command/{id}.
func (c *Client) UpdateCommand(ctx context.Context, upd CommandUpdate) Result {
	result, err := c.call(ctx, http.MethodPatch, "/command/"+url.PathEscape(upd.CommandID), upd.body())
	if err != nil {
		c.logger.Warn("command update failed", "command_id", upd.CommandID, "error", err)
		return errorResult(err)
	}
	return result
}

// PostEvent calls POST /event.
func (c *Client) PostEvent(ctx context.Context, ev Event) Result {
	if ev.Severity == "" {
		ev.Severity = SeverityInfo
	}
	if ev.Body == nil {
		ev.Body = map[string]any{}
	}
	result, err := c.call(ctx, http.MethodPost, "/event", ev)
	if err != nil {
		c.logger.Warn("event post failed", "agent", ev.AgentName, "event_type", ev.EventType, "error", err)
		return errorResult(err)
	}
	return result
}

// Dashboard fetches GET /dashboard.
func (c *Client) Dashboard(ctx context.Context) (*Dashboard, error) {
	raw, err := c.do(ctx, http.MethodGet, "/dashboard", nil)
	if err != nil {
		c.logger.Error("dashboard fetch failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	dash, err := ParseDashboard(raw)
	if err != nil {
		c.logger.Error("dashboard parse failed", "error", err)
		return nil, err
	}
	return dash, nil
}

// Agents fetches GET /agents.
func (c *Client) Agents(ctx context.Context) ([]AgentRecord, error) {
	raw, err := c.do(ctx, http.MethodGet, "/agents", nil)
	if err != nil {
		c.logger.Error("agents fetch failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: agents response is not JSON", ErrUnavailable)
	}
	return parseAgentRecords(gjson.GetBytes(raw, "agents")), nil
}

// nullable maps "" to JSON null.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
