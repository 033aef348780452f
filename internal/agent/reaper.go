// ABOUTME: Periodically evicts agents whose last pulse is older than the staleness threshold.
// ABOUTME: Eviction only removes the registry entry; the stream itself is left to end on its own.

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/meta-orchestrator/internal/control"
)

// Reaper defaults.
const (
	DefaultStalenessThreshold = 60 * time.Second
	DefaultCheckInterval      = 15 * time.Second
)

// ReaperConfig configures NewReaper.
type ReaperConfig struct {
	Registry  *Registry
	Bridge    control.Bridge
	Threshold time.Duration
	Interval  time.Duration
	Logger    *slog.Logger
}

// Reaper removes silent agents from the Registry.
type Reaper struct {
	registry  *Registry
	bridge    control.Bridge
	threshold time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// NewReaper creates a Reaper. Zero durations take the defaults.
func NewReaper(cfg ReaperConfig) *Reaper {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultStalenessThreshold
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultCheckInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		registry:  cfg.Registry,
		bridge:    cfg.Bridge,
		threshold: cfg.Threshold,
		interval:  cfg.Interval,
		logger:    logger,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("staleness reaper started", "threshold", r.threshold, "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("staleness reaper stopped")
			return nil
		case now := <-ticker.C:
			r.Sweep(ctx, now)
		}
	}
}

// Sweep evicts every agent idle longer than the threshold as of now and
// returns the evicted ids. Each eviction posts one alert event.
func (r *Reaper) Sweep(ctx context.Context, now time.Time) []string {
	var reaped []string
	for _, conn := range r.registry.List() {
		idle := conn.IdleFor(now)
		if idle <= r.threshold {
			continue
		}
		if !r.registry.Unregister(conn) {
			continue
		}
		reaped = append(reaped, conn.ID)

		r.logger.Warn("agent stale, marking offline",
			"agent_id", conn.ID,
			"silent_for", idle.Round(time.Second),
		)
		r.bridge.PostEvent(ctx, control.Event{
			AgentName: conn.ID,
			EventType: "alert",
			Severity:  control.SeverityHigh,
			Title:     fmt.Sprintf("Agent %s marked offline (no pulse for %s)", conn.ID, r.threshold),
		})
	}
	return reaped
}
