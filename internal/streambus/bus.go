// ABOUTME: Redis Streams consumer-group reader that fans command announcements out to agents.
// ABOUTME: Handles ack, pending redelivery, dead-lettering, trimming, and the legacy pub/sub channel.

package streambus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/2389/meta-orchestrator/internal/agent"
	"github.com/2389/meta-orchestrator/internal/stats"
)

// Stream defaults.
const (
	DefaultStream          = "nexus:commands:stream"
	DefaultGroup           = "orchestrator_group"
	DefaultDeadLetter      = "nexus:commands:dlq"
	DefaultBatchSize       = 10
	DefaultBlock           = 2 * time.Second
	DefaultMaxRetries      = 3
	DefaultTrimProbability = 0.1
	DefaultTrimMaxLen      = 10000

	// Origin stamped on commands pushed from the stream.
	Origin = "cortex_redis_streams"

	// TypeCommandIssued is the only entry type the bus pushes.
	TypeCommandIssued = "command_issued"

	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// DefaultChannels are the legacy pub/sub channels.
var DefaultChannels = []string{"nexus:events", "nexus:agents"}

// ErrMalformedMessage indicates a stream entry that cannot be handled.
var ErrMalformedMessage = errors.New("malformed stream message")

// Config configures New. Zero values take the defaults above.
type Config struct {
	Client     redis.UniversalClient
	Pusher     *agent.Pusher
	Stats      *stats.Stats
	Stream     string
	Group      string
	Consumer   string
	DeadLetter string
	// Channels lists legacy pub/sub channels. Empty disables the listener.
	Channels   []string
	BatchSize  int64
	Block      time.Duration
	MaxRetries int
	// TrimProbability is the chance per loop iteration of trimming the
	// stream. Negative disables trimming.
	TrimProbability float64
	TrimMaxLen      int64
	Logger          *slog.Logger
}

// Bus is one consumer in the orchestrator consumer group.
type Bus struct {
	client     redis.UniversalClient
	pusher     *agent.Pusher
	stats      *stats.Stats
	stream     string
	group      string
	consumer   string
	deadLetter string
	channels   []string
	batchSize  int64
	block      time.Duration
	maxRetries int
	trimProb   float64
	trimMaxLen int64
	logger     *slog.Logger

	running atomic.Bool

	mu      sync.Mutex
	retries map[string]int
	cancel  context.CancelFunc
}

// New creates a Bus. Call Start, then Run.
func New(cfg Config) *Bus {
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.Group == "" {
		cfg.Group = DefaultGroup
	}
	if cfg.Consumer == "" {
		cfg.Consumer = fmt.Sprintf("orch_pod_%d", os.Getpid())
	}
	if cfg.DeadLetter == "" {
		cfg.DeadLetter = DefaultDeadLetter
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Block <= 0 {
		cfg.Block = DefaultBlock
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.TrimProbability == 0 {
		cfg.TrimProbability = DefaultTrimProbability
	}
	if cfg.TrimMaxLen <= 0 {
		cfg.TrimMaxLen = DefaultTrimMaxLen
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Bus{
		client:     cfg.Client,
		pusher:     cfg.Pusher,
		stats:      cfg.Stats,
		stream:     cfg.Stream,
		group:      cfg.Group,
		consumer:   cfg.Consumer,
		deadLetter: cfg.DeadLetter,
		channels:   cfg.Channels,
		batchSize:  cfg.BatchSize,
		block:      cfg.Block,
		maxRetries: cfg.MaxRetries,
		trimProb:   cfg.TrimProbability,
		trimMaxLen: cfg.TrimMaxLen,
		logger:     logger,
		retries:    make(map[string]int),
	}
}

// Consumer returns this pod's consumer name.
func (b *Bus) Consumer() string {
	return b.consumer
}

// Start creates the consumer group (and the stream) if needed.
func (b *Bus) Start(ctx context.Context) error {
	err := b.client.XGroupCreateMkStream(ctx, b.stream, b.group, "0").Err()
	switch {
	case err == nil:
		b.logger.Info("consumer group created", "stream", b.stream, "group", b.group)
	case strings.HasPrefix(err.Error(), "BUSYGROUP"):
		b.logger.Info("consumer group already exists", "stream", b.stream, "group", b.group)
	default:
		return fmt.Errorf("creating consumer group %s on %s: %w", b.group, b.stream, err)
	}
	b.running.Store(true)
	return nil
}

// Run consumes until ctx is cancelled or Stop is called.
func (b *Bus) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()

	b.logger.Info("stream bus started",
		"stream", b.stream,
		"group", b.group,
		"consumer", b.consumer,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.consume(gctx) })
	if len(b.channels) > 0 {
		g.Go(func() error { return b.listenLegacy(gctx) })
	}
	err := g.Wait()
	b.logger.Info("stream bus stopped")
	return err
}

// Stop ends Run. The consumer exits after its current read.
func (b *Bus) Stop() {
	b.running.Store(false)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
	}
}

func (b *Bus) consume(ctx context.Context) error {
	delay := initialBackoff
	for b.running.Load() && ctx.Err() == nil {
		if _, err := b.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.logger.Error("stream read failed", "error", err, "retry_in", delay)
			if !sleep(ctx, delay) {
				return nil
			}
			delay = min(delay*2, maxBackoff)
			continue
		}
		delay = initialBackoff

		if b.trimProb > 0 && rand.Float64() < b.trimProb {
			b.trim(ctx)
		}
	}
	return nil
}

// pollOnce handles this consumer's pending entries, or when there are none,
// one batch of new entries. It returns the number of entries handled.
func (b *Bus) pollOnce(ctx context.Context) (int, error) {
	msgs, err := b.read(ctx, "0", -1)
	if err != nil {
		return 0, fmt.Errorf("reading pending entries: %w", err)
	}
	if len(msgs) == 0 {
		msgs, err = b.read(ctx, ">", b.block)
		if err != nil {
			return 0, fmt.Errorf("reading new entries: %w", err)
		}
	}

	for _, msg := range msgs {
		b.handle(ctx, msg)
	}
	return len(msgs), nil
}

func (b *Bus) read(ctx context.Context, id string, block time.Duration) ([]redis.XMessage, error) {
	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.group,
		Consumer: b.consumer,
		Streams:  []string{b.stream, id},
		Count:    b.batchSize,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var msgs []redis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	return msgs, nil
}

// handle processes one entry and settles it: ack on success or skip,
// retry count on failure, dead-letter once the count reaches the limit.
func (b *Bus) handle(ctx context.Context, msg redis.XMessage) {
	outcome, err := b.process(msg)
	if err == nil {
		err = b.client.XAck(ctx, b.stream, b.group, msg.ID).Err()
	}
	if err == nil {
		b.clearRetries(msg.ID)
		b.stats.BusMessage(outcome)
		return
	}

	attempts := b.countRetry(msg.ID)
	b.stats.BusMessage(stats.BusRetried)
	b.logger.Error("stream message failed",
		"msg_id", msg.ID,
		"attempt", attempts,
		"error", err,
	)
	if attempts >= b.maxRetries {
		b.deadLetterMessage(ctx, msg)
	}
}

// process pushes a command_issued entry to its target when the target is
// connected here. Anything else is skipped.
func (b *Bus) process(msg redis.XMessage) (string, error) {
	fields := decode(msg.Values)
	target := fields["target"]
	if fields["type"] != TypeCommandIssued || target == "" {
		b.logger.Debug("skipping stream message", "msg_id", msg.ID, "type", fields["type"])
		return stats.BusSkipped, nil
	}
	if !b.pusher.Connected(target) {
		b.logger.Debug("target not connected here, skipping", "msg_id", msg.ID, "target", target)
		return stats.BusSkipped, nil
	}

	priority := agent.DefaultPriority
	if raw := fields["priority"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return "", fmt.Errorf("%w: priority %q", ErrMalformedMessage, raw)
		}
		priority = n
	}

	commandType := fields["command_type"]
	err := b.pusher.Push(agent.Task{
		CommandID:   fields["command_id"],
		CommandType: commandType,
		Origin:      Origin,
		Target:      target,
		Payload:     decodePayload(fields["payload"]),
		Priority:    agent.EffectivePriority(int32(priority)),
		Message:     "Task from Redis Streams: " + commandType,
	})
	switch {
	case err == nil:
		b.logger.Info("stream command routed",
			"msg_id", msg.ID,
			"command_id", fields["command_id"],
			"target", target,
		)
		return stats.BusAcked, nil
	case errors.Is(err, agent.ErrAgentNotFound), errors.Is(err, agent.ErrDuplicateCommand):
		return stats.BusSkipped, nil
	default:
		// Queue full or stream closing. The control plane re-dispatches.
		return stats.BusAcked, nil
	}
}

func (b *Bus) deadLetterMessage(ctx context.Context, msg redis.XMessage) {
	b.logger.Warn("moving message to dead-letter stream",
		"msg_id", msg.ID,
		"dead_letter", b.deadLetter,
		"attempts", b.maxRetries,
	)
	if err := b.client.XAdd(ctx, &redis.XAddArgs{Stream: b.deadLetter, Values: msg.Values}).Err(); err != nil {
		b.logger.Error("dead-letter write failed", "msg_id", msg.ID, "error", err)
		return
	}
	if err := b.client.XAck(ctx, b.stream, b.group, msg.ID).Err(); err != nil {
		b.logger.Error("dead-letter ack failed", "msg_id", msg.ID, "error", err)
		return
	}
	b.clearRetries(msg.ID)
	b.stats.BusMessage(stats.BusDeadLettered)
}

func (b *Bus) trim(ctx context.Context) {
	if err := b.client.XTrimMaxLenApprox(ctx, b.stream, b.trimMaxLen, 0).Err(); err != nil {
		b.logger.Warn("stream trim failed", "stream", b.stream, "error", err)
		return
	}
	b.logger.Debug("stream trimmed", "stream", b.stream, "max_len", b.trimMaxLen)
}

func (b *Bus) countRetry(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.retries[id]++
	return b.retries[id]
}

func (b *Bus) clearRetries(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.retries, id)
}

// retryCount is the number of failed attempts recorded for id.
func (b *Bus) retryCount(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.retries[id]
}

// decode flattens entry values to strings.
func decode(values map[string]any) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		switch val := v.(type) {
		case string:
			out[k] = val
		case []byte:
			out[k] = string(val)
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

// decodePayload reads an optional JSON object. Anything else yields nil.
func decodePayload(raw string) map[string]any {
	if raw == "" || !gjson.Valid(raw) {
		return nil
	}
	obj, ok := gjson.Parse(raw).Value().(map[string]any)
	if !ok {
		return nil
	}
	return obj
}

// sleep waits for d or ctx. It reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
