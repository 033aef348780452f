// ABOUTME: Process-wide orchestrator counters backed by atomics and Prometheus collectors.
// ABOUTME: Each Stats owns a private registry so tests and multiple servers never collide.

package stats

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orchestrator"

// Bus message outcomes recorded by BusMessage.
const (
	BusAcked        = "acked"
	BusSkipped      = "skipped"
	BusRetried      = "retried"
	BusDeadLettered = "dead_lettered"
)

// Stats tracks monotonic counters. A nil *Stats discards every update.
type Stats struct {
	start time.Time

	pulses        atomic.Uint64
	directives    atomic.Uint64
	registrations atomic.Uint64
	commands      atomic.Uint64

	registry        *prometheus.Registry
	pulsesTotal     *prometheus.CounterVec
	directivesTotal *prometheus.CounterVec
	registersTotal  prometheus.Counter
	commandsTotal   prometheus.Counter
	busTotal        *prometheus.CounterVec

	gaugeOnce sync.Once
}

// Snapshot is the JSON view served at /api/stats.
type Snapshot struct {
	TotalPulses        uint64    `json:"total_pulses"`
	TotalDirectives    uint64    `json:"total_directives"`
	TotalRegistrations uint64    `json:"total_registrations"`
	TotalCommands      uint64    `json:"total_commands"`
	ServerStart        time.Time `json:"server_start"`
	UptimeSeconds      float64   `json:"uptime_seconds"`
}

// New creates Stats with server_start set to now.
func New() *Stats {
	s := &Stats{
		start:    time.Now(),
		registry: prometheus.NewRegistry(),
		pulsesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pulses_total",
			Help:      "Inbound pulses by pulse type.",
		}, []string{"type"}),
		directivesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directives_total",
			Help:      "Directives written to agent streams by directive type.",
		}, []string{"type"}),
		registersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Agent registrations relayed to the control plane.",
		}),
		commandsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands submitted through SubmitCommand or intents.",
		}),
		busTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_messages_total",
			Help:      "Stream bus messages by outcome.",
		}, []string{"outcome"}),
	}
	s.registry.MustRegister(
		s.pulsesTotal,
		s.directivesTotal,
		s.registersTotal,
		s.commandsTotal,
		s.busTotal,
		prometheus.NewGoCollector(),
	)
	return s
}

// Pulse counts one inbound pulse of the given type.
func (s *Stats) Pulse(pulseType string) {
	if s == nil {
		return
	}
	s.pulses.Add(1)
	s.pulsesTotal.WithLabelValues(pulseType).Inc()
}

// Directive counts one directive written to a stream.
func (s *Stats) Directive(directiveType string) {
	if s == nil {
		return
	}
	s.directives.Add(1)
	s.directivesTotal.WithLabelValues(directiveType).Inc()
}

func (s *Stats) Registration() {
	if s == nil {
		return
	}
	s.registrations.Add(1)
	s.registersTotal.Inc()
}

func (s *Stats) Command() {
	if s == nil {
		return
	}
	s.commands.Add(1)
	s.commandsTotal.Inc()
}

// BusMessage records a stream bus outcome. Only Prometheus sees these.
func (s *Stats) BusMessage(outcome string) {
	if s == nil {
		return
	}
	s.busTotal.WithLabelValues(outcome).Inc()
}

// TrackConnected exports a gauge reading fn at scrape time. Only the first
// call has an effect.
func (s *Stats) TrackConnected(fn func() int) {
	if s == nil {
		return
	}
	s.gaugeOnce.Do(func() {
		s.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_agents",
			Help:      "Agents with a live Pulse stream.",
		}, func() float64 { return float64(fn()) }))
	})
}

// Snapshot reads the counters.
func (s *Stats) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	return Snapshot{
		TotalPulses:        s.pulses.Load(),
		TotalDirectives:    s.directives.Load(),
		TotalRegistrations: s.registrations.Load(),
		TotalCommands:      s.commands.Load(),
		ServerStart:        s.start,
		UptimeSeconds:      time.Since(s.start).Seconds(),
	}
}

// Registry exposes the private Prometheus registry.
func (s *Stats) Registry() *prometheus.Registry {
	return s.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (s *Stats) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}
