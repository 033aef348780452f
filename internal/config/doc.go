// Package config handles configuration loading for the meta-orchestrator.
//
// # Overview
//
// Configuration comes from three layers, lowest precedence first: built-in
// defaults, an optional YAML or TOML file, and environment variables. The
// file may reference environment variables with ${VAR_NAME}; unset variables
// expand to the empty string.
//
// # Configuration File
//
// The CLI takes the path from --config, then ORCHESTRATOR_CONFIG. Without
// either, defaults plus environment are used. Files ending in .toml are
// parsed as TOML; everything else is YAML.
//
//	server:
//	  rpc_addr: "0.0.0.0:50051"   # Pulse stream and unary RPCs
//	  http_addr: "0.0.0.0:8081"   # health, /api/*, /metrics
//	  tls_cert_file: ""
//	  tls_key_file: ""
//
//	control:
//	  url: "http://nexus_cortex:8090"
//	  timeout: "10s"
//	  connect_timeout: "5s"
//	  max_conns: 50
//	  max_idle_conns: 20
//
//	bus:
//	  url: "redis://nexus_redis:6379/0"   # empty disables the stream bus
//	  stream: "nexus:commands:stream"
//	  group: "orchestrator_group"
//	  dead_letter: "nexus:commands:dlq"
//	  legacy_channels: ["nexus:events", "nexus:agents"]
//
//	agents:
//	  staleness_threshold: "60s"
//	  check_interval: "15s"
//	  heartbeat_ack: true
//	  queue_capacity: 100
//	  dedupe_ttl: "5m"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
//	tailscale:
//	  enabled: false
//	  hostname: "meta-orchestrator"
//	  auth_key: "${TS_AUTHKEY}"
//
// Durations in files use Go's time.ParseDuration syntax.
//
// # Environment Overrides
//
//   - CONTROL_URL: control.url
//   - BUS_URL: bus.url
//   - RPC_PORT: port of server.rpc_addr
//   - HTTP_ADDR: server.http_addr
//   - STALENESS_THRESHOLD: agents.staleness_threshold, in seconds
//   - STALENESS_CHECK_INTERVAL: agents.check_interval, in seconds
//   - HEARTBEAT_ACK: agents.heartbeat_ack (true/false)
//   - LOG_LEVEL, LOG_FORMAT: logging
//
// # Usage
//
//	cfg, err := config.Load(path) // path may be ""
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, w := range cfg.Warnings() {
//	    logger.Warn(w)
//	}
package config
