// ABOUTME: The serve command: loads config, prints the startup banner and runs the gateway
// ABOUTME: Runs until SIGINT or SIGTERM, then shuts down gracefully

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/meta-orchestrator/internal/gateway"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchestrator server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	configPath := getConfigPath()
	if configPath == "" {
		configPath = "(defaults + environment)"
	}
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("gRPC:      %s\n", cfg.Server.RPCAddr)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Control:   %s\n", cfg.Control.URL)
	green.Print("    ▶ ")
	if cfg.Bus.URL != "" {
		fmt.Printf("Bus:       %s ", cfg.Bus.URL)
		gray.Printf("(%s)\n", cfg.Bus.Stream)
	} else {
		fmt.Print("Bus:       ")
		yellow.Println("disabled")
	}

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	logger.Info("starting meta-orchestrator",
		"version", version,
		"rpc_addr", cfg.Server.RPCAddr,
		"http_addr", cfg.Server.HTTPAddr,
		"control_url", cfg.Control.URL,
		"staleness_threshold", cfg.Agents.StalenessThreshold,
		"check_interval", cfg.Agents.CheckInterval,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}
