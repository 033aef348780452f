// ABOUTME: Entry point for the meta-orchestrator control server and its operator commands
// ABOUTME: Commands: serve, health, status, agents

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/2389/meta-orchestrator/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                 _                         _               _             _
 _ __ ___   ___| |_ __ _        ___  _ __| |__   ___  ___| |_ _ __ __ _| |_ ___  _ __
| '_ ' _ \ / _ \ __/ _' |_____ / _ \| '__| '_ \ / _ \/ __| __| '__/ _' | __/ _ \| '__|
| | | | | |  __/ || (_| |_____| (_) | |  | | | |  __/\__ \ |_| | | (_| | || (_) | |
|_| |_| |_|\___|\__\__,_|      \___/|_|  |_| |_|\___||___/\__|_|  \__,_|\__\___/|_|
`

// configPathEnv names the config file when --config is not given.
const configPathEnv = "ORCHESTRATOR_CONFIG"

var configFlag string

var rootCmd = &cobra.Command{
	Use:           "meta-orchestrator",
	Short:         "Pulse-stream orchestrator for NEXUS agents",
	Long:          "meta-orchestrator keeps a live Pulse stream to every agent, relays their state to the control plane and fans commands back out.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "config file (YAML or TOML); defaults to $"+configPathEnv)
	rootCmd.AddCommand(serveCmd, healthCmd, statusCmd, agentsCmd)
}

// getConfigPath returns the config file path.
// Priority: --config flag > ORCHESTRATOR_CONFIG env var > none (defaults and env only)
func getConfigPath() string {
	if configFlag != "" {
		return configFlag
	}
	return os.Getenv(configPathEnv)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
