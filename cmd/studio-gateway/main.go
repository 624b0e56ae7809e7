// ABOUTME: Entry point for studio-gateway, the Roblox Studio MCP bridge
// ABOUTME: Wires cobra subcommands for serving, setup and inspecting a running gateway

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/studio-gateway/internal/config"
	"github.com/2389/studio-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _             _ _                        _
 ___| |_ _   _  __| (_) ___    __ _  __ _| |_ _____      ____ _ _   _
/ __| __| | | |/ _' | |/ _ \  / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
\__ \ |_| |_| | (_| | | (_) || (_| | (_| | ||  __/\ V  V / (_| | |_| |
|___/\__|\__,_|\__,_|_|\___/  \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                              |___/                             |___/
`

var configFlag string

func main() {
	root := &cobra.Command{
		Use:           "studio-gateway",
		Short:         "Bridge MCP clients to connected Roblox Studio instances",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "config file (default $"+config.EnvConfigPath+" or ~/.config/studio-gateway/gateway.yaml)")

	root.AddCommand(
		serveCmd(),
		initCmd(),
		healthCmd(),
		studiosCmd(),
		historyCmd(),
		tokenCmd(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (string, *config.Config, error) {
	path := config.ResolvePath(configFlag)
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return path, nil, fmt.Errorf("loading config: %w", err)
	}
	return path, cfg, nil
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.HTTPAddr = addr
			}
			return runServe(cmd.Context(), configPath, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "override server.http_addr")
	return cmd
}

func runServe(ctx context.Context, configPath string, cfg *config.Config) error {
	gateway.Version = version

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Fprint(os.Stderr, banner)
	gray.Fprintf(os.Stderr, "    version: %s\n\n", version)

	logger := setupLogger(cfg.Logging)

	green.Fprint(os.Stderr, "    ▶ ")
	fmt.Fprintf(os.Stderr, "Config:    %s\n", configPath)
	green.Fprint(os.Stderr, "    ▶ ")
	fmt.Fprintf(os.Stderr, "HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Fprint(os.Stderr, "    ▶ ")
	fmt.Fprint(os.Stderr, "Poll:      ")
	if cfg.Studio.Poll.Enabled {
		fmt.Fprintf(os.Stderr, "enabled (wait %s)\n", cfg.Studio.Poll.Wait)
	} else {
		gray.Fprintln(os.Stderr, "disabled")
	}
	if cfg.History.Path != "" {
		green.Fprint(os.Stderr, "    ▶ ")
		fmt.Fprintf(os.Stderr, "History:   %s\n", cfg.History.Path)
	}
	if cfg.MCP.RequireAuth {
		yellow.Fprintln(os.Stderr, "    ▶ MCP bearer auth required")
	}
	fmt.Fprintln(os.Stderr)

	logger.Info("starting studio-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"poll", cfg.Studio.Poll.Enabled,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path := config.ResolvePath(configFlag)
			if err := config.Write(path, config.Default(), force); err != nil {
				return err
			}
			color.New(color.FgGreen).Printf("  ✓ Config written to %s\n", path)
			fmt.Println()
			fmt.Println("To start the server:")
			fmt.Println("  studio-gateway serve")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config file")
	return cmd
}
