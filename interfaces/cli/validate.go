package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type validateOptions struct {
	configPath string
	strict     bool
	connect    bool
}

func (a *App) newValidateCmd() *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Validate a registry configuration file for correctness.

This command checks:
  - File format (YAML or JSON)
  - Storage backend and its connection settings
  - Publisher mode and its endpoints
  - Logging, tracing and MCP settings
  - Environment variable references (in strict mode)

With --connect the registry is also built and its storage health checked.

Examples:
  # Validate a configuration file
  registry validate -c registry.yaml

  # Strict validation (fail on missing env vars)
  registry validate -c registry.yaml --strict

  # Validate and probe the configured storage
  registry validate -c registry.yaml --connect`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.validateConfig(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Enable strict validation (fail on missing env vars)")
	cmd.Flags().BoolVar(&opts.connect, "connect", false, "Build the registry and check storage health")

	return cmd
}

func (a *App) validateConfig(ctx context.Context, opts *validateOptions) error {
	if opts.configPath == "" {
		return fmt.Errorf("configuration file path is required (-c flag)")
	}

	cfg, err := a.loadConfig(opts.configPath, opts.strict)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Fprintf(a.stdout, "✓ Configuration is valid\n")
	fmt.Fprintf(a.stdout, "  Name: %s\n", cfg.Name)

	fmt.Fprintf(a.stdout, "\nConfiguration summary:\n")
	fmt.Fprintf(a.stdout, "  API address: %s\n", cfg.Server.Addr)
	if cfg.Server.FactsAddr != "" {
		fmt.Fprintf(a.stdout, "  Facts address: %s\n", cfg.Server.FactsAddr)
	}
	fmt.Fprintf(a.stdout, "  Storage: %s\n", cfg.Storage.Backend)
	if cfg.Storage.Facts.Backend != "" {
		fmt.Fprintf(a.stdout, "  Facts storage: %s\n", cfg.Storage.Facts.Backend)
	}
	fmt.Fprintf(a.stdout, "  Publisher: %s\n", cfg.Publisher.Mode)
	fmt.Fprintf(a.stdout, "  Logging: %s (%s)\n", cfg.Logging.Level, cfg.Logging.Format)
	if cfg.Telemetry.Tracing.Enabled {
		fmt.Fprintf(a.stdout, "  Tracing: %s\n", cfg.Telemetry.Tracing.Exporter)
	}
	fmt.Fprintf(a.stdout, "  MCP transport: %s\n", cfg.MCP.Transport)

	if !opts.connect {
		return nil
	}

	result, err := a.build(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeResult(result, cfg)

	status := result.Service.HealthCheck(ctx)
	fmt.Fprintf(a.stdout, "\nStorage health: %s\n", status.Status)
	for component, check := range status.Checks {
		fmt.Fprintf(a.stdout, "  %s: %s\n", component, check)
	}
	if !status.Healthy() {
		return fmt.Errorf("storage unhealthy: %s", status.Error)
	}
	return nil
}
