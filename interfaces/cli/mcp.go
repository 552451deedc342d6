package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	domainconfig "github.com/felixgeelhaar/agent-registry/domain/config"
	"github.com/felixgeelhaar/agent-registry/infrastructure/logging"
	"github.com/felixgeelhaar/agent-registry/infrastructure/mcp"
)

type mcpOptions struct {
	configPath string
	transport  string
	addr       string
}

func (a *App) newMCPCmd() *cobra.Command {
	opts := &mcpOptions{}

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the registry operations as MCP tools",
		Long: `Serve register_agent, list_agents, search_agents, get_agent,
update_agent, delete_agent, get_agent_facts and health_check as Model
Context Protocol tools.

Examples:
  # Serve over stdin/stdout
  registry mcp

  # Serve over HTTP
  registry mcp --transport http --addr :6901`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serveMCP(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVar(&opts.transport, "transport", "", "Transport: stdio or http (overrides config)")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address (overrides config)")

	return cmd
}

func (a *App) serveMCP(ctx context.Context, opts *mcpOptions) error {
	cfg, err := a.loadConfig(opts.configPath, false)
	if err != nil {
		return err
	}
	if opts.transport != "" {
		cfg.MCP.Transport = opts.transport
	}
	if opts.addr != "" {
		cfg.MCP.Addr = opts.addr
	}
	if err := validateMCP(cfg.MCP); err != nil {
		return err
	}

	result, err := a.build(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeResult(result, cfg)

	srv, err := mcp.NewServer(mcp.ServerConfig{
		Name:     cfg.Name,
		Version:  Version,
		Registry: result.Service,
	})
	if err != nil {
		return err
	}
	srv.Use(mcp.Recover(), mcp.RequestID())

	logging.Info().
		Add(logging.Component("cli")).
		Add(logging.Str("transport", cfg.MCP.Transport)).
		Msg("mcp serving")

	if cfg.MCP.Transport == domainconfig.TransportHTTP {
		return srv.ServeHTTP(ctx, cfg.MCP.Addr)
	}
	return srv.ServeStdio(ctx)
}

func validateMCP(cfg domainconfig.MCPConfig) error {
	switch cfg.Transport {
	case domainconfig.TransportStdio:
		return nil
	case domainconfig.TransportHTTP:
		if cfg.Addr == "" {
			return fmt.Errorf("mcp http transport requires an address")
		}
		return nil
	default:
		return fmt.Errorf("unknown mcp transport %q", cfg.Transport)
	}
}
