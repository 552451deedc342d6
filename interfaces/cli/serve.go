package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	domainconfig "github.com/felixgeelhaar/agent-registry/domain/config"
	infraconfig "github.com/felixgeelhaar/agent-registry/infrastructure/config"
	"github.com/felixgeelhaar/agent-registry/infrastructure/logging"
	"github.com/felixgeelhaar/agent-registry/interfaces/rest"
)

type serveOptions struct {
	configPath string
	addr       string
	factsAddr  string
	watch      bool
}

func (a *App) newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the registry HTTP API and the facts documents",
		Long: `Serve the registry HTTP API on server.addr and the published facts
documents on server.facts_addr until interrupted.

Examples:
  # Serve with the in-memory defaults
  registry serve

  # Serve a MongoDB-backed registry
  ATLAS_URL=mongodb://localhost:27017 registry serve

  # Serve with a configuration file
  registry serve -c registry.yaml --addr :7000

  # Apply logging changes from the configuration file without a restart
  registry serve -c registry.yaml --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "API listen address (overrides config)")
	cmd.Flags().StringVar(&opts.factsAddr, "facts-addr", "", "Facts server listen address (overrides config)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Reload the logging level when the config file changes")

	return cmd
}

func (a *App) serve(ctx context.Context, opts *serveOptions) error {
	cfg, err := a.loadConfig(opts.configPath, false)
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.factsAddr != "" {
		cfg.Server.FactsAddr = opts.factsAddr
	}

	var watcher *infraconfig.Watcher
	if opts.watch {
		if opts.configPath == "" {
			return errors.New("--watch requires --config")
		}
		if watcher, err = infraconfig.NewWatcher(opts.configPath, a.newLoader(false)); err != nil {
			return err
		}
	}

	result, err := a.build(ctx, cfg)
	if err != nil {
		if watcher != nil {
			_ = watcher.Close()
		}
		return err
	}
	defer closeResult(result, cfg)

	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	api := rest.NewAPI(result.Service, cfg.Name, Version)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rest.Serve(ctx, serverConfig(cfg, cfg.Server.Addr), rest.NewRouter(api))
	})
	if cfg.Server.FactsAddr != "" {
		g.Go(func() error {
			return rest.Serve(ctx, serverConfig(cfg, cfg.Server.FactsAddr), rest.NewFactsRouter(api))
		})
	}
	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(ctx, applyReload, func(err error) {
				logging.Warn().
					Add(logging.Component("cli")).
					Add(logging.ErrorField(err)).
					Msg("config reload failed")
			})
		})
	}

	logging.Info().
		Add(logging.Component("cli")).
		Add(logging.Str("addr", cfg.Server.Addr)).
		Add(logging.Str("facts_addr", cfg.Server.FactsAddr)).
		Msg("registry serving")

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// applyReload applies the settings that can change while serving. Storage,
// publisher and listener changes need a restart.
func applyReload(cfg *domainconfig.RegistryConfig) {
	logging.SetLevel(cfg.Logging.Level)
	logging.Info().
		Add(logging.Component("cli")).
		Add(logging.Str("level", cfg.Logging.Level)).
		Msg("config reloaded")
}

func serverConfig(cfg *domainconfig.RegistryConfig, addr string) rest.ServerConfig {
	return rest.ServerConfig{
		Addr:            addr,
		ReadTimeout:     cfg.Server.ReadTimeout.Duration(),
		WriteTimeout:    cfg.Server.WriteTimeout.Duration(),
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
	}
}
