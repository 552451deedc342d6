// Package cli provides the command-line interface of the agent registry.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	agentregistry "github.com/felixgeelhaar/agent-registry"
	domainconfig "github.com/felixgeelhaar/agent-registry/domain/config"
	infraconfig "github.com/felixgeelhaar/agent-registry/infrastructure/config"
	"github.com/felixgeelhaar/agent-registry/infrastructure/logging"
)

// Version information set at build time.
var (
	Version   = agentregistry.Version
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// App represents the CLI application.
type App struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer
	lookup func(string) (string, bool)
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
		lookup: os.LookupEnv,
	}

	app.root = &cobra.Command{
		Use:   "registry",
		Short: "Agent registry and discovery service",
		Long: `registry is a directory of AI agents. Agents register their endpoint and
capabilities; clients list and search them and fetch the generated facts
document describing each agent's skills.

The registry is served over HTTP (serve) or as MCP tools (mcp).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newValidateCmd(),
		app.newServeCmd(),
		app.newMCPCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// WithLookup sets the environment lookup used by configuration loading.
func (a *App) WithLookup(lookup func(string) (string, bool)) *App {
	a.lookup = lookup
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments (useful for testing).
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "agent-registry version %s\n", Version)
			fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
			fmt.Fprintf(a.stdout, "  Build date: %s\n", BuildDate)
		},
	}
}

// loadConfig loads path, or the defaults plus environment overrides when
// path is empty.
func (a *App) loadConfig(path string, strict bool) (*domainconfig.RegistryConfig, error) {
	cfg, err := a.newLoader(strict).LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func (a *App) newLoader(strict bool) *infraconfig.Loader {
	return infraconfig.NewLoaderWithOptions(
		infraconfig.WithStrictEnv(strict),
		infraconfig.WithLookup(a.lookup),
	)
}

// build initializes logging and wires the registry from cfg.
func (a *App) build(ctx context.Context, cfg *domainconfig.RegistryConfig) (*infraconfig.BuildResult, error) {
	builder := infraconfig.NewBuilder(cfg)
	logCfg := builder.LoggingConfig()
	logCfg.Output = a.stderr
	logging.Init(logCfg)

	result, err := builder.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}
	return result, nil
}

// closeResult releases the build result within the shutdown timeout.
func closeResult(result *infraconfig.BuildResult, cfg *domainconfig.RegistryConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := result.Close(ctx); err != nil {
		logging.Warn().
			Add(logging.Component("cli")).
			Add(logging.ErrorField(err)).
			Msg("failed to release resources")
	}
}
