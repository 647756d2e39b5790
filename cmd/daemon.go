package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mozilla-ai/healthd/internal/cmd"
	cmdopts "github.com/mozilla-ai/healthd/internal/cmd/options"
	"github.com/mozilla-ai/healthd/internal/config"
	"github.com/mozilla-ai/healthd/internal/daemon"
	"github.com/mozilla-ai/healthd/internal/flags"
)

const (
	flagAddr            = "addr"
	flagDev             = "dev"
	flagCORSEnable      = "cors-enable"
	flagCORSOrigins     = "cors-origins"
	flagShutdownTimeout = "timeout-api-shutdown"
	flagMetricsPath     = "metrics-path"

	defaultAddr = "0.0.0.0:8090"
	devAddr     = "localhost:8090"
)

// DaemonCmd should be used to represent the 'daemon' command.
type DaemonCmd struct {
	*cmd.BaseCmd
	Dev             bool
	Addr            string
	CORSEnable      bool
	CORSOrigins     []string
	ShutdownTimeout time.Duration
	MetricsPath     string

	cfgLoader  config.Loader
	daemonOpts []daemon.Option
}

// NewDaemonCmd creates a newly configured (Cobra) command.
func NewDaemonCmd(baseCmd *cmd.BaseCmd, opt ...cmdopts.CmdOption) (*cobra.Command, error) {
	opts, err := cmdopts.NewOptions(opt...)
	if err != nil {
		return nil, err
	}

	c := &DaemonCmd{
		BaseCmd:    baseCmd,
		cfgLoader:  opts.ConfigLoader,
		daemonOpts: opts.DaemonOptions,
	}

	cobraCommand := &cobra.Command{
		Use:   "daemon [--dev] [--addr]",
		Short: "Launches a `healthd` daemon instance",
		Long: "Launches a `healthd` daemon instance, which monitors the configured components, " +
			"raises alerts, attempts recovery and serves health over an HTTP API",
		RunE: c.run,
	}

	cobraCommand.Flags().BoolVar(
		&c.Dev,
		flagDev,
		false,
		"Run the daemon in development-focused mode",
	)

	cobraCommand.Flags().StringVar(
		&c.Addr,
		flagAddr,
		defaultAddr,
		"Address for the daemon to bind (not applicable in --dev mode), overrides api.addr",
	)

	cobraCommand.Flags().BoolVar(
		&c.CORSEnable,
		flagCORSEnable,
		false,
		"Enable CORS on the API, overrides api.cors.enable",
	)

	cobraCommand.Flags().StringSliceVar(
		&c.CORSOrigins,
		flagCORSOrigins,
		nil,
		"Origins allowed by CORS, overrides api.cors.allow_origins",
	)

	cobraCommand.Flags().DurationVar(
		&c.ShutdownTimeout,
		flagShutdownTimeout,
		daemon.DefaultAPIShutdownTimeout(),
		"Time allowed for the API server to shut down, overrides api.shutdown_timeout",
	)

	cobraCommand.Flags().StringVar(
		&c.MetricsPath,
		flagMetricsPath,
		daemon.DefaultMetricsPath(),
		"Path the Prometheus metrics are served on",
	)

	cobraCommand.MarkFlagsMutuallyExclusive(flagDev, flagAddr)

	return cobraCommand, nil
}

// run is configured (via NewDaemonCmd) to be called by the Cobra framework when the command is executed.
// It may return an error (or nil, when there is no error).
func (c *DaemonCmd) run(cmd *cobra.Command, _ []string) error {
	logger, err := c.Logger()
	if err != nil {
		return err
	}

	cfg, err := c.cfgLoader.Load(flags.ConfigFile)
	if err != nil {
		return err
	}

	addr := c.address(cmd, cfg)
	if c.Dev {
		logger.Info("Development-focused mode", "addr", addr)
	}

	deps, err := daemon.NewDependencies(logger, addr, cfg)
	if err != nil {
		return fmt.Errorf("error configuring healthd daemon: %w", err)
	}

	daemonOpts := append([]daemon.Option{daemon.WithAPIOptions(c.apiOptions(cmd, cfg)...)}, c.daemonOpts...)
	d, err := daemon.NewDaemon(deps, daemonOpts...)
	if err != nil {
		return fmt.Errorf("failed to create healthd daemon instance: %w", err)
	}

	// Create the signal handling context for the application.
	daemonCtx, daemonCtxCancel := signal.NotifyContext(
		cmd.Context(),
		os.Interrupt,
		syscall.SIGTERM, syscall.SIGINT,
	)
	defer daemonCtxCancel()

	runErr := make(chan error, 1)
	go func() {
		if err := d.StartAndManage(daemonCtx); err != nil && !errors.Is(err, context.Canceled) {
			runErr <- err
		}
		close(runErr)
	}()

	// Print --dev mode banner if required.
	if c.Dev {
		banner := fmt.Sprintf("healthd daemon running in 'dev' mode.\n\n"+
			"  Local API:\thttp://%s/api/v1\n"+
			"  OpenAPI UI:\thttp://%s/docs\n"+
			"  Metrics:\thttp://%s%s\n"+
			"  Config file:\t%s\n",
			addr, addr, addr, c.MetricsPath, flags.ConfigFile)

		if flags.LogPath != "" {
			banner += fmt.Sprintf("  Log file:\t%s => (%s)\n", flags.LogPath, flags.LogLevel)
		}

		banner += "\nPress Ctrl+C to stop.\n\n"
		_, _ = fmt.Fprint(cmd.OutOrStdout(), banner)
	}

	select {
	case <-daemonCtx.Done():
		logger.Info("Shutting down daemon")
		err := <-runErr // Wait for cleanup and deferred logging.
		return err      // Graceful Ctrl+C / SIGTERM.
	case err := <-runErr:
		if err != nil {
			logger.Error("daemon exited with error", "error", err)
		}
		return err // Propagate daemon failure.
	}
}

// address resolves the bind address: --dev, then --addr, then api.addr, then the default.
func (c *DaemonCmd) address(cmd *cobra.Command, cfg *config.Config) string {
	switch {
	case c.Dev:
		return devAddr
	case cmd.Flags().Changed(flagAddr):
		return strings.TrimSpace(c.Addr)
	case cfg.API != nil && cfg.API.Addr != nil:
		return strings.TrimSpace(*cfg.API.Addr)
	default:
		return defaultAddr
	}
}

// apiOptions layers flags that were set over the [api] section.
func (c *DaemonCmd) apiOptions(cmd *cobra.Command, cfg *config.Config) []daemon.APIOption {
	opts := daemon.APIOptionsFromConfig(cfg.API)

	if cmd.Flags().Changed(flagCORSEnable) {
		opts = append(opts, daemon.WithCORSEnabled(c.CORSEnable))
	}
	if cmd.Flags().Changed(flagCORSOrigins) {
		opts = append(opts, daemon.WithCORSAllowOrigins(c.CORSOrigins))
	}
	if cmd.Flags().Changed(flagShutdownTimeout) {
		opts = append(opts, daemon.WithShutdownTimeout(c.ShutdownTimeout))
	}
	if cmd.Flags().Changed(flagMetricsPath) {
		opts = append(opts, daemon.WithMetricsPath(c.MetricsPath))
	}

	return opts
}
