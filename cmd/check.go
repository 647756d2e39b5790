package cmd

import (
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mozilla-ai/healthd/internal/cmd"
	cmdopts "github.com/mozilla-ai/healthd/internal/cmd/options"
	"github.com/mozilla-ai/healthd/internal/cmd/output"
	"github.com/mozilla-ai/healthd/internal/config"
	"github.com/mozilla-ai/healthd/internal/daemon"
	"github.com/mozilla-ai/healthd/internal/domain"
	"github.com/mozilla-ai/healthd/internal/flags"
)

// checkAddr satisfies daemon address validation; a one-off check never serves the API.
const checkAddr = "localhost:0"

// CheckCmd represents the 'check' command.
type CheckCmd struct {
	*cmd.BaseCmd
	Format cmd.OutputFormat

	cfgLoader  config.Loader
	daemonOpts []daemon.Option
}

// NewCheckCmd creates the command probing every configured component once.
func NewCheckCmd(baseCmd *cmd.BaseCmd, opt ...cmdopts.CmdOption) (*cobra.Command, error) {
	opts, err := cmdopts.NewOptions(opt...)
	if err != nil {
		return nil, err
	}

	c := &CheckCmd{
		BaseCmd:    baseCmd,
		Format:     cmd.FormatText,
		cfgLoader:  opts.ConfigLoader,
		daemonOpts: opts.DaemonOptions,
	}

	cobraCommand := &cobra.Command{
		Use:   "check",
		Short: "Probes every configured component once and reports their health",
		Long: "Probes every configured component once, without recovery, and reports their health. " +
			"Exits with status 2 when the overall status is critical or down.",
		RunE: c.run,
	}

	allowed := cmd.AllowedOutputFormats()
	cobraCommand.Flags().Var(
		&c.Format,
		"format",
		fmt.Sprintf("Specify the output format (one of: %s)", allowed.String()),
	)

	return cobraCommand, nil
}

func (c *CheckCmd) run(cobraCmd *cobra.Command, _ []string) error {
	logger, err := c.Logger()
	if err != nil {
		return err
	}

	cfg, err := c.cfgLoader.Load(flags.ConfigFile)
	if err != nil {
		return err
	}

	deps, err := daemon.NewDependencies(logger, checkAddr, cfg)
	if err != nil {
		return err
	}

	daemonOpts := append([]daemon.Option{daemon.WithRecoveryDisabled()}, c.daemonOpts...)
	d, err := daemon.NewDaemon(deps, daemonOpts...)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := signal.NotifyContext(cobraCmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	snapshot, err := d.CheckOnce(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	handler, err := cmd.NewOutputHandler[domain.ComponentHealth](
		c.Format,
		cobraCmd.OutOrStdout(),
		&componentPrinter{overall: snapshot.OverallStatus, stats: snapshot.Statistics},
	)
	if err != nil {
		return err
	}

	ids := slices.Sorted(maps.Keys(snapshot.Components))
	components := make([]domain.ComponentHealth, 0, len(ids))
	for _, id := range ids {
		components = append(components, snapshot.Components[id])
	}
	if err := handler.HandleResults(components...); err != nil {
		return err
	}

	if snapshot.OverallStatus >= domain.StatusCritical {
		return fmt.Errorf("%w: overall status is %s", ErrUnhealthy, snapshot.OverallStatus)
	}
	return nil
}

var _ output.Printer[domain.ComponentHealth] = (*componentPrinter)(nil)

// componentPrinter renders component health as a table.
type componentPrinter struct {
	overall domain.Status
	stats   domain.Statistics
	tw      *tabwriter.Writer
}

func (p *componentPrinter) Header(w io.Writer, _ int) {
	p.tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(p.tw, "COMPONENT\tTYPE\tSTATUS\tMETRICS\tERROR")
}

func (p *componentPrinter) Item(_ io.Writer, c domain.ComponentHealth) error {
	metrics := make([]string, 0, len(c.Metrics))
	for _, m := range c.Metrics {
		metrics = append(metrics, fmt.Sprintf("%s=%.2f%s", m.Name, m.Value, m.Unit))
	}
	_, err := fmt.Fprintf(p.tw, "%s\t%s\t%s\t%s\t%s\n",
		c.ID, c.Type, c.Status, strings.Join(metrics, " "), c.LastError)
	return err
}

func (p *componentPrinter) Footer(w io.Writer, _ int) {
	_ = p.tw.Flush()
	_, _ = fmt.Fprintf(w, "\nOverall: %s (%d healthy, %d warning, %d critical, %d down)\n",
		p.overall, p.stats.Healthy, p.stats.Warning, p.stats.Critical, p.stats.Down)
}
