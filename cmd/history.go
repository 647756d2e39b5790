package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mozilla-ai/healthd/internal/cmd"
	cmdopts "github.com/mozilla-ai/healthd/internal/cmd/options"
	"github.com/mozilla-ai/healthd/internal/config"
	"github.com/mozilla-ai/healthd/internal/daemon"
	"github.com/mozilla-ai/healthd/internal/flags"
)

// NewHistoryCmd creates the 'history' command group.
func NewHistoryCmd(baseCmd *cmd.BaseCmd, opt ...cmdopts.CmdOption) (*cobra.Command, error) {
	cobraCmd := &cobra.Command{
		Use:   "history",
		Short: "Manages recorded health history.",
	}

	prune, err := NewHistoryPruneCmd(baseCmd, opt...)
	if err != nil {
		return nil, err
	}
	cobraCmd.AddCommand(prune)

	return cobraCmd, nil
}

// HistoryPruneCmd represents the 'history prune' command.
type HistoryPruneCmd struct {
	*cmd.BaseCmd
	Before string

	cfgLoader  config.Loader
	daemonOpts []daemon.Option
	now        func() time.Time
}

// NewHistoryPruneCmd creates the command removing old probe results and events.
func NewHistoryPruneCmd(baseCmd *cmd.BaseCmd, opt ...cmdopts.CmdOption) (*cobra.Command, error) {
	opts, err := cmdopts.NewOptions(opt...)
	if err != nil {
		return nil, err
	}

	c := &HistoryPruneCmd{
		BaseCmd:    baseCmd,
		cfgLoader:  opts.ConfigLoader,
		daemonOpts: opts.DaemonOptions,
		now:        time.Now,
	}

	cobraCommand := &cobra.Command{
		Use:   "prune --before <time|duration>",
		Short: "Removes recorded history older than a point in time",
		Long: "Removes probe results and events recorded before the given RFC3339 time, " +
			"or before a duration ago (e.g. 168h), from the configured history store",
		RunE: c.run,
	}

	cobraCommand.Flags().StringVar(&c.Before, "before", "", "RFC3339 time or a duration before now")
	_ = cobraCommand.MarkFlagRequired("before")

	return cobraCommand, nil
}

func (c *HistoryPruneCmd) run(cobraCmd *cobra.Command, _ []string) error {
	logger, err := c.Logger()
	if err != nil {
		return err
	}

	before, err := parseBefore(c.Before, c.now())
	if err != nil {
		return err
	}

	cfg, err := c.cfgLoader.Load(flags.ConfigFile)
	if err != nil {
		return err
	}
	// Only the history store is needed.
	cfg.Components = nil

	deps, err := daemon.NewDependencies(logger, checkAddr, cfg)
	if err != nil {
		return err
	}
	d, err := daemon.NewDaemon(deps, c.daemonOpts...)
	if err != nil {
		return err
	}
	defer d.Close()

	removed, err := d.Prune(cobraCmd.Context(), before)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cobraCmd.OutOrStdout(), "🧹 Removed %d rows recorded before %s\n", removed, before.Format(time.RFC3339))
	return err
}

func parseBefore(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return time.Time{}, fmt.Errorf("--before must be an RFC3339 time or a positive duration, got '%s'", value)
	}
	return now.Add(-d), nil
}
