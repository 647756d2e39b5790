package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mozilla-ai/healthd/internal/cmd"
	cmdopts "github.com/mozilla-ai/healthd/internal/cmd/options"
	"github.com/mozilla-ai/healthd/internal/flags"
)

// ErrUnhealthy is returned by commands whose checks found the system critical or down.
var ErrUnhealthy = errors.New("system is unhealthy")

type RootCmd struct {
	*cmd.BaseCmd
}

type createCmdFunc func(baseCmd *cmd.BaseCmd, opt ...cmdopts.CmdOption) (*cobra.Command, error)

// Execute runs the healthd CLI.
func Execute() error {
	rootCmd, err := NewRootCmd(&cmd.BaseCmd{})
	if err != nil {
		return fmt.Errorf("error creating root command: %w", err)
	}

	return rootCmd.Execute()
}

// ExitCode maps an Execute error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUnhealthy):
		return 2
	default:
		return 1
	}
}

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd(baseCmd *cmd.BaseCmd, opt ...cmdopts.CmdOption) (*cobra.Command, error) {
	c := &RootCmd{
		BaseCmd: baseCmd,
	}

	rootCmd := &cobra.Command{
		Use:           cmd.AppName() + " <command> [args]",
		Short:         "'healthd' monitors the health of databases and the services around them.",
		Long:          c.longDescription(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       cmd.Version(),
	}

	// Global flags
	flags.InitFlags(rootCmd.PersistentFlags())

	fns := []createCmdFunc{
		NewInitCmd,
		NewDaemonCmd,
		NewCheckCmd,
		NewConfigCmd,
		NewHistoryCmd,
	}

	for _, fn := range fns {
		tempCmd, err := fn(baseCmd, opt...)
		if err != nil {
			return nil, err
		}
		rootCmd.AddCommand(tempCmd)
	}

	return rootCmd, nil
}

func (c *RootCmd) longDescription() string {
	return `The 'healthd' CLI runs the health monitoring daemon, performs one-off health checks,
and manages the configuration and recorded history of monitored components.`
}
