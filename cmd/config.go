package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mozilla-ai/healthd/internal/cmd"
	cmdopts "github.com/mozilla-ai/healthd/internal/cmd/options"
	"github.com/mozilla-ai/healthd/internal/config"
	"github.com/mozilla-ai/healthd/internal/flags"
)

// NewConfigCmd creates the 'config' command group.
func NewConfigCmd(baseCmd *cmd.BaseCmd, opt ...cmdopts.CmdOption) (*cobra.Command, error) {
	cobraCmd := &cobra.Command{
		Use:   "config",
		Short: "Manages healthd configuration.",
		Long:  "Validates and inspects the healthd configuration file.",
	}

	fns := []createCmdFunc{
		NewConfigValidateCmd,
	}

	for _, fn := range fns {
		tempCmd, err := fn(baseCmd, opt...)
		if err != nil {
			return nil, err
		}
		cobraCmd.AddCommand(tempCmd)
	}

	return cobraCmd, nil
}

// ConfigValidateCmd represents the 'config validate' command.
type ConfigValidateCmd struct {
	*cmd.BaseCmd
	cfgLoader config.Loader
}

// NewConfigValidateCmd creates the command that loads and validates the configuration file.
func NewConfigValidateCmd(baseCmd *cmd.BaseCmd, opt ...cmdopts.CmdOption) (*cobra.Command, error) {
	opts, err := cmdopts.NewOptions(opt...)
	if err != nil {
		return nil, err
	}

	c := &ConfigValidateCmd{
		BaseCmd:   baseCmd,
		cfgLoader: opts.ConfigLoader,
	}

	return &cobra.Command{
		Use:   "validate",
		Short: "Validates the configuration file",
		RunE:  c.run,
	}, nil
}

func (c *ConfigValidateCmd) run(cobraCmd *cobra.Command, _ []string) error {
	cfg, err := c.cfgLoader.Load(flags.ConfigFile)
	if err != nil {
		return err
	}

	defs, err := cfg.Definitions()
	if err != nil {
		return err
	}

	out := cobraCmd.OutOrStdout()
	if _, err := fmt.Fprintf(out, "✅ %s is valid\n", flags.ConfigFile); err != nil {
		return err
	}
	for _, def := range defs {
		if _, err := fmt.Fprintf(out, "  %s (%s)\n", def.ID, def.Type); err != nil {
			return err
		}
	}
	return nil
}
