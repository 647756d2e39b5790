package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mozilla-ai/healthd/internal/cmd"
	cmdopts "github.com/mozilla-ai/healthd/internal/cmd/options"
	"github.com/mozilla-ai/healthd/internal/config"
	"github.com/mozilla-ai/healthd/internal/files"
	"github.com/mozilla-ai/healthd/internal/flags"
)

// InitCmd represents the 'init' command.
type InitCmd struct {
	*cmd.BaseCmd
	cfgInitializer config.Initializer
}

// NewInitCmd creates the command writing a starter configuration file.
func NewInitCmd(baseCmd *cmd.BaseCmd, opt ...cmdopts.CmdOption) (*cobra.Command, error) {
	opts, err := cmdopts.NewOptions(opt...)
	if err != nil {
		return nil, err
	}

	c := &InitCmd{
		BaseCmd:        baseCmd,
		cfgInitializer: opts.ConfigInitializer,
	}

	return &cobra.Command{
		Use:   "init",
		Short: "Creates a starter healthd configuration file",
		Long: fmt.Sprintf(
			"Creates a starter configuration monitoring the local host's resources.\n\n"+
				"The file defaults to %s in the current directory; use the `--%s` flag or the `%s` "+
				"environment variable to choose another path. Paths ending in .yaml or .yml get a YAML file.",
			flags.DefaultConfigFile,
			flags.FlagNameConfigFile,
			flags.EnvVarConfigFile,
		),
		Args: cobra.NoArgs,
		RunE: c.run,
	}, nil
}

func (c *InitCmd) run(cobraCmd *cobra.Command, _ []string) error {
	logger, err := c.Logger()
	if err != nil {
		return err
	}

	path, err := initPath(flags.ConfigFile)
	if err != nil {
		return err
	}
	if err := files.EnsureParentDir(path); err != nil {
		return fmt.Errorf("error preparing config directory: %w", err)
	}

	if err := c.cfgInitializer.Init(path); err != nil {
		logger.Error("Configuration initialization failed", "path", path, "error", err)
		return fmt.Errorf("error initializing healthd configuration: %w", err)
	}

	_, err = fmt.Fprintf(cobraCmd.OutOrStdout(),
		"✅ Config file created: %s\n\nRun '%s check' to probe the configured components once.\n",
		path, cmd.AppName())
	return err
}

// initPath anchors the default config file in the working directory.
func initPath(configured string) (string, error) {
	if configured != flags.DefaultConfigFile {
		return configured, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("error getting current directory: %w", err)
	}
	return filepath.Join(cwd, flags.DefaultConfigFile), nil
}
