package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/mozilla-ai/healthd/internal/files"
	"github.com/mozilla-ai/healthd/internal/flags"
	"github.com/mozilla-ai/healthd/internal/perms"
)

// BaseCmd holds what every healthd command shares.
type BaseCmd struct {
	logger hclog.Logger
}

// SetLogger updates the command's logger.
func (c *BaseCmd) SetLogger(logger hclog.Logger) {
	c.logger = logger
}

// Logger returns the command's logger, creating it from the log flags on first use.
// Logs go to stderr unless a log path is set.
func (c *BaseCmd) Logger() (hclog.Logger, error) {
	if c.logger != nil {
		return c.logger, nil
	}

	var output io.Writer = os.Stderr
	if logPath := strings.TrimSpace(flags.LogPath); logPath != "" {
		if err := files.EnsureParentDir(logPath); err != nil {
			return nil, fmt.Errorf("failed to prepare log file (%s): %w", logPath, err)
		}
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, perms.RegularFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file (%s): %w", logPath, err)
		}
		output = f
	}

	c.logger = hclog.New(&hclog.LoggerOptions{
		Name:   AppName(),
		Level:  hclog.LevelFromString(LogLevel(flags.LogLevel)),
		Output: output,
	})

	return c.logger, nil
}

// LogLevel normalizes a configured log level, falling back to the default for unknown values.
func LogLevel(level string) string {
	lvl := strings.ToLower(strings.TrimSpace(level))
	switch lvl {
	case "trace", "debug", "info", "warn", "error", "off":
		return lvl
	default:
		return flags.DefaultLogLevel
	}
}
