// Package flags holds the global flags shared by every healthd command.
// Each value is resolved once: an explicit flag wins over its environment variable,
// which wins over the default.
package flags

import (
	"os"
	"strings"

	"github.com/spf13/pflag"
)

const (
	EnvVarConfigFile = "HEALTHD_CONFIG_FILE"
	EnvVarLogPath    = "HEALTHD_LOG_PATH"
	EnvVarLogLevel   = "HEALTHD_LOG_LEVEL"

	DefaultConfigFile = ".healthd.toml"
	DefaultLogPath    = ""
	DefaultLogLevel   = "info"

	FlagNameConfigFile = "config-file"
	FlagNameLogPath    = "log-path"
	FlagNameLogLevel   = "log-level"
)

var (
	// ConfigFile is the TOML or YAML configuration file commands load.
	ConfigFile string

	// LogPath is the file logs are appended to; empty means stderr.
	LogPath string

	// LogLevel is the hclog level name.
	LogLevel string
)

// InitFlags registers the global flags on fs.
func InitFlags(fs *pflag.FlagSet) {
	initConfigFile(fs)
	initLogger(fs)
}

func initConfigFile(fs *pflag.FlagSet) {
	resolve(&ConfigFile, EnvVarConfigFile, DefaultConfigFile)
	fs.StringVar(&ConfigFile, FlagNameConfigFile, ConfigFile, "path to the healthd config file (TOML, or YAML by extension)")
}

func initLogger(fs *pflag.FlagSet) {
	resolve(&LogPath, EnvVarLogPath, DefaultLogPath)
	fs.StringVar(&LogPath, FlagNameLogPath, LogPath, "append logs to this file instead of stderr")

	resolve(&LogLevel, EnvVarLogLevel, DefaultLogLevel)
	LogLevel = strings.ToLower(LogLevel)
	fs.StringVar(&LogLevel, FlagNameLogLevel, LogLevel, "log level (trace, debug, info, warn, error, off)")
}

// resolve fills an unset value from envVar, falling back to def.
func resolve(value *string, envVar string, def string) {
	if *value != "" {
		return
	}
	if env := strings.TrimSpace(os.Getenv(envVar)); env != "" {
		*value = env
		return
	}
	*value = def
}
