package flags

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestConfig_InitConfigFile_EnvVars(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected string
	}{
		{
			name:     "env var value with extra white space",
			value:    "  /etc/healthd/config.toml  ",
			expected: "/etc/healthd/config.toml",
		},
		{
			name:     "env var missing",
			value:    "", // Implementation uses os.Getenv which returns an empty string when missing.
			expected: DefaultConfigFile,
		},
		{
			name:     "env var only white space",
			value:    "   ",
			expected: DefaultConfigFile,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(EnvVarConfigFile, tc.value)
			t.Cleanup(func() {
				// Reset global variable
				ConfigFile = ""
			})

			fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
			initConfigFile(fs)

			require.Equal(t, tc.expected, ConfigFile)
		})
	}
}

func TestConfig_InitLogger_EnvVars(t *testing.T) {
	t.Setenv(EnvVarLogPath, " /var/log/healthd.log ")
	t.Setenv(EnvVarLogLevel, "DEBUG")
	t.Cleanup(func() {
		LogPath = ""
		LogLevel = ""
	})

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	initLogger(fs)

	require.Equal(t, "/var/log/healthd.log", LogPath)
	require.Equal(t, "debug", LogLevel)
}

func TestConfig_InitFlags_FlagOverridesEnv(t *testing.T) {
	t.Setenv(EnvVarConfigFile, "/from/env.toml")
	t.Setenv(EnvVarLogLevel, "")
	t.Cleanup(func() {
		ConfigFile = ""
		LogPath = ""
		LogLevel = ""
	})

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	InitFlags(fs)

	require.Equal(t, "/from/env.toml", ConfigFile)
	require.Equal(t, DefaultLogLevel, LogLevel)

	require.NoError(t, fs.Parse([]string{"--" + FlagNameConfigFile, "/from/flag.toml", "--" + FlagNameLogLevel, "warn"}))
	require.Equal(t, "/from/flag.toml", ConfigFile)
	require.Equal(t, "warn", LogLevel)
}
