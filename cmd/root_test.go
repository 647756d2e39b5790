package cmd

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	cmdopts "github.com/mozilla-ai/healthd/internal/cmd/options"
)

func cmdoptsWithProvider(p *fakeConfigProvider) []cmdopts.CmdOption {
	return []cmdopts.CmdOption{
		cmdopts.WithConfigLoader(p),
		cmdopts.WithConfigInitializer(p),
	}
}

// NewRootCmd registers the global flags, which writes package-level flag values.
func TestNewRootCmd_Subcommands(t *testing.T) {
	root, err := NewRootCmd(quietBaseCmd(), cmdoptsWithProvider(&fakeConfigProvider{})...)
	require.NoError(t, err)
	require.True(t, root.SilenceUsage)
	require.True(t, root.SilenceErrors)

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	require.Subset(t, names, []string{"check", "config", "daemon", "history", "init"})

	for _, name := range []string{"config-file", "log-path", "log-level"} {
		require.NotNil(t, root.PersistentFlags().Lookup(name), name)
	}
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "unhealthy", err: ErrUnhealthy, want: 2},
		{name: "wrapped unhealthy", err: fmt.Errorf("%w: overall status is down", ErrUnhealthy), want: 2},
		{name: "other", err: errors.New("boom"), want: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, ExitCode(tc.err))
		})
	}
}
