package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/mozilla-ai/healthd/internal/cmd"
	"github.com/mozilla-ai/healthd/internal/config"
)

// fakeConfigProvider implements config.Provider for testing.
type fakeConfigProvider struct {
	cfg     *config.Config
	err     error
	initErr error
	inits   []string
}

func (f *fakeConfigProvider) Load(_ string) (*config.Config, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cfg, nil
}

func (f *fakeConfigProvider) Init(path string) error {
	f.inits = append(f.inits, path)
	return f.initErr
}

func quietBaseCmd() *cmd.BaseCmd {
	base := &cmd.BaseCmd{}
	base.SetLogger(hclog.NewNullLogger())
	return base
}

// edgeConfig returns a memory-backed config with one external_api component answering status.
func edgeConfig(t *testing.T, status int) *config.Config {
	t.Helper()

	edge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(edge.Close)

	return &config.Config{
		History: &config.HistorySection{Driver: "memory"},
		Components: []config.ComponentEntry{
			{ID: "edge", Type: "external_api", URL: edge.URL},
		},
	}
}

func execute(t *testing.T, c *cobra.Command, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	c.SetOut(&out)
	c.SetErr(&bytes.Buffer{})
	c.SetArgs(args)
	err := c.Execute()
	return out.String(), err
}

func newCmd(t *testing.T, fn createCmdFunc, provider *fakeConfigProvider) *cobra.Command {
	t.Helper()

	c, err := fn(
		quietBaseCmd(),
		cmdoptsWithProvider(provider)...,
	)
	require.NoError(t, err)
	return c
}
