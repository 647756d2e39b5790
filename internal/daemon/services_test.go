package daemon

import (
	"context"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/mozilla-ai/healthd/internal/alert"
	"github.com/mozilla-ai/healthd/internal/api"
	"github.com/mozilla-ai/healthd/internal/checks"
	"github.com/mozilla-ai/healthd/internal/monitor"
	"github.com/mozilla-ai/healthd/internal/recovery"
)

// testServices builds the API services over a stopped monitor with no components.
func testServices(t *testing.T) api.Services {
	t.Helper()

	logger := hclog.NewNullLogger()

	m, err := monitor.New(monitor.Dependencies{Logger: logger})
	require.NoError(t, err)

	registrar, err := NewRegistrar(m, checks.Dependencies{})
	require.NoError(t, err)

	logChannel, err := alert.NewLogChannel(logger)
	require.NoError(t, err)
	alerts, err := alert.NewManager(logger, []alert.Channel{logChannel}, nil)
	require.NoError(t, err)

	registry, err := recovery.NewRegistry(logger)
	require.NoError(t, err)

	return api.Services{
		Monitor:    m,
		Components: registrar,
		Alerts:     alerts,
		Recovery:   registry,
	}
}

type stubResetter struct {
	resets int
}

func (s *stubResetter) Reset(context.Context) error {
	s.resets++
	return nil
}
