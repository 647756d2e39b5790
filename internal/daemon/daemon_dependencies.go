package daemon

import (
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/mozilla-ai/healthd/internal/config"
)

// Dependencies are what every Daemon needs: where to serve the API, where to log,
// and the configuration describing the monitored components.
type Dependencies struct {
	APIAddr string
	Logger  hclog.Logger
	Config  *config.Config
}

// NewDependencies returns validated Dependencies.
func NewDependencies(logger hclog.Logger, apiAddr string, cfg *config.Config) (Dependencies, error) {
	deps := Dependencies{APIAddr: apiAddr, Logger: logger, Config: cfg}
	if err := deps.Validate(); err != nil {
		return Dependencies{}, err
	}
	return deps, nil
}

// Validate checks the logger, the API address and then the configuration itself.
func (d Dependencies) Validate() error {
	if isNil(d.Logger) {
		return fmt.Errorf("logger cannot be nil")
	}
	if err := validateAddr(d.APIAddr); err != nil {
		return fmt.Errorf("invalid API address '%s': %w", d.APIAddr, err)
	}
	if d.Config == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	return d.Config.Validate()
}
