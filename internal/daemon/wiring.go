package daemon

import (
	"database/sql"
	stdErrors "errors"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-hclog"

	"github.com/mozilla-ai/healthd/internal/alert"
	"github.com/mozilla-ai/healthd/internal/checks"
	"github.com/mozilla-ai/healthd/internal/config"
	"github.com/mozilla-ai/healthd/internal/domain"
	"github.com/mozilla-ai/healthd/internal/pool"
	"github.com/mozilla-ai/healthd/internal/recovery"
)

// APIOptionsFromConfig converts the [api] section into API server options.
// Settings absent from the section keep their defaults.
func APIOptionsFromConfig(section *config.APISection) []APIOption {
	if section == nil {
		return nil
	}

	var opts []APIOption
	if section.ShutdownTimeout != nil {
		opts = append(opts, WithShutdownTimeout(section.ShutdownTimeout.Std()))
	}

	c := section.CORS
	if c == nil {
		return opts
	}
	if c.Enable != nil {
		opts = append(opts, WithCORSEnabled(*c.Enable))
	}
	if len(c.Origins) > 0 {
		opts = append(opts, WithCORSAllowOrigins(c.Origins))
	}
	if len(c.Methods) > 0 {
		opts = append(opts, WithCORSAllowMethods(c.Methods))
	}
	if len(c.Headers) > 0 {
		opts = append(opts, WithCORSAllowHeaders(c.Headers))
	}
	if len(c.ExposeHeaders) > 0 {
		opts = append(opts, WithCORSExposeHeaders(c.ExposeHeaders))
	}
	if c.Credentials != nil {
		opts = append(opts, WithCORSAllowCredentials(*c.Credentials))
	}
	if c.MaxAge != nil {
		opts = append(opts, WithCORSMaxAge(c.MaxAge.Std()))
	}
	return opts
}

// poolResources is the connection pool and what database checkers need to use it.
type poolResources struct {
	db      *sql.DB
	manager *pool.Manager
	dialect checks.Dialect
}

func (p *poolResources) close() error {
	if p == nil {
		return nil
	}
	return stdErrors.Join(p.manager.Close(), p.db.Close())
}

// openPool builds the connection pool described by section. A nil section means no pool.
func openPool(logger hclog.Logger, section *config.PoolSection) (*poolResources, error) {
	if section == nil {
		return nil, nil
	}

	opts, err := pool.NewOptions(section.Options()...)
	if err != nil {
		return nil, fmt.Errorf("invalid pool configuration: %w", err)
	}

	dialect, err := checks.DialectFor(section.Driver)
	if err != nil {
		return nil, err
	}

	db, err := pool.OpenSQL(section.Driver, section.DSN, opts.MaxSize)
	if err != nil {
		return nil, err
	}

	connector, err := pool.NewSQLConnector(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	manager, err := pool.NewManager(logger, connector, section.Options()...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &poolResources{db: db, manager: manager, dialect: dialect}, nil
}

// buildRecovery creates the recovery registry and its handlers.
// With a pool configured and no explicit database handler, database components recover by resetting the pool.
func buildRecovery(
	logger hclog.Logger,
	section *config.RecoverySection,
	resetter recovery.Resetter,
	client *http.Client,
) (*recovery.Registry, error) {
	var opts []recovery.Option
	var entries []config.HandlerEntry
	if section != nil {
		opts = section.Options()
		entries = section.Handlers
	}

	registry, err := recovery.NewRegistry(logger, opts...)
	if err != nil {
		return nil, err
	}

	databaseHandled := false
	for _, e := range entries {
		handler, err := recoveryHandler(e, resetter, client)
		if err != nil {
			return nil, fmt.Errorf("recovery handler for '%s': %w", e.ComponentType, err)
		}
		componentType := domain.ComponentType(e.ComponentType)
		if err := registry.Register(componentType, handler); err != nil {
			return nil, err
		}
		if componentType == domain.ComponentTypeDatabase {
			databaseHandled = true
		}
	}

	if !databaseHandled && !isNil(resetter) {
		handler, err := recovery.NewPoolResetHandler(resetter)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(domain.ComponentTypeDatabase, handler); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

func recoveryHandler(e config.HandlerEntry, resetter recovery.Resetter, client *http.Client) (recovery.Handler, error) {
	switch e.Kind {
	case config.HandlerPoolReset:
		if isNil(resetter) {
			return nil, fmt.Errorf("pool_reset handlers require a [pool] section")
		}
		return recovery.NewPoolResetHandler(resetter)
	case config.HandlerCommand:
		return recovery.NewCommandHandler(e.Command, e.Args, e.Env, e.Dir)
	case config.HandlerHTTP:
		return recovery.NewHTTPHandler(e.URL, e.Method, e.Headers, client)
	default:
		return nil, fmt.Errorf("unknown handler kind '%s'", e.Kind)
	}
}

// buildChannels creates the alert channels of section.
// Without any configured channel, alerts are written to the log.
func buildChannels(
	logger hclog.Logger,
	section *config.AlertsSection,
	console io.Writer,
	client *http.Client,
) (channels []alert.Channel, escalation []alert.Channel, err error) {
	var entries []config.ChannelEntry
	if section != nil {
		entries = section.Channels
	}

	if len(entries) == 0 {
		ch, err := alert.NewLogChannel(logger)
		if err != nil {
			return nil, nil, err
		}
		return []alert.Channel{ch}, nil, nil
	}

	for _, e := range entries {
		ch, err := alertChannel(logger, e, console, client)
		if err != nil {
			return nil, nil, fmt.Errorf("alert channel '%s': %w", e.Name, err)
		}
		if e.Escalation {
			escalation = append(escalation, ch)
			continue
		}
		channels = append(channels, ch)
	}

	if len(channels) == 0 {
		return nil, nil, fmt.Errorf("at least one alert channel must not be escalation-only")
	}
	return channels, escalation, nil
}

func alertChannel(logger hclog.Logger, e config.ChannelEntry, console io.Writer, client *http.Client) (alert.Channel, error) {
	switch e.Kind {
	case config.ChannelConsole:
		return alert.NewConsoleChannel(console)
	case config.ChannelLog:
		return alert.NewLogChannel(logger.Named(e.Name))
	case config.ChannelWebhook:
		return alert.NewWebhookChannel(e.Name, e.URL, e.Headers, client)
	case config.ChannelChat:
		return alert.NewChatWebhookChannel(e.Name, e.URL, client)
	case config.ChannelEmail:
		return alert.NewEmailChannel(alert.EmailConfig{
			Addr:     e.SMTPAddr,
			From:     e.From,
			To:       e.To,
			Username: e.Username,
			Password: e.Password,
		})
	default:
		return nil, fmt.Errorf("unknown channel kind '%s'", e.Kind)
	}
}
