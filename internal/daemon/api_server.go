package daemon

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hashicorp/go-hclog"

	"github.com/mozilla-ai/healthd/internal/api"
	"github.com/mozilla-ai/healthd/internal/cmd"
	"github.com/mozilla-ai/healthd/internal/errors"
)

// APIServer serves the versioned health API, its OpenAPI docs and the metrics exposition.
type APIServer struct {
	logger   hclog.Logger
	services api.Services
	metrics  http.Handler
	addr     string

	cors              CORSConfig
	shutdownTimeout   time.Duration
	metricsPath       string
	readHeaderTimeout time.Duration
}

// NewAPIServer validates deps and applies opt over the default API options.
func NewAPIServer(deps APIDependencies, opt ...APIOption) (*APIServer, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies for API server: %w", err)
	}
	o, err := NewAPIOptions(opt...)
	if err != nil {
		return nil, fmt.Errorf("invalid API options: %w", err)
	}

	return &APIServer{
		logger:            deps.Logger.Named("api"),
		services:          deps.Services,
		metrics:           deps.Metrics,
		addr:              deps.Addr,
		cors:              o.CORS,
		shutdownTimeout:   o.ShutdownTimeout,
		metricsPath:       o.MetricsPath,
		readHeaderTimeout: o.ReadHeaderTimeout,
	}, nil
}

// Handler builds the router serving the versioned API, its docs and the metrics exposition.
func (a *APIServer) Handler() (http.Handler, string, error) {
	mux := chi.NewMux()
	mux.Use(middleware.StripSlashes)
	mux.Use(middleware.Recoverer)

	if a.cors.Enabled {
		a.applyCORS(mux)
	}

	if a.metrics != nil {
		mux.Handle(a.metricsPath, a.metrics)
	}

	config := huma.DefaultConfig("healthd docs", cmd.Version())
	router := humachi.New(mux, config)

	huma.NewErrorWithContext = errorHandler(a.logger)

	apiPathPrefix, err := api.RegisterRoutes(router, a.services)
	if err != nil {
		return nil, "", err
	}

	return mux, apiPathPrefix, nil
}

// Start serves until ctx is canceled, then shuts down within the shutdown timeout.
// It returns ctx.Err() after a graceful stop, or the listener error.
func (a *APIServer) Start(ctx context.Context) error {
	handler, apiPathPrefix, err := a.Handler()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.addr,
		Handler:           handler,
		ReadHeaderTimeout: a.readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	a.logger.Info("Starting API server", "address", a.addr, "prefix", apiPathPrefix)
	if a.metrics != nil {
		a.logger.Info("Serving metrics", "path", a.metricsPath)
	}

	served := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if stdErrors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		served <- err
	}()

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("API server did not shut down cleanly", "error", err)
	} else {
		a.logger.Info("API server stopped")
	}
	return ctx.Err()
}

// applyCORS installs go-chi/cors with the configured options.
func (a *APIServer) applyCORS(mux *chi.Mux) {
	a.logger.Info("Enabling CORS", "origins", a.cors.AllowOrigins)

	corsOptions := cors.Options{
		AllowedOrigins:   a.cors.AllowOrigins,
		AllowedMethods:   a.cors.AllowMethods,
		AllowedHeaders:   a.cors.AllowedHeaders,
		ExposedHeaders:   a.cors.ExposedHeaders,
		AllowCredentials: a.cors.AllowCredentials,
		MaxAge:           int(a.cors.MaxAge.Seconds()),
	}

	// A wildcard replaces the whole list and never allows credentials.
	for i, origin := range corsOptions.AllowedOrigins {
		if origin == "*" {
			corsOptions.AllowedOrigins = []string{"*"}
			corsOptions.AllowCredentials = false
			break
		}
		corsOptions.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	mux.Use(cors.Handler(corsOptions))
}

// statusFor lists the HTTP status of every API-visible error in internal/errors.
// Errors missing here are reported as 500.
var statusFor = []struct {
	err    error
	status int
}{
	{errors.ErrBadRequest, http.StatusBadRequest},
	{errors.ErrComponentNotFound, http.StatusNotFound},
	{errors.ErrAlertNotFound, http.StatusNotFound},
	{errors.ErrPoolNotConfigured, http.StatusNotFound},
	{errors.ErrComponentExists, http.StatusConflict},
	{errors.ErrAlertResolved, http.StatusConflict},
	{errors.ErrMonitorRunning, http.StatusConflict},
	{errors.ErrMonitorStopped, http.StatusConflict},
	{errors.ErrDataUnavailable, http.StatusServiceUnavailable},
}

// mapError converts a handler error into an API error.
// History and monitor failures are logged and reported without internal detail.
func mapError(logger hclog.Logger, err error) huma.StatusError {
	for _, m := range statusFor {
		if stdErrors.Is(err, m.err) {
			return huma.NewError(m.status, err.Error())
		}
	}

	switch {
	case stdErrors.Is(err, errors.ErrHistoryFailed):
		logger.Error("History query failed", "error", err)
		return huma.Error502BadGateway("History store error", err)
	case stdErrors.Is(err, errors.ErrMonitorFailed):
		logger.Error("Monitor failed", "error", err)
		return huma.Error500InternalServerError("Monitor failed", err)
	default:
		logger.Error("Unexpected error serving health API", "error", err)
		return huma.Error500InternalServerError("Internal server error", err)
	}
}

// errorHandler replaces huma.NewErrorWithContext. Errors huma raises itself with a
// client status (request validation) pass through; handler errors arrive as 500 and are mapped.
func errorHandler(logger hclog.Logger) func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
	return func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status != http.StatusInternalServerError {
			return huma.NewError(status, msg, errs...)
		}
		if len(errs) == 0 {
			return huma.NewError(status, msg)
		}
		return mapError(logger, stdErrors.Join(errs...))
	}
}
