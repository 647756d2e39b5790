//go:build docsgen_api
// +build docsgen_api

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"

	"github.com/mozilla-ai/healthd/internal/alert"
	"github.com/mozilla-ai/healthd/internal/api"
	"github.com/mozilla-ai/healthd/internal/checks"
	"github.com/mozilla-ai/healthd/internal/daemon"
	"github.com/mozilla-ai/healthd/internal/monitor"
	"github.com/mozilla-ai/healthd/internal/perms"
	"github.com/mozilla-ai/healthd/internal/recovery"
)

// services builds idle API services; the OpenAPI spec only needs the route definitions.
func services(logger hclog.Logger) (api.Services, error) {
	m, err := monitor.New(monitor.Dependencies{Logger: logger})
	if err != nil {
		return api.Services{}, err
	}
	registrar, err := daemon.NewRegistrar(m, checks.Dependencies{})
	if err != nil {
		return api.Services{}, err
	}
	logChannel, err := alert.NewLogChannel(logger)
	if err != nil {
		return api.Services{}, err
	}
	alerts, err := alert.NewManager(logger, []alert.Channel{logChannel}, nil)
	if err != nil {
		return api.Services{}, err
	}
	registry, err := recovery.NewRegistry(logger)
	if err != nil {
		return api.Services{}, err
	}

	return api.Services{
		Monitor:    m,
		Components: registrar,
		Alerts:     alerts,
		Recovery:   registry,
	}, nil
}

// main generates the OpenAPI specification for the healthd API.
// It assumes it is run from the repository root.
func main() {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "healthd.docsgen.api",
		Level:  hclog.Info,
		Output: os.Stderr,
	})

	outputPath := "./docs/api/openapi.yaml"

	// Same router setup as the daemon.
	mux := chi.NewMux()
	mux.Use(middleware.StripSlashes)
	router := humachi.New(mux, huma.DefaultConfig("healthd docs", api.APIVersion))

	svc, err := services(logger.Named("stub"))
	if err != nil {
		logger.Error("failed to build API services", "error", err)
		os.Exit(1)
	}

	apiPathPrefix, err := api.RegisterRoutes(router, svc)
	if err != nil {
		logger.Error("failed to register API routes", "error", err)
		os.Exit(1)
	}
	logger.Info("Routes registered", "prefix", apiPathPrefix)

	yamlBytes, err := router.OpenAPI().YAML()
	if err != nil {
		logger.Error("failed to generate OpenAPI YAML", "error", err)
		os.Exit(1)
	}

	docsDir := filepath.Dir(outputPath)
	if err := os.MkdirAll(docsDir, perms.RegularDir); err != nil {
		logger.Error("failed to create docs directory", "path", docsDir, "error", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outputPath, yamlBytes, perms.RegularFile); err != nil {
		logger.Error("failed to write OpenAPI spec", "path", outputPath, "error", err)
		os.Exit(1)
	}

	logger.Info("OpenAPI spec generated", "path", outputPath, "size", fmt.Sprintf("%d bytes", len(yamlBytes)))
}
