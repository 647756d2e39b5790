// Package errors defines domain-level errors used throughout the application.
// These errors represent business logic failures and are mapped to appropriate HTTP status codes at the API boundary.
//
// NOTE: Important for developers
// When adding a new error here, you MUST consider how it should be handled when returned from API endpoints.
//
// Unmapped errors will default to HTTP 500 Internal Server Error.
//
// Don't forget to:
// 1. Add your error to mapError (internal/daemon/api_server.go)
// 2. Add a test case to TestMapError (internal/daemon/api_server_test.go)
// 3. Consider if existing handler tests need updates
package errors

import (
	"errors"
)

var (
	// ErrBadRequest indicates that the client provided invalid input or made a malformed request.
	// This typically results from validation failures or incorrect request parameters.
	// Recommended to map to HTTP 400 Bad Request.
	ErrBadRequest = errors.New("bad request")

	// ErrComponentNotFound indicates that no checker is registered for the requested component id.
	// Recommended to map to HTTP 404 Not Found.
	ErrComponentNotFound = errors.New("component not found")

	// ErrComponentExists indicates that a checker is already registered under the component id.
	// Recommended to map to HTTP 409 Conflict.
	ErrComponentExists = errors.New("component already registered")

	// ErrDataUnavailable indicates that no monitor cycle has completed yet, so there is no snapshot to report.
	// Callers receive this instead of a partial or invented aggregate.
	// Recommended to map to HTTP 503 Service Unavailable.
	ErrDataUnavailable = errors.New("health data unavailable")

	// ErrAlertNotFound indicates that the requested alert does not exist.
	// Recommended to map to HTTP 404 Not Found.
	ErrAlertNotFound = errors.New("alert not found")

	// ErrAlertResolved indicates an operation on an alert that has already been resolved.
	// Recommended to map to HTTP 409 Conflict.
	ErrAlertResolved = errors.New("alert already resolved")

	// ErrMonitorRunning indicates a request to start a monitor that is already running.
	// Recommended to map to HTTP 409 Conflict.
	ErrMonitorRunning = errors.New("monitor already running")

	// ErrMonitorStopped indicates a request that needs a running monitor, or to stop a stopped one.
	// Recommended to map to HTTP 409 Conflict.
	ErrMonitorStopped = errors.New("monitor not running")

	// ErrMonitorFailed indicates that the monitor stopped itself after an internal invariant was violated.
	// Recommended to map to HTTP 500 Internal Server Error.
	ErrMonitorFailed = errors.New("monitor failed")

	// ErrPoolNotConfigured indicates that pool operations were requested but no connection pool is configured.
	// Recommended to map to HTTP 404 Not Found.
	ErrPoolNotConfigured = errors.New("connection pool not configured")

	// ErrHistoryFailed indicates that the history store could not serve a query.
	// Recommended to map to HTTP 502 Bad Gateway.
	ErrHistoryFailed = errors.New("history query failed")
)
