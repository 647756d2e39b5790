// Package files locates and prepares the on-disk paths healthd writes to.
package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mozilla-ai/healthd/internal/perms"
)

// EnvVarXDGDataHome is the XDG Base Directory env var name for data files.
const EnvVarXDGDataHome = "XDG_DATA_HOME"

// HistoryDatabaseName is the file name of the default SQLite history store.
const HistoryDatabaseName = "history.db"

// AppDirName returns the name of the application directory for use in user-specific operations where data is being written.
func AppDirName() string {
	return "healthd"
}

// UserSpecificDataDir returns the directory that should be used to store user-specific data such as recorded history.
// It adheres to the XDG Base Directory Specification, respecting the XDG_DATA_HOME environment variable.
// When XDG_DATA_HOME is not set, it defaults to ~/.local/share/healthd
// See: https://specifications.freedesktop.org/basedir-spec/latest/
func UserSpecificDataDir() (string, error) {
	return userSpecificDir(EnvVarXDGDataHome, filepath.Join(".local", "share"))
}

// DefaultHistoryDatabase returns the path of the SQLite history store used when no dsn is configured.
// It returns an empty string when no data directory can be determined.
func DefaultHistoryDatabase() string {
	dir, err := UserSpecificDataDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, HistoryDatabaseName)
}

// EnsureParentDir creates the directory containing path with regular permissions if it doesn't exist.
// An existing parent must be a directory; its permissions are left alone.
func EnsureParentDir(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, perms.RegularDir); err != nil {
		return fmt.Errorf("could not ensure directory exists for '%s': %w", path, err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("could not stat directory '%s': %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path '%s' is not a directory", dir)
	}

	return nil
}

// EnsureFile creates an empty file at path with perm if nothing exists there yet.
// Existing files are left untouched.
func EnsureFile(path string, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if errors.Is(err, os.ErrExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not create file '%s': %w", path, err)
	}
	return f.Close()
}

// userSpecificDir returns a user-specific directory following XDG Base Directory Specification.
// It respects the given environment variable, falling back to homeDir/dir/AppDirName() if not set.
// The envVar must have XDG_ prefix to follow the specification.
func userSpecificDir(envVar string, dir string) (string, error) {
	envVar = strings.TrimSpace(envVar)
	if !strings.HasPrefix(envVar, "XDG_") {
		return "", fmt.Errorf(
			"environment variable '%s' does not follow XDG Base Directory Specification",
			envVar,
		)
	}

	if ch, ok := os.LookupEnv(envVar); ok && strings.TrimSpace(ch) != "" {
		home := strings.TrimSpace(ch)
		if filepath.IsAbs(home) {
			return filepath.Join(home, AppDirName()), nil
		}

		return "", fmt.Errorf("environment variable '%s' must be an absolute path, got: %s", envVar, home)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, dir, AppDirName()), nil
}
