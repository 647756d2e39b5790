package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mozilla-ai/healthd/internal/perms"
)

func TestAppDirName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "healthd", AppDirName())
}

func TestUserSpecificDataDir(t *testing.T) {
	tests := []struct {
		name        string
		xdgValue    string
		expectedDir func(t *testing.T) string
	}{
		{
			name:     "XDG_DATA_HOME is set and used",
			xdgValue: "/custom/data/path",
			expectedDir: func(t *testing.T) string {
				return filepath.Join("/custom/data/path", AppDirName())
			},
		},
		{
			name:     "XDG_DATA_HOME is set with whitespace and trimmed",
			xdgValue: "  /trimmed/data/path  ",
			expectedDir: func(t *testing.T) string {
				return filepath.Join("/trimmed/data/path", AppDirName())
			},
		},
		{
			name:     "XDG_DATA_HOME is empty, fall back to default",
			xdgValue: "",
			expectedDir: func(t *testing.T) string {
				home, err := os.UserHomeDir()
				require.NoError(t, err)
				return filepath.Join(home, ".local", "share", AppDirName())
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(EnvVarXDGDataHome, tc.xdgValue)

			result, err := UserSpecificDataDir()
			require.NoError(t, err)
			require.Equal(t, tc.expectedDir(t), result)
		})
	}
}

func TestUserSpecificDataDir_RelativePath(t *testing.T) {
	t.Setenv(EnvVarXDGDataHome, "relative/data")

	_, err := UserSpecificDataDir()
	require.ErrorContains(t, err, "must be an absolute path")
	require.Empty(t, DefaultHistoryDatabase())
}

func TestDefaultHistoryDatabase(t *testing.T) {
	t.Setenv(EnvVarXDGDataHome, "/var/lib/custom")

	require.Equal(t, filepath.Join("/var/lib/custom", "healthd", HistoryDatabaseName), DefaultHistoryDatabase())
}

func TestUserSpecificDir_InvalidEnvVar(t *testing.T) {
	t.Parallel()

	for _, envVar := range []string{"DATA_HOME", "", "CACHE_HOME"} {
		_, err := userSpecificDir(envVar, ".local/share")
		require.ErrorContains(t, err, "does not follow XDG Base Directory Specification")
	}
}

func TestEnsureParentDir(t *testing.T) {
	t.Parallel()

	t.Run("creates missing parents", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "a", "b", "history.db")
		require.NoError(t, EnsureParentDir(path))

		info, err := os.Stat(filepath.Dir(path))
		require.NoError(t, err)
		require.True(t, info.IsDir())
	})

	t.Run("existing parent", func(t *testing.T) {
		t.Parallel()

		require.NoError(t, EnsureParentDir(filepath.Join(t.TempDir(), "healthd.log")))
	})

	t.Run("parent is a file", func(t *testing.T) {
		t.Parallel()

		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), perms.RegularFile))

		require.Error(t, EnsureParentDir(filepath.Join(file, "history.db")))
	})

	t.Run("empty path", func(t *testing.T) {
		t.Parallel()

		require.ErrorContains(t, EnsureParentDir("  "), "path cannot be empty")
	})
}

func TestEnsureFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.db")
	require.NoError(t, EnsureFile(path, perms.SecureFile))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, perms.SecureFile, info.Mode().Perm())

	require.NoError(t, os.WriteFile(path, []byte("rows"), perms.SecureFile))
	require.NoError(t, EnsureFile(path, perms.RegularFile))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "rows", string(data))
}
