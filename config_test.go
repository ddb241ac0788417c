package neemo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "neemo_db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "neemo> ", cfg.CLI.Prompt)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "neemo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /var/lib/neemo
logging:
  level: debug
cli:
  prompt: "db> "
`), 0666))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/neemo", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "db> ", cfg.CLI.Prompt)
	assert.Equal(t, "text", cfg.Logging.Format, "unset fields keep their defaults")
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("NEEMO_DB", "/tmp/envdb")
	t.Setenv("NEEMO_LOG_LEVEL", "warn")

	path := filepath.Join(t.TempDir(), "neemo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  path: from-file\n"), 0666))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/envdb", cfg.Database.Path, "environment wins over file")
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [not: a: mapping"), 0666))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}
