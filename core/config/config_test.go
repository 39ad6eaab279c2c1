package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Equal(t, "gorm", cfg.Ledger.Driver)
	assert.Equal(t, 3, cfg.Ledger.RetryAttempts)
	assert.Equal(t, 1000, cfg.Ledger.HistoryLimit)
	assert.Equal(t, "history", cfg.Ledger.ArchivePrefix)
	assert.False(t, cfg.Storage.Enabled)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("LEDGER_DRIVER", "memory")
	t.Setenv("LEDGER_RETRY_ATTEMPTS", "5")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Ledger.Driver)
	assert.Equal(t, 5, cfg.Ledger.RetryAttempts)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DATABASE_DRIVER=sqlite\nDATABASE_NAME=:memory:\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("DATABASE_DRIVER")
		os.Unsetenv("DATABASE_NAME")
	})

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, ":memory:", cfg.Database.Name)
}

func TestLoadConfig_InvalidDriver(t *testing.T) {
	t.Setenv("LEDGER_DRIVER", "redis")

	_, err := LoadConfig(t.TempDir())
	assert.ErrorContains(t, err, "unknown ledger driver")
}
