package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astra-lucid/lucidorm/contracts"
)

func TestLoadFallsBackToDefaults(t *testing.T) {
	for _, k := range []string{"DB_DRIVER", "DB_HOST", "DB_PORT", "DB_DATABASE"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, contracts.Postgres, cfg.Driver)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
}

func TestLoadHonoursEnvironmentOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_DATABASE", "lucid_prod")
	t.Setenv("DB_CACHE_INVALIDATE_ON_WRITE", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, contracts.MySQL, cfg.Driver)
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 3306, cfg.Port)
	assert.Equal(t, "lucid_prod", cfg.Database)
	assert.False(t, cfg.Cache.InvalidateCacheOnWrite)
}

func TestLoadFileParsesYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lucid.yaml")
	contents := "driver: mysql\nhost: yaml-host\nport: 3306\ndatabase: yaml_db\ncache:\n  max_keys_per_table: 500\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, contracts.MySQL, cfg.Driver)
	assert.Equal(t, "yaml-host", cfg.Host)
	assert.Equal(t, "yaml_db", cfg.Database)
	assert.Equal(t, 500, cfg.Cache.MaxKeysPerTable)
}

func TestLoadFileRejectsMissingRequiredField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lucid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("driver: postgres\nhost: \"\"\nport: 0\n"), 0o600))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestDSNFormatsPostgresAndMySQLDifferently(t *testing.T) {
	pg := Config{Driver: contracts.Postgres, Host: "h", Port: 5432, Username: "u", Password: "p", Database: "d"}
	assert.Contains(t, pg.DSN(), "host=h")
	assert.Contains(t, pg.DSN(), "sslmode=disable")

	my := Config{Driver: contracts.MySQL, Host: "h", Port: 3306, Username: "u", Password: "p", Database: "d"}
	assert.Contains(t, my.DSN(), "tcp(h:3306)")
	assert.Contains(t, my.DSN(), "u:p@")
}
