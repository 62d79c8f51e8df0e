// Package config assembles the connection and cache settings the
// Lucid query engine needs to build a Driver and a Query Cache
// Manager. Mirrors Astra's config/database.go, generalised from a
// PostgreSQL-only shape to spec.md §6's {host, port, database,
// username, password, driver, max pool size, cache settings}.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/astra-lucid/lucidorm/contracts"
)

// CacheConfig mirrors spec.md §6's cache settings object.
type CacheConfig struct {
	// InvalidateCacheOnWrite toggles the ORM-level write-invalidation
	// policy (spec.md §4.11). Defaults to true.
	InvalidateCacheOnWrite bool `yaml:"invalidate_cache_on_write"`

	// MaxKeysPerTable is the per-namespace key limit for the caller to
	// pass to cache.NewMemoryStore. Defaults to 10000. orm.New does not
	// read it; the eviction limit is whatever the cache.Manager passed
	// to orm.New was built with.
	MaxKeysPerTable int `yaml:"max_keys_per_table" validate:"omitempty,min=1"`

	// RedisAddr is the Redis address for the caller to build a
	// cache.RedisStore from. orm.New does not read it and builds no
	// cache store of its own.
	RedisAddr string `yaml:"redis_addr"`
}

// Config is the connection configuration accepted by orm.New.
type Config struct {
	Driver        contracts.DBType `yaml:"driver" validate:"required,oneof=postgres mysql"`
	Host          string           `yaml:"host" validate:"required"`
	Port          int              `yaml:"port" validate:"required,gt=0"`
	Database      string           `yaml:"database" validate:"required"`
	Username      string           `yaml:"username"`
	Password      string           `yaml:"password"`
	SSLMode       string           `yaml:"ssl_mode"`
	MaxPoolSize   int              `yaml:"max_pool_size" validate:"omitempty,min=1"`
	MigrationPath string           `yaml:"migration_path"`
	Cache         CacheConfig      `yaml:"cache"`
}

var validate = validator.New()

// DefaultConfig returns sensible defaults, mirroring
// Astra's DefaultDatabaseConfig.
func DefaultConfig() Config {
	return Config{
		Driver:      contracts.Postgres,
		Host:        "127.0.0.1",
		Port:        5432,
		Database:    "lucid_dev",
		Username:    "postgres",
		SSLMode:     "disable",
		MaxPoolSize: 10,
		Cache: CacheConfig{
			InvalidateCacheOnWrite: true,
			MaxKeysPerTable:        10_000,
		},
	}
}

// Load assembles a Config from the process environment, falling back
// to DefaultConfig for anything unset. spec.md §6: "DB_DRIVER=mysql|postgres
// selects a default driver when the config does not pin one."
func Load() (Config, error) {
	cfg := DefaultConfig()

	if driver := EnvGet("DB_DRIVER"); driver != "" {
		cfg.Driver = contracts.DBType(driver)
	}
	cfg.Host = EnvGet("DB_HOST", cfg.Host)
	cfg.Port = EnvGetInt("DB_PORT", cfg.Port)
	cfg.Database = EnvGet("DB_DATABASE", cfg.Database)
	cfg.Username = EnvGet("DB_USER", cfg.Username)
	cfg.Password = EnvGet("DB_PASSWORD", cfg.Password)
	cfg.SSLMode = EnvGet("DB_SSLMODE", cfg.SSLMode)
	cfg.MaxPoolSize = EnvGetInt("DB_MAX_POOL_SIZE", cfg.MaxPoolSize)
	cfg.MigrationPath = EnvGet("DB_MIGRATION_PATH", cfg.MigrationPath)
	cfg.Cache.InvalidateCacheOnWrite = EnvGetBool("DB_CACHE_INVALIDATE_ON_WRITE", cfg.Cache.InvalidateCacheOnWrite)
	cfg.Cache.MaxKeysPerTable = EnvGetInt("DB_CACHE_MAX_KEYS_PER_TABLE", cfg.Cache.MaxKeysPerTable)
	cfg.Cache.RedisAddr = EnvGet("DB_CACHE_REDIS_ADDR", cfg.Cache.RedisAddr)

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile reads a YAML configuration file, layering DefaultConfig
// underneath it, then validates the result. Mirrors Astra's layered
// config/database.go + config/app.go construction, generalised to a
// single file instead of Go source defaults.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config: invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

// DSN assembles a PostgreSQL/MySQL-style connection string appropriate
// to cfg.Driver. Drivers are free to build their own DSN from the
// struct fields directly; this is a convenience for the common case.
func (c Config) DSN() string {
	switch c.Driver {
	case contracts.MySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.Username, c.Password, c.Host, c.Port, c.Database)
	default:
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.Username, c.Password, c.Database, sslMode)
	}
}
