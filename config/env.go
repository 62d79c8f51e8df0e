// Package config provides environment variable loading and typed
// configuration access for the Lucid query engine's connection and
// cache settings. Mirrors Astra's config/env.go module, re-pointed
// from a hand-rolled ".env" scanner onto godotenv.
//
// Usage:
//
//	config.LoadEnv(".env")               // loads .env file into os environment
//	config.LoadEnv(".env.production")    // override with production settings
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv loads a .env file into the process environment. Existing
// environment variables are NOT overwritten (real env takes
// precedence). A missing file is not an error — .env is optional.
func LoadEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}

// LoadEnvOverride loads a .env file, overwriting existing variables.
func LoadEnvOverride(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Overload(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════
// Typed Environment Getters
// ══════════════════════════════════════════════════════════════════════

// EnvGet returns an environment variable value or a default.
func EnvGet(key string, defaultValue ...string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

// EnvGetOrFail returns an environment variable value or panics.
func EnvGetOrFail(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("config: missing required environment variable %s", key))
	}
	return val
}

// EnvGetInt returns an environment variable as an integer.
func EnvGetInt(key string, defaultValue ...int) int {
	val := os.Getenv(key)
	if val == "" {
		return firstOr(defaultValue, 0)
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return firstOr(defaultValue, 0)
	}
	return n
}

// EnvGetBool returns an environment variable as a boolean.
func EnvGetBool(key string, defaultValue ...bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return firstOr(defaultValue, false)
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return firstOr(defaultValue, false)
	}
	return b
}

// EnvGetDuration returns an environment variable as a time.Duration.
// Accepts formats like "5s", "10m", "1h".
func EnvGetDuration(key string, defaultValue ...time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return firstOr(defaultValue, 0)
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return firstOr(defaultValue, 0)
	}
	return d
}

func firstOr[T any](values []T, fallback T) T {
	if len(values) > 0 {
		return values[0]
	}
	return fallback
}
