// Package config resolves the service's runtime configuration from
// PRINTARR_-prefixed environment variables, layered under CLI flag
// overrides the way cmd/server's flag+env cascade already works.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the fully resolved runtime configuration for the server
// process.
type Config struct {
	ConfigPath  string
	DataPath    string
	LibraryPath string
	CachePath   string
	Host        string
	Port        int
	Debug       bool
	LogLevel    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	WorkerPollInterval   time.Duration
	StaleJobRequeueAfter time.Duration
	StaleJobRequeueEvery time.Duration
}

// Defaults returns the baseline configuration: PRINTARR_PORT defaults to
// 3333, and the paths default to subdirectories of the working directory so
// a first run with no environment configured still starts.
func Defaults() Config {
	return Config{
		ConfigPath:           "data/config",
		DataPath:             "data",
		LibraryPath:          "library",
		CachePath:            "data/cache",
		Host:                 "0.0.0.0",
		Port:                 3333,
		LogLevel:             "info",
		WorkerPollInterval:   2 * time.Second,
		StaleJobRequeueAfter: 15 * time.Minute,
		StaleJobRequeueEvery: 5 * time.Minute,
	}
}

// Overrides carries the CLI flag values that, when non-empty/non-zero,
// take precedence over the environment.
type Overrides struct {
	ConfigPath  string
	DataPath    string
	LibraryPath string
	CachePath   string
	Host        string
	Port        int
	Debug       *bool
	LogLevel    string
	DatabaseURL string
	RedisAddr   string
}

// Load resolves configuration from the PRINTARR_ environment, then applies
// any non-zero fields in overrides on top.
func Load(overrides Overrides) (Config, error) {
	cfg := Defaults()

	cfg.ConfigPath = firstNonEmpty(overrides.ConfigPath, os.Getenv("PRINTARR_CONFIG_PATH"), cfg.ConfigPath)
	cfg.DataPath = firstNonEmpty(overrides.DataPath, os.Getenv("PRINTARR_DATA_PATH"), cfg.DataPath)
	cfg.LibraryPath = firstNonEmpty(overrides.LibraryPath, os.Getenv("PRINTARR_LIBRARY_PATH"), cfg.LibraryPath)
	cfg.CachePath = firstNonEmpty(overrides.CachePath, os.Getenv("PRINTARR_CACHE_PATH"), cfg.CachePath)
	cfg.Host = firstNonEmpty(overrides.Host, os.Getenv("PRINTARR_HOST"), cfg.Host)
	cfg.LogLevel = firstNonEmpty(overrides.LogLevel, os.Getenv("PRINTARR_LOG_LEVEL"), cfg.LogLevel)
	cfg.DatabaseURL = firstNonEmpty(overrides.DatabaseURL, os.Getenv("PRINTARR_DATABASE_URL"))
	cfg.RedisAddr = firstNonEmpty(overrides.RedisAddr, os.Getenv("PRINTARR_REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("PRINTARR_REDIS_PASSWORD")

	if overrides.Port > 0 {
		cfg.Port = overrides.Port
	} else if env := strings.TrimSpace(os.Getenv("PRINTARR_PORT")); env != "" {
		port, err := strconv.Atoi(env)
		if err != nil {
			return Config{}, fmt.Errorf("parse PRINTARR_PORT: %w", err)
		}
		cfg.Port = port
	}

	if overrides.Debug != nil {
		cfg.Debug = *overrides.Debug
	} else if env, ok := os.LookupEnv("PRINTARR_DEBUG"); ok {
		debug, err := strconv.ParseBool(strings.TrimSpace(env))
		if err != nil {
			return Config{}, fmt.Errorf("parse PRINTARR_DEBUG: %w", err)
		}
		cfg.Debug = debug
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("no database configured: set PRINTARR_DATABASE_URL or --database-url")
	}

	return cfg, nil
}

// Addr is the host:port pair the HTTP listener binds to.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
