// Package config loads the client configuration. The schema, including
// the defaults, lives in an embedded CUE file; a user configuration file
// is unified against it so invalid values fail loading instead of
// surfacing later.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/graderist/corrsync/internal/identity"
)

//go:embed schema.cue
var schemaSource []byte

// Config is the validated client configuration.
type Config struct {
	StoragePath     string `json:"storage_path"`
	CheckIntervalMs int    `json:"check_interval_ms"`
	SendIntervalMs  int    `json:"send_interval_ms"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
	LogLevel        string `json:"log_level"`
}

// Load reads the configuration file at path and validates it against the
// schema. An empty path loads the defaults.
func Load(path string) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}

	value := schema
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		user := ctx.CompileBytes(raw, cue.Filename(path))
		if err := user.Err(); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		value = schema.Unify(user)
	}

	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	var cfg Config
	if err := value.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks a configuration file without returning it.
func Validate(path string) error {
	_, err := Load(path)
	return err
}

// CheckInterval returns the dirty check cadence.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalMs) * time.Millisecond
}

// SendInterval returns the send retry cadence.
func (c *Config) SendInterval() time.Duration {
	return time.Duration(c.SendIntervalMs) * time.Millisecond
}

// Timeout returns the backend call timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SlogLevel maps the configured level to slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Environment variables carrying the launch parameters handed over by the
// hosting system.
const (
	EnvBackend     = "CORRECTOR_BACKEND"
	EnvReturn      = "CORRECTOR_RETURN"
	EnvUser        = "CORRECTOR_USER"
	EnvEnvironment = "CORRECTOR_ENVIRONMENT"
	EnvItem        = "CORRECTOR_ITEM"
	EnvToken       = "CORRECTOR_TOKEN"
	EnvFileToken   = "CORRECTOR_FILE_TOKEN"
)

// IdentityFromEnv collects the launch parameters from the environment.
// Unset variables stay empty; the session falls back to persisted values.
func IdentityFromEnv() identity.Identity {
	return identity.Identity{
		BackendURL:     os.Getenv(EnvBackend),
		ReturnURL:      os.Getenv(EnvReturn),
		UserKey:        os.Getenv(EnvUser),
		EnvironmentKey: os.Getenv(EnvEnvironment),
		ItemKey:        os.Getenv(EnvItem),
		DataToken:      os.Getenv(EnvToken),
		FileToken:      os.Getenv(EnvFileToken),
	}
}
