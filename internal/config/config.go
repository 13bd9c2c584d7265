// Package config loads relay settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Config holds every runtime setting of the relay.
type Config struct {
	Port              int           `env:"PORT" default:"9001"`
	HistoryCapacity   int           `env:"HISTORY_CAPACITY" default:"100"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" default:"30s"`
	MaxBodyBytes      int64         `env:"MAX_BODY_BYTES" default:"1048576"`
	PongWait          time.Duration `env:"PONG_WAIT" default:"60s"`
	SendBuffer        int           `env:"SEND_BUFFER" default:"256"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
	LogFile   string `env:"LOG_FILE"`

	JournalDBPath string `env:"JOURNAL_DB_PATH"`
	GinMode       string `env:"GIN_MODE" default:"release"`
}

// Load reads an optional .env file, then the process environment.
// The returned bool reports whether a .env file was found.
func Load() (*Config, bool, error) {
	dotenv := godotenv.Load() == nil

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, dotenv, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, dotenv, err
	}

	return &cfg, dotenv, nil
}

// Validate checks that settings are usable.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.HistoryCapacity <= 0 {
		return errors.New("HISTORY_CAPACITY must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		return errors.New("HEARTBEAT_INTERVAL must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("MAX_BODY_BYTES must be positive")
	}
	if c.PongWait < 0 {
		return errors.New("PONG_WAIT must not be negative")
	}
	// A joining client is queued a history replay and a welcome frame.
	if c.SendBuffer < 2 {
		return fmt.Errorf("SEND_BUFFER must be at least 2, got %d", c.SendBuffer)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// JournalEnabled reports whether connection journaling is configured.
func (c *Config) JournalEnabled() bool {
	return c.JournalDBPath != ""
}
