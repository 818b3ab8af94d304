// File: server/config.go
// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server configuration, defaults and environment overrides.

package server

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/momentics/hioload-rws/storage"
	"github.com/momentics/hioload-rws/subprotocol"
)

// Config holds all server-side configuration parameters.
type Config struct {
	Timeout           time.Duration `env:"TIMEOUT"`              // inactivity before close, 0 = never
	MaxConns          int           `env:"MAX_CONNS"`            // total connection ceiling
	MaxIPConns        int           `env:"MAX_IP_CONNS"`         // per-IP ceiling, <= MaxConns
	Storage           string        `env:"STORAGE"`              // registry backend
	Subprotocol       string        `env:"SUBPROTOCOL"`          // negotiated subprotocol
	Version           int           `env:"VERSION"`              // Sec-WebSocket-Version the client must send
	Tightening        time.Duration `env:"TIGHTENING"`           // pacing delay between admission steps, 0 = off
	Debug             bool          `env:"DEBUG"`                // wire-level debug logging
	CloseDelay        time.Duration `env:"CLOSE_DELAY"`          // grace before a rejected socket is closed
	MaxPayload        int64         `env:"MAX_PAYLOAD"`          // frame and message payload ceiling
	CloseOnBadMessage bool          `env:"CLOSE_ON_BAD_MESSAGE"` // tear down connections sending malformed messages
	OutboxLimit       int           `env:"OUTBOX_LIMIT"`         // queued frames per connection, 0 = unlimited
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT"`     // graceful shutdown timeout
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout:         5 * time.Minute,
		MaxConns:        10000,
		MaxIPConns:      1,
		Storage:         storage.BackendMemory,
		Subprotocol:     subprotocol.NameJSONRWS,
		Version:         13,
		Tightening:      400 * time.Millisecond,
		CloseDelay:      2100 * time.Millisecond,
		MaxPayload:      1 << 20,
		OutboxLimit:     1024,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate checks option consistency.
func (c *Config) Validate() error {
	if c.MaxConns <= 0 || c.MaxIPConns <= 0 {
		return fmt.Errorf("%w: maxConns and maxIPConns must be greater than 0", ErrInvalidConfig)
	}
	if c.MaxConns < c.MaxIPConns {
		return fmt.Errorf("%w: maxConns must be greater than maxIPConns", ErrInvalidConfig)
	}
	if !storage.Known(c.Storage) {
		return fmt.Errorf("%w: storage %q is not supported", ErrInvalidConfig, c.Storage)
	}
	if !subprotocol.Known(c.Subprotocol) {
		return fmt.Errorf("%w: subprotocol %q is not supported", ErrInvalidConfig, c.Subprotocol)
	}
	if c.Version <= 0 {
		return fmt.Errorf("%w: version must be positive", ErrInvalidConfig)
	}
	if c.Timeout < 0 || c.Tightening < 0 || c.CloseDelay < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	if c.MaxPayload <= 0 {
		return fmt.Errorf("%w: maxPayload must be positive", ErrInvalidConfig)
	}
	return nil
}

// ConfigFromEnv returns DefaultConfig overridden by environment variables
// named prefix + "_" + option, e.g. RWS_MAX_CONNS. Durations are in ms.
func ConfigFromEnv(prefix string) (*Config, error) {
	cfg := DefaultConfig()
	if prefix != "" && !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	err := env.ParseWithOptions(cfg, env.Options{
		Prefix: prefix,
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(time.Duration(0)): parseMillis,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, cfg.Validate()
}

func parseMillis(v string) (any, error) {
	ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("want milliseconds: %w", err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
