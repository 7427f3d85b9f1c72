// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the optional TOML configuration file
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Thermoquad/serialdispatch/pkg/dispatch"
	"github.com/Thermoquad/serialdispatch/pkg/frame"
	"github.com/Thermoquad/serialdispatch/pkg/link"
	"github.com/rs/zerolog"
)

// Config holds link, dispatcher and logging settings
type Config struct {
	// Serial
	Port        string
	Baud        int
	ReadTimeout time.Duration

	// WebSocket
	URL         string
	Username    string
	NoSSLVerify bool

	// Loopback replaces the device with an in-memory link
	Loopback bool

	// Dispatcher
	PollInterval time.Duration
	ReadSize     int
	MaxBuffer    int

	Log LogConfig
}

type LogConfig struct {
	Level     string
	Timestamp bool
	NoColor   bool
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Baud:         link.DefaultBaud,
		ReadTimeout:  link.DefaultReadTimeout,
		PollInterval: dispatch.DefaultPollInterval,
		ReadSize:     dispatch.DefaultReadSize,
		MaxBuffer:    frame.DefaultMaxBuffer,
		Log: LogConfig{
			Level:     "info",
			Timestamp: true,
		},
	}
}

type fileConfig struct {
	Port         string        `toml:"port"`
	Baud         int           `toml:"baud"`
	ReadTimeout  string        `toml:"read_timeout"`
	URL          string        `toml:"url"`
	Username     string        `toml:"username"`
	NoSSLVerify  bool          `toml:"no_ssl_verify"`
	Loopback     bool          `toml:"loopback"`
	PollInterval string        `toml:"poll_interval"`
	ReadSize     int           `toml:"read_size"`
	MaxBuffer    int           `toml:"max_buffer"`
	Log          fileLogConfig `toml:"log"`
}

type fileLogConfig struct {
	Level     string `toml:"level"`
	Timestamp bool   `toml:"timestamp"`
	NoColor   bool   `toml:"no_color"`
}

// Load reads path over the defaults. Only keys present in the file override
// a default. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("port") {
		cfg.Port = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("baud") {
		if raw.Baud <= 0 {
			return Config{}, fmt.Errorf("parse baud: must be positive, got %d", raw.Baud)
		}
		cfg.Baud = raw.Baud
	}
	if meta.IsDefined("read_timeout") {
		d, err := parsePositiveDuration(raw.ReadTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse read_timeout: %w", err)
		}
		cfg.ReadTimeout = d
	}

	if meta.IsDefined("url") {
		cfg.URL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("username") {
		cfg.Username = strings.TrimSpace(raw.Username)
	}
	if meta.IsDefined("no_ssl_verify") {
		cfg.NoSSLVerify = raw.NoSSLVerify
	}
	if meta.IsDefined("loopback") {
		cfg.Loopback = raw.Loopback
	}

	if meta.IsDefined("poll_interval") {
		d, err := parsePositiveDuration(raw.PollInterval)
		if err != nil {
			return Config{}, fmt.Errorf("parse poll_interval: %w", err)
		}
		cfg.PollInterval = d
	}
	if meta.IsDefined("read_size") {
		if raw.ReadSize <= 0 {
			return Config{}, fmt.Errorf("parse read_size: must be positive, got %d", raw.ReadSize)
		}
		cfg.ReadSize = raw.ReadSize
	}
	if meta.IsDefined("max_buffer") {
		cfg.MaxBuffer = raw.MaxBuffer
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "timestamp") {
		cfg.Log.Timestamp = raw.Log.Timestamp
	}
	if meta.IsDefined("log", "no_color") {
		cfg.Log.NoColor = raw.Log.NoColor
	}

	return cfg, nil
}

func parsePositiveDuration(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}

// Link returns the link settings. password is supplied by the caller so it
// never lives in the file.
func (c Config) Link(password string) link.Config {
	return link.Config{
		Port:          c.Port,
		Baud:          c.Baud,
		ReadTimeout:   c.ReadTimeout,
		URL:           c.URL,
		Username:      c.Username,
		Password:      password,
		SkipSSLVerify: c.NoSSLVerify,
		Loopback:      c.Loopback,
	}
}

// Dispatch returns the dispatcher settings
func (c Config) Dispatch(logger zerolog.Logger) dispatch.Config {
	cfg := dispatch.DefaultConfig()
	cfg.PollInterval = c.PollInterval
	cfg.ReadSize = c.ReadSize
	cfg.MaxBuffer = c.MaxBuffer
	cfg.Logger = logger
	return cfg
}
