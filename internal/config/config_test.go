// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "serialdispatch.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_EmptyPathIsDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
port = "/dev/ttyACM0"
baud = 115200
read_timeout = "50ms"
poll_interval = "20ms"
read_size = 256
max_buffer = 4096
loopback = true

[log]
level = "debug"
no_color = true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	want := Default()
	want.Port = "/dev/ttyACM0"
	want.Baud = 115200
	want.ReadTimeout = 50 * time.Millisecond
	want.PollInterval = 20 * time.Millisecond
	want.ReadSize = 256
	want.MaxBuffer = 4096
	want.Loopback = true
	want.Log.Level = "debug"
	want.Log.NoColor = true

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_AbsentKeysKeepDefaults(t *testing.T) {
	path := writeConfig(t, `url = "wss://bridge.local/serial"`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.URL != "wss://bridge.local/serial" {
		t.Errorf("unexpected url: %q", cfg.URL)
	}
	if cfg.Baud != Default().Baud || !cfg.Log.Timestamp {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad duration", `poll_interval = "soon"`, "poll_interval"},
		{"negative duration", `read_timeout = "-1s"`, "read_timeout"},
		{"zero baud", `baud = 0`, "baud"},
		{"unknown key", `bauds = 9600`, "unknown key"},
		{"bad toml", `port = `, "load config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestConfig_Link(t *testing.T) {
	cfg := Default()
	cfg.URL = "ws://bridge/serial"
	cfg.Username = "admin"
	cfg.NoSSLVerify = true

	lc := cfg.Link("secret")
	if lc.URL != cfg.URL || lc.Username != "admin" || lc.Password != "secret" || !lc.SkipSSLVerify {
		t.Errorf("unexpected link config: %+v", lc)
	}
}

func TestConfig_LinkLoopback(t *testing.T) {
	cfg := Default()
	cfg.Port = "/dev/ttyUSB0"
	cfg.Loopback = true

	lc := cfg.Link("")
	if !lc.Loopback {
		t.Errorf("expected loopback link config: %+v", lc)
	}
}

func TestConfig_Dispatch(t *testing.T) {
	cfg := Default()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.ReadSize = 64

	dc := cfg.Dispatch(zerolog.Nop())
	if dc.PollInterval != 5*time.Millisecond || dc.ReadSize != 64 || dc.MaxBuffer != cfg.MaxBuffer {
		t.Errorf("unexpected dispatch config: %+v", dc)
	}
}
