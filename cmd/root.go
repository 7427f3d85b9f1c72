// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/serialdispatch/internal/config"
	"github.com/Thermoquad/serialdispatch/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// In-memory link, for trying commands without a device
	useLoopback bool

	// Dispatcher flags
	pollInterval time.Duration
	logLevel     string

	// Resolved in PersistentPreRunE
	cfg    config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "serialdispatch",
	Short: "Topic publish/subscribe over a framed serial link",
	Long: `serialdispatch - exchange named, typed data topics with a device over a
noisy serial link.

Every message is a topic name followed by typed integer or text columns,
framed with byte stuffing and a Fletcher-16 checksum. Corrupt frames are
dropped and the link resynchronizes on the next good frame.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 57600]
  WebSocket: --url ws://host/path [--username user]
  Loopback:  --loopback (writes are read back, no device needed)

Settings can also come from a TOML file (--config). Flags override the file.

For WebSocket authentication, the password is read from the
SERIALDISPATCH_PASSWORD environment variable, or prompted interactively if
not set. The --password flag is intentionally not provided to avoid leaking
credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML configuration file")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 57600, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().BoolVar(&useLoopback, "loopback", false, "Use an in-memory loopback link instead of a device")

	rootCmd.PersistentFlags().DurationVar(&pollInterval, "poll-interval", 100*time.Millisecond, "Sleep between reads of an idle link")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error, disabled")
}

// setup resolves configuration (defaults < file < environment < flags) and
// configures logging
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		loaded.Port = portName
	}
	if flags.Changed("baud") {
		loaded.Baud = baudRate
	}
	if flags.Changed("url") {
		loaded.URL = wsURL
	}
	if flags.Changed("username") {
		loaded.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		loaded.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("loopback") {
		loaded.Loopback = useLoopback
	}
	if flags.Changed("poll-interval") {
		if pollInterval <= 0 {
			return fmt.Errorf("--poll-interval must be positive")
		}
		loaded.PollInterval = pollInterval
	}

	logCfg := logging.DefaultConfig()
	if lvl, ok := logging.ParseLevel(loaded.Log.Level); ok {
		logCfg.Level = lvl
	}
	logCfg.Timestamp = loaded.Log.Timestamp
	logCfg.NoColor = loaded.Log.NoColor
	logging.ApplyEnv(&logCfg)
	if flags.Changed("log-level") {
		lvl, ok := logging.ParseLevel(logLevel)
		if !ok {
			return fmt.Errorf("unknown log level %q", logLevel)
		}
		logCfg.Level = lvl
	}

	cfg = loaded
	logger = logging.Configure(logCfg)
	logger.Debug().Str("config", configPath).Msg("configuration loaded")
	return nil
}

// ExitError asks main to exit with Code. Err, when set, is printed first;
// commands that already reported the failure leave it nil.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Execute runs the root command and prints any error
func Execute() error {
	err := rootCmd.Execute()
	var exitErr *ExitError
	if err != nil && (!errors.As(err, &exitErr) || exitErr.Err != nil) {
		rootCmd.PrintErrln("Error:", err)
	}
	return err
}
