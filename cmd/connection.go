// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Thermoquad/serialdispatch/pkg/dispatch"
	"github.com/Thermoquad/serialdispatch/pkg/link"
	"golang.org/x/term"
)

// EnvPassword holds the WebSocket password
const EnvPassword = "SERIALDISPATCH_PASSWORD"

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv(EnvPassword); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal; read a plain line instead
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenConnection opens either a serial or WebSocket link from the resolved
// configuration
func OpenConnection() (link.Link, string, error) {
	password := ""
	if !cfg.Loopback && cfg.URL != "" && cfg.Username != "" {
		var err error
		password, err = GetPassword()
		if err != nil {
			return nil, "", err
		}
	}

	conn, info, err := link.Open(cfg.Link(password))
	if err != nil {
		return nil, "", err
	}
	logger.Info().Str("link", info).Msg("connected")
	return conn, info, nil
}

// OpenDispatcher opens the configured link and starts a dispatcher on it.
// tune may adjust the dispatcher config before start.
func OpenDispatcher(tune func(*dispatch.Config)) (*dispatch.Dispatcher, string, error) {
	conn, info, err := OpenConnection()
	if err != nil {
		return nil, "", err
	}

	dc := cfg.Dispatch(logger)
	if tune != nil {
		tune(&dc)
	}
	return dispatch.New(conn, dc), info, nil
}

// signalContext is canceled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
