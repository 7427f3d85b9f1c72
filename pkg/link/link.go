// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link provides the byte sources and sinks a dispatcher runs over:
// a serial port, a serial-over-WebSocket bridge, and an in-memory loopback.
//
// Read follows the short-timeout contract: it may return 0 bytes with a nil
// error when nothing arrived within the link's read timeout.
package link

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Link is a bidirectional byte stream
type Link interface {
	io.Reader
	io.Writer
	io.Closer
}

var (
	// ErrConnectionClosed is returned when reading from or writing to a closed link
	ErrConnectionClosed = errors.New("link: connection closed")

	// ErrNoLink is returned by Open when no transport is configured
	ErrNoLink = errors.New("link: either a serial port or a WebSocket URL must be specified")
)

// Config selects and configures a transport for Open
type Config struct {
	// Serial
	Port        string
	Baud        int
	ReadTimeout time.Duration

	// WebSocket
	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool

	// Loopback ignores every other field
	Loopback bool
}

// Open opens a WebSocket link if URL is set, otherwise a serial link if Port
// is set. It returns the link and a one-line description of it.
func Open(cfg Config) (Link, string, error) {
	switch {
	case cfg.Loopback:
		return NewLoopback(cfg.ReadTimeout), "Loopback", nil

	case cfg.URL != "":
		conn, err := OpenWebSocket(WebSocketConfig{
			URL:           cfg.URL,
			Username:      cfg.Username,
			Password:      cfg.Password,
			SkipSSLVerify: cfg.SkipSSLVerify,
		})
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", cfg.URL), nil

	case cfg.Port != "":
		conn, err := OpenSerial(SerialConfig{
			Port:        cfg.Port,
			Baud:        cfg.Baud,
			ReadTimeout: cfg.ReadTimeout,
		})
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", cfg.Port, conn.baud), nil
	}

	return nil, "", ErrNoLink
}
