// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dispatch

import (
	"time"

	"github.com/Thermoquad/serialdispatch/pkg/frame"
	"github.com/Thermoquad/serialdispatch/pkg/topic"
	"github.com/rs/zerolog"
)

// Defaults
const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultReadSize     = 1000
)

// Config tunes a Dispatcher. Zero numeric fields take their defaults.
type Config struct {
	// PollInterval is the sleep after a read that returned no bytes
	PollInterval time.Duration

	// ReadSize is the maximum bytes requested per read
	ReadSize int

	// MaxBuffer bounds the frame decoder's buffer; negative means unbounded
	MaxBuffer int

	Logger zerolog.Logger

	// OnMessage sees every decoded message on the dispatch goroutine,
	// before subscribers run and whether or not the topic has any.
	OnMessage func(*topic.Message)

	// OnError receives payloads that framed correctly but failed to decode
	OnError func(error)
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		PollInterval: DefaultPollInterval,
		ReadSize:     DefaultReadSize,
		MaxBuffer:    frame.DefaultMaxBuffer,
		Logger:       zerolog.Nop(),
	}
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ReadSize <= 0 {
		c.ReadSize = DefaultReadSize
	}
	if c.MaxBuffer == 0 {
		c.MaxBuffer = frame.DefaultMaxBuffer
	}
	return c
}
