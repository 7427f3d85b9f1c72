// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package frame implements the serial framing layer used by serialdispatch.
//
// A frame is a start byte, the byte-stuffed body (payload followed by a
// little-endian Fletcher-16 checksum) and an end byte. The Decoder turns an
// unbounded, possibly noisy byte stream back into verified payloads. Frames
// that fail the checksum are dropped without an error; the link is expected
// to recover on the next well-formed frame.
package frame

// Protocol framing bytes
const (
	StartByte = 0xF7
	EndByte   = 0x7F
	EscByte   = 0xF6
	EscXor    = 0x20
)

// ChecksumSize is the length of the checksum trailer inside a frame body.
const ChecksumSize = 2

// DefaultMaxBuffer bounds the decoder's raw buffer when no size is given.
const DefaultMaxBuffer = 64 * 1024

// fletcherInitial seeds both Fletcher-16 accumulators.
const fletcherInitial = 0xFF
