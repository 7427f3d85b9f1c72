// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"bytes"
	"iter"
	"sync"
)

// Counters is a snapshot of the decoder's frame accounting.
type Counters struct {
	Frames         uint64 // candidate frames extracted (START..END spans)
	Valid          uint64 // frames that passed the checksum
	ChecksumErrors uint64
	Malformed      uint64 // bodies too short to carry a checksum
	DiscardedBytes uint64 // noise dropped while searching for StartByte
	Overflows      uint64 // buffer limit hits without a complete frame
}

// Decoder extracts verified payloads from a raw byte stream.
//
// Bytes are appended with Write and payloads are pulled with Next. Bytes
// belonging to an incomplete frame stay buffered until the rest arrives, so
// a stream may be fed in arbitrary chunks. A Decoder is safe for concurrent
// use.
type Decoder struct {
	mu        sync.Mutex
	raw       []byte
	maxBuffer int
	counters  Counters

	// raw[0] is the EndByte of the previous frame
	heldEnd bool
}

// NewDecoder creates a decoder bounded by DefaultMaxBuffer.
func NewDecoder() *Decoder {
	return NewDecoderSize(DefaultMaxBuffer)
}

// NewDecoderSize creates a decoder whose raw buffer is bounded by max bytes.
// A max of zero or less leaves the buffer unbounded.
func NewDecoderSize(max int) *Decoder {
	return &Decoder{maxBuffer: max}
}

// Write appends raw link bytes to the decoder. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.raw = append(d.raw, p...)
	return len(p), nil
}

// Next returns the next verified payload, or false when no complete frame
// is buffered. Frames failing the checksum are dropped and counted.
//
// Resynchronisation follows the link's best-effort policy: everything in
// front of the first StartByte is noise, and a frame runs from that
// StartByte to the first EndByte after it. The EndByte is left in the
// buffer and is discarded as noise on the next pass.
func (d *Decoder) Next() ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for {
		sof := bytes.IndexByte(d.raw, StartByte)
		if sof < 0 {
			d.discard(len(d.raw))
			return nil, false
		}
		if sof > 0 {
			d.discard(sof)
		}

		// raw[0] is StartByte, so the first EndByte is past it
		eof := bytes.IndexByte(d.raw, EndByte)
		if eof < 0 {
			d.enforceLimit()
			return nil, false
		}

		payload, ok := d.verify(d.raw[1:eof])
		d.raw = d.raw[eof:]
		d.heldEnd = true
		if ok {
			return payload, true
		}
	}
}

// Payloads returns a lazy sequence over the currently buffered verified
// payloads. Iteration stops when no complete frame remains; a later Write
// makes the sequence restartable.
func (d *Decoder) Payloads() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for {
			p, ok := d.Next()
			if !ok || !yield(p) {
				return
			}
		}
	}
}

// Feed appends data and returns every payload that became complete.
func (d *Decoder) Feed(data []byte) [][]byte {
	d.Write(data)

	var out [][]byte
	for p := range d.Payloads() {
		out = append(out, p)
	}
	return out
}

// Buffered returns the number of raw bytes waiting for a complete frame.
func (d *Decoder) Buffered() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.raw)
}

// Counters returns a snapshot of the frame counters.
func (d *Decoder) Counters() Counters {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counters
}

// Reset drops buffered bytes and zeroes the counters.
func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.raw = nil
	d.counters = Counters{}
	d.heldEnd = false
}

// verify de-escapes a frame body and checks its trailer.
// A dangling escape at the end of the body is dropped, which leaves the
// checksum to reject the frame.
func (d *Decoder) verify(body []byte) ([]byte, bool) {
	d.counters.Frames++

	msg, _ := unstuff(body)
	if len(msg) < ChecksumSize {
		d.counters.Malformed++
		return nil, false
	}

	n := len(msg) - ChecksumSize
	trailer := uint16(msg[n]) | uint16(msg[n+1])<<8
	msg = msg[:n]

	if Fletcher16(msg) != trailer {
		d.counters.ChecksumErrors++
		return nil, false
	}

	d.counters.Valid++
	return msg, true
}

// enforceLimit drops stalled data once the buffer outgrows maxBuffer.
// It skips to the next StartByte after the current one, or clears the
// buffer when there is none.
func (d *Decoder) enforceLimit() {
	if d.maxBuffer <= 0 {
		return
	}
	for len(d.raw) > d.maxBuffer {
		d.counters.Overflows++
		next := bytes.IndexByte(d.raw[1:], StartByte)
		if next < 0 {
			d.discard(len(d.raw))
			return
		}
		d.discard(next + 1)
	}
}

func (d *Decoder) discard(n int) {
	if n == 0 {
		return
	}
	noise := n
	if d.heldEnd {
		noise--
		d.heldEnd = false
	}
	d.counters.DiscardedBytes += uint64(noise)
	if n >= len(d.raw) {
		d.raw = d.raw[:0]
		return
	}
	d.raw = d.raw[n:]
}
