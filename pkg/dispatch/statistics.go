// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dispatch

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/serialdispatch/pkg/frame"
)

// Statistics is a snapshot of link and dispatch counters
type Statistics struct {
	StartTime time.Time
	Elapsed   time.Duration

	// Framing
	Frames         uint64
	ValidFrames    uint64
	ChecksumErrors uint64
	Malformed      uint64
	DiscardedBytes uint64
	Overflows      uint64

	// Dispatch
	Messages       uint64 // decoded topic messages
	DecodeErrors   uint64
	Dispatched     uint64 // callback invocations
	Unsubscribed   uint64 // messages dropped for lack of subscribers
	CallbackPanics uint64

	// Outbound
	Published   uint64
	WriteErrors uint64

	// Rates (calculated)
	MessageRate float64 // messages/sec
	ErrorRate   float64 // errors/sec
}

// counters are updated from the dispatcher goroutines
type counters struct {
	messages       atomic.Uint64
	decodeErrors   atomic.Uint64
	dispatched     atomic.Uint64
	unsubscribed   atomic.Uint64
	callbackPanics atomic.Uint64
	published      atomic.Uint64
	writeErrors    atomic.Uint64
}

func (c *counters) reset() {
	c.messages.Store(0)
	c.decodeErrors.Store(0)
	c.dispatched.Store(0)
	c.unsubscribed.Store(0)
	c.callbackPanics.Store(0)
	c.published.Store(0)
	c.writeErrors.Store(0)
}

func newStatistics(start time.Time, fc frame.Counters, c *counters) Statistics {
	s := Statistics{
		StartTime:      start,
		Elapsed:        time.Since(start),
		Frames:         fc.Frames,
		ValidFrames:    fc.Valid,
		ChecksumErrors: fc.ChecksumErrors,
		Malformed:      fc.Malformed,
		DiscardedBytes: fc.DiscardedBytes,
		Overflows:      fc.Overflows,
		Messages:       c.messages.Load(),
		DecodeErrors:   c.decodeErrors.Load(),
		Dispatched:     c.dispatched.Load(),
		Unsubscribed:   c.unsubscribed.Load(),
		CallbackPanics: c.callbackPanics.Load(),
		Published:      c.published.Load(),
		WriteErrors:    c.writeErrors.Load(),
	}
	s.calculateRates()
	return s
}

func (s *Statistics) calculateRates() {
	elapsed := s.Elapsed.Seconds()
	if elapsed > 0 {
		s.MessageRate = float64(s.Messages) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// Errors returns the sum of all error counters
func (s Statistics) Errors() uint64 {
	return s.ChecksumErrors + s.Malformed + s.DecodeErrors + s.WriteErrors
}

// String returns a formatted statistics summary
func (s Statistics) String() string {
	var validPercent, checksumPercent, malformedPercent, decodePercent float64
	if s.Frames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.Frames)
		checksumPercent = float64(s.ChecksumErrors) * 100.0 / float64(s.Frames)
		malformedPercent = float64(s.Malformed) * 100.0 / float64(s.Frames)
	}
	if s.ValidFrames > 0 {
		decodePercent = float64(s.DecodeErrors) * 100.0 / float64(s.ValidFrames)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Statistics (%s) ===\n", formatDuration(s.Elapsed))
	fmt.Fprintf(&sb, "Total Frames:    %8d\n", s.Frames)
	fmt.Fprintf(&sb, "Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)

	if s.ChecksumErrors > 0 {
		fmt.Fprintf(&sb, "Checksum Errors: %8d (%.1f%%)\n", s.ChecksumErrors, checksumPercent)
	}
	if s.Malformed > 0 {
		fmt.Fprintf(&sb, "Malformed:       %8d (%.1f%%)\n", s.Malformed, malformedPercent)
	}
	if s.DiscardedBytes > 0 {
		fmt.Fprintf(&sb, "Noise Bytes:     %8d\n", s.DiscardedBytes)
	}
	if s.Overflows > 0 {
		fmt.Fprintf(&sb, "Buffer Overflows:%8d\n", s.Overflows)
	}

	fmt.Fprintf(&sb, "Messages:        %8d\n", s.Messages)
	if s.DecodeErrors > 0 {
		fmt.Fprintf(&sb, "Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, decodePercent)
	}
	fmt.Fprintf(&sb, "Callbacks:       %8d\n", s.Dispatched)
	if s.Unsubscribed > 0 {
		fmt.Fprintf(&sb, "  No Subscriber:    %5d\n", s.Unsubscribed)
	}
	if s.CallbackPanics > 0 {
		fmt.Fprintf(&sb, "  Panics:           %5d\n", s.CallbackPanics)
	}

	if s.Published > 0 || s.WriteErrors > 0 {
		fmt.Fprintf(&sb, "Published:       %8d\n", s.Published)
		if s.WriteErrors > 0 {
			fmt.Fprintf(&sb, "  Write Errors:     %5d\n", s.WriteErrors)
		}
	}

	fmt.Fprintf(&sb, "Message Rate:    %8.1f msgs/sec\n", s.MessageRate)
	fmt.Fprintf(&sb, "Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	sb.WriteString("================================\n")

	return sb.String()
}

// formatDuration renders an elapsed time as "1h2m3s" with sub-second
// precision dropped
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%d ms", d.Milliseconds())
	}
	return d.Truncate(time.Second).String()
}
