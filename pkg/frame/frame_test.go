// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

// ============================================================
// Checksum Tests
// ============================================================

func TestFletcher16_Empty(t *testing.T) {
	if got := Fletcher16(nil); got != 0xFFFF {
		t.Errorf("Fletcher16 of empty data should be 0xFFFF, got 0x%04X", got)
	}
}

func TestFletcher16_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{"single byte", []byte{0x01}, 0x0001},
		{"ASCII '123456789'", []byte("123456789"), 0x1EDE},
		{"counting bytes", []byte{0, 1, 2, 3, 4, 5, 6, 7}, 0x541C},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fletcher16(tt.data); got != tt.expected {
				t.Errorf("checksum mismatch: expected 0x%04X, got 0x%04X", tt.expected, got)
			}
		})
	}
}

// The single fold leaves 0x00 and 0xFF indistinguishable in a one-byte
// message. A single bit flip can never produce this substitution.
func TestFletcher16_ZeroFFBlindSpot(t *testing.T) {
	if Fletcher16([]byte{0x00}) != Fletcher16([]byte{0xFF}) {
		t.Error("expected 0x00 and 0xFF to collide")
	}
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncode_KnownFrame(t *testing.T) {
	got := Encode([]byte{0, 1, 2, 3, 4, 5, 6, 7})
	want := mustHex(t, "f700010203040506071c547f")
	if !bytes.Equal(got, want) {
		t.Errorf("Encode mismatch:\n got  %x\n want %x", got, want)
	}
}

func TestEncode_EscapesReservedBytes(t *testing.T) {
	got := Encode([]byte{StartByte, EndByte, EscByte})
	want := mustHex(t, "f7f6d7f65ff6d66edd7f")
	if !bytes.Equal(got, want) {
		t.Errorf("Encode mismatch:\n got  %x\n want %x", got, want)
	}
}

func TestEncode_DoesNotModifyInput(t *testing.T) {
	payload := []byte{1, 2, 3}
	orig := append([]byte(nil), payload...)
	Encode(payload)
	if !bytes.Equal(payload, orig) {
		t.Errorf("payload modified: %x", payload)
	}
}

func TestEncode_NoUnescapedReservedBytes(t *testing.T) {
	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}
	encoded := Encode(payload)

	if encoded[0] != StartByte || encoded[len(encoded)-1] != EndByte {
		t.Fatalf("frame not delimited: first 0x%02X last 0x%02X", encoded[0], encoded[len(encoded)-1])
	}

	body := encoded[1 : len(encoded)-1]
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case StartByte, EndByte:
			t.Fatalf("unescaped framing byte 0x%02X at %d", body[i], i+1)
		case EscByte:
			if i+1 >= len(body) {
				t.Fatalf("escape at end of body")
			}
			if IsReserved(body[i+1]) {
				t.Fatalf("escaped value 0x%02X is itself reserved", body[i+1])
			}
			i++
		}
	}
}

func TestUnstuffBytes(t *testing.T) {
	data := []byte{0x01, StartByte, EndByte, EscByte, 0x02}
	out, err := UnstuffBytes(stuffBytes(data))
	if err != nil {
		t.Fatalf("UnstuffBytes error: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Errorf("got %x, want %x", out, data)
	}

	if _, err := UnstuffBytes([]byte{0x01, EscByte}); !errors.Is(err, ErrDanglingEscape) {
		t.Errorf("expected ErrDanglingEscape, got %v", err)
	}
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecoder_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty payload", []byte{}},
		{"plain bytes", []byte("hello")},
		{"reserved bytes", []byte{StartByte, EndByte, EscByte, EscByte ^ EscXor}},
		{"all reserved", bytes.Repeat([]byte{StartByte}, 10)},
		{"topic message", mustHex(t, "6261720002030024f6ff14001e00fd0405")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder()
			got := d.Feed(Encode(tt.payload))
			if len(got) != 1 {
				t.Fatalf("expected 1 payload, got %d", len(got))
			}
			if !bytes.Equal(got[0], tt.payload) {
				t.Errorf("payload mismatch: got %x, want %x", got[0], tt.payload)
			}
		})
	}
}

func TestDecoder_ByteAtATime(t *testing.T) {
	payload := []byte{StartByte, 0x10, EndByte, 0x20}
	encoded := Encode(payload)

	d := NewDecoder()
	var got [][]byte
	for _, b := range encoded {
		got = append(got, d.Feed([]byte{b})...)
	}

	if len(got) != 1 || !bytes.Equal(got[0], payload) {
		t.Fatalf("expected [%x], got %x", payload, got)
	}
	if d.Buffered() != 0 {
		t.Errorf("expected an empty buffer after the frame, got %d bytes", d.Buffered())
	}
}

func TestDecoder_MultipleFrames(t *testing.T) {
	var stream []byte
	payloads := [][]byte{{1}, {2, 2}, {3, 3, 3}}
	for _, p := range payloads {
		stream = append(stream, Encode(p)...)
	}

	got := NewDecoder().Feed(stream)
	if len(got) != len(payloads) {
		t.Fatalf("expected %d payloads, got %d", len(payloads), len(got))
	}
	for i := range payloads {
		if !bytes.Equal(got[i], payloads[i]) {
			t.Errorf("payload %d: got %x, want %x", i, got[i], payloads[i])
		}
	}
}

func TestDecoder_ResyncAfterGarbage(t *testing.T) {
	payload := []byte("resync")
	garbage := []byte{0x00, 0x11, EndByte, 0x22, EscByte, 0x33, EndByte}

	d := NewDecoder()
	got := d.Feed(append(garbage, Encode(payload)...))
	if len(got) != 1 || !bytes.Equal(got[0], payload) {
		t.Fatalf("expected [%x], got %x", payload, got)
	}

	c := d.Counters()
	if c.DiscardedBytes != uint64(len(garbage)) {
		t.Errorf("expected %d discarded bytes, got %d", len(garbage), c.DiscardedBytes)
	}
	if c.ChecksumErrors != 0 {
		t.Errorf("expected no checksum errors, got %d", c.ChecksumErrors)
	}
}

func TestDecoder_ChecksumMismatchDropped(t *testing.T) {
	encoded := Encode([]byte{1, 2, 3, 4})
	encoded[2] ^= 0x01

	d := NewDecoder()
	if got := d.Feed(encoded); len(got) != 0 {
		t.Fatalf("expected corrupted frame to be dropped, got %x", got)
	}
	if c := d.Counters(); c.ChecksumErrors != 1 || c.Valid != 0 {
		t.Errorf("unexpected counters: %+v", c)
	}

	// The link recovers on the next good frame
	if got := d.Feed(Encode([]byte{9})); len(got) != 1 || got[0][0] != 9 {
		t.Errorf("expected recovery frame, got %x", got)
	}
}

func TestDecoder_SingleBitFlipsRejected(t *testing.T) {
	payloads := [][]byte{
		{0, 1, 2, 3, 4, 5, 6, 7},
		mustHex(t, "6261720002030024f6ff14001e00fd0405"),
	}

	for _, payload := range payloads {
		encoded := Encode(payload)
		for i := 1; i < len(encoded)-1; i++ {
			for bit := 0; bit < 8; bit++ {
				corrupted := append([]byte(nil), encoded...)
				corrupted[i] ^= 1 << bit
				if got := NewDecoder().Feed(corrupted); len(got) != 0 {
					t.Errorf("flip byte %d bit %d of %x yielded %x", i, bit, encoded, got)
				}
			}
		}
	}
}

func TestDecoder_IncompleteFrameWaits(t *testing.T) {
	encoded := Encode([]byte("split"))
	d := NewDecoder()

	if got := d.Feed(encoded[:4]); len(got) != 0 {
		t.Fatalf("expected no payload from partial frame, got %x", got)
	}
	if d.Buffered() != 4 {
		t.Errorf("expected 4 buffered bytes, got %d", d.Buffered())
	}
	if got := d.Feed(encoded[4:]); len(got) != 1 {
		t.Fatalf("expected payload after completion, got %d", len(got))
	}
}

func TestDecoder_ShortBodyIsMalformed(t *testing.T) {
	d := NewDecoder()
	if got := d.Feed([]byte{StartByte, 0x01, EndByte}); len(got) != 0 {
		t.Fatalf("expected no payload, got %x", got)
	}
	if c := d.Counters(); c.Malformed != 1 {
		t.Errorf("expected 1 malformed frame, got %+v", c)
	}
}

// A stray unescaped StartByte inside a frame is not treated specially: the
// span from the first StartByte to the first EndByte is checked as-is and
// rejected by the checksum.
func TestDecoder_StrayStartByteInsideFrame(t *testing.T) {
	encoded := Encode([]byte{0x01, 0x02, 0x03})
	stray := append([]byte{encoded[0], encoded[1], StartByte}, encoded[2:]...)

	d := NewDecoder()
	if got := d.Feed(stray); len(got) != 0 {
		t.Fatalf("expected frame with stray start byte to be dropped, got %x", got)
	}
	if c := d.Counters(); c.ChecksumErrors != 1 {
		t.Errorf("expected a checksum rejection, got %+v", c)
	}
}

func TestDecoder_EndByteBeforeStart(t *testing.T) {
	d := NewDecoder()
	// An end byte with no start after it must not stall or panic
	if got := d.Feed([]byte{EndByte, 0x01, StartByte, 0x02}); len(got) != 0 {
		t.Fatalf("expected nothing, got %x", got)
	}
	if d.Buffered() != 2 {
		t.Errorf("expected the open frame to stay buffered, got %d bytes", d.Buffered())
	}
}

func TestDecoder_BufferLimit(t *testing.T) {
	d := NewDecoderSize(16)

	open := append([]byte{StartByte}, bytes.Repeat([]byte{0x01}, 32)...)
	if got := d.Feed(open); len(got) != 0 {
		t.Fatalf("expected nothing, got %x", got)
	}
	if d.Buffered() > 16 {
		t.Errorf("buffer exceeds limit: %d bytes", d.Buffered())
	}
	if c := d.Counters(); c.Overflows == 0 {
		t.Error("expected an overflow to be counted")
	}

	payload := []byte{0xAA}
	if got := d.Feed(Encode(payload)); len(got) != 1 || !bytes.Equal(got[0], payload) {
		t.Errorf("expected recovery after overflow, got %x", got)
	}
}

func TestDecoder_PayloadsStopEarly(t *testing.T) {
	d := NewDecoder()
	d.Write(append(Encode([]byte{1}), Encode([]byte{2})...))

	for p := range d.Payloads() {
		if p[0] != 1 {
			t.Fatalf("expected first payload, got %x", p)
		}
		break
	}

	p, ok := d.Next()
	if !ok || p[0] != 2 {
		t.Fatalf("expected second payload to remain buffered, got %x %v", p, ok)
	}
}

func TestDecoder_Reset(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte{0x00, StartByte, 0x01})
	d.Reset()
	if d.Buffered() != 0 || d.Counters() != (Counters{}) {
		t.Errorf("reset left state: buffered=%d counters=%+v", d.Buffered(), d.Counters())
	}
}
