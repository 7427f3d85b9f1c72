// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import "errors"

// ErrDanglingEscape is returned by UnstuffBytes when the data ends in an
// escape byte with nothing left to unescape.
var ErrDanglingEscape = errors.New("frame: incomplete escape sequence at end of data")

// Encode wraps payload in a complete wire frame.
// The checksum is appended low byte first, then the body is byte-stuffed and
// enclosed in StartByte/EndByte. The caller's slice is not modified.
func Encode(payload []byte) []byte {
	checksum := Fletcher16(payload)

	body := make([]byte, 0, len(payload)+ChecksumSize)
	body = append(body, payload...)
	body = append(body, byte(checksum&0xFF), byte(checksum>>8))

	stuffed := stuffBytes(body)

	frame := make([]byte, 0, len(stuffed)+2)
	frame = append(frame, StartByte)
	frame = append(frame, stuffed...)
	frame = append(frame, EndByte)

	return frame
}

// IsReserved reports whether b must be escaped inside a frame body.
func IsReserved(b byte) bool {
	return b == StartByte || b == EndByte || b == EscByte
}

// stuffBytes applies byte stuffing to escape special bytes.
// Special bytes (START, END, ESC) are replaced with ESC + (byte XOR EscXor).
func stuffBytes(data []byte) []byte {
	// Pre-allocate with extra space for potential escapes
	result := make([]byte, 0, len(data)*2)

	for _, b := range data {
		if IsReserved(b) {
			result = append(result, EscByte, b^EscXor)
		} else {
			result = append(result, b)
		}
	}

	return result
}

// UnstuffBytes removes byte stuffing from escaped data.
// This is the inverse of stuffBytes.
func UnstuffBytes(data []byte) ([]byte, error) {
	result, dangling := unstuff(data)
	if dangling {
		return nil, ErrDanglingEscape
	}
	return result, nil
}

// unstuff de-escapes data and reports whether it ended on a lone EscByte.
// The dangling escape itself is dropped.
func unstuff(data []byte) ([]byte, bool) {
	result := make([]byte, 0, len(data))
	escapeNext := false

	for _, b := range data {
		if escapeNext {
			result = append(result, b^EscXor)
			escapeNext = false
		} else if b == EscByte {
			escapeNext = true
		} else {
			result = append(result, b)
		}
	}

	return result, escapeNext
}
