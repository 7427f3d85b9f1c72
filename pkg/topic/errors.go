// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package topic

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTopic      = errors.New("topic: name contains a null byte")
	ErrInvalidText       = errors.New("topic: text column contains a null byte")
	ErrNoColumns         = errors.New("topic: message has no columns")
	ErrTooManyColumns    = errors.New("topic: more than 255 columns")
	ErrLengthMismatch    = errors.New("topic: columns differ in length")
	ErrLengthOverflow    = errors.New("topic: column length exceeds 65535")
	ErrValueOutOfRange   = errors.New("topic: value out of range")
	ErrUnknownFormat     = errors.New("topic: unknown format specifier")
	ErrUnsupportedFormat = errors.New("topic: unsupported format specifier")
	ErrTextColumn        = errors.New("topic: column holds text")
	ErrNoSuchColumn      = errors.New("topic: column index out of range")
	ErrTruncated         = errors.New("topic: payload truncated")
	ErrMalformedHeader   = errors.New("topic: malformed header")
	ErrInvalidDescriptor = errors.New("topic: invalid descriptor")
)

// DecodeError locates a structural failure inside a received payload.
// Column is -1 for failures in the header.
type DecodeError struct {
	Offset int
	Column int
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Column < 0 {
		return fmt.Sprintf("%v (header, offset %d)", e.Err, e.Offset)
	}
	return fmt.Sprintf("%v (column %d, offset %d)", e.Err, e.Column, e.Offset)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
