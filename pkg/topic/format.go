// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package topic implements the self-describing payload carried inside a
// frame: a null-terminated topic name, a column count, a shared column
// length, nibble-packed format specifiers and the column data.
//
// Wire layout (multi-byte integers little-endian):
//
//	topic 0x00 | dim:u8 | length:u16 | ceil(dim/2) specifier bytes | columns
package topic

import (
	"fmt"
	"strings"
)

// Format tags the element type of one column. It is packed four bits per
// column on the wire.
type Format uint8

// Format specifier values
const (
	FormatNone Format = iota
	FormatString
	FormatU8
	FormatS8
	FormatU16
	FormatS16
	FormatU32
	FormatS32
	FormatFloat
)

var formatNames = [...]string{
	FormatNone:   "NONE",
	FormatString: "STRING",
	FormatU8:     "U8",
	FormatS8:     "S8",
	FormatU16:    "U16",
	FormatS16:    "S16",
	FormatU32:    "U32",
	FormatS32:    "S32",
	FormatFloat:  "FLOAT",
}

// Valid reports whether f is a defined specifier.
func (f Format) Valid() bool {
	return int(f) < len(formatNames)
}

func (f Format) String() string {
	if !f.Valid() {
		return fmt.Sprintf("FORMAT(%d)", uint8(f))
	}
	return formatNames[f]
}

// IsText reports whether the column carries a single null-terminated string.
func (f Format) IsText() bool {
	return f == FormatNone || f == FormatString
}

// IsInteger reports whether the column carries fixed-width integers.
func (f Format) IsInteger() bool {
	return f >= FormatU8 && f <= FormatS32
}

// Bits returns the element width in bits, or 0 for text columns.
func (f Format) Bits() int {
	switch f {
	case FormatU8, FormatS8:
		return 8
	case FormatU16, FormatS16:
		return 16
	case FormatU32, FormatS32, FormatFloat:
		return 32
	}
	return 0
}

// Width returns the element width in bytes, or 0 for text columns.
func (f Format) Width() int {
	return f.Bits() / 8
}

// Signed reports whether elements are decoded as two's complement.
func (f Format) Signed() bool {
	return f == FormatS8 || f == FormatS16 || f == FormatS32 || f == FormatFloat
}

// Range returns the values Encode accepts for an integer column.
// Both signednesses accept [-2^(n-1), 2^n-1]; a negative value in an
// unsigned column is sent as its two's-complement bit pattern.
func (f Format) Range() (min, max int64) {
	bits := f.Bits()
	if !f.IsInteger() {
		return 0, 0
	}
	return -(int64(1) << (bits - 1)), (int64(1) << bits) - 1
}

// ParseFormat parses a specifier name. Long names ("U16", "STRING") and the
// firmware descriptor short forms ("u16", "st", "f") are accepted in any
// case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NONE", "":
		return FormatNone, nil
	case "STRING", "STR", "ST":
		return FormatString, nil
	case "U8":
		return FormatU8, nil
	case "S8":
		return FormatS8, nil
	case "U16":
		return FormatU16, nil
	case "S16":
		return FormatS16, nil
	case "U32":
		return FormatU32, nil
	case "S32":
		return FormatS32, nil
	case "FLOAT", "F":
		return FormatFloat, nil
	}
	return FormatNone, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}
