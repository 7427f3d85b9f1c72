// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package topic

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// MaxColumns is the largest column count the dim byte can carry.
const MaxColumns = 0xFF

// MaxLength is the largest shared column length.
const MaxLength = 0xFFFF

// headerSize is dim plus length, following the topic terminator.
const headerSize = 3

// Encode serializes a topic message. The shared length is the element count
// of the integer columns, which must agree; it is 1 when every column is
// text.
func Encode(name string, columns ...Column) ([]byte, error) {
	if strings.IndexByte(name, 0) >= 0 {
		return nil, ErrInvalidTopic
	}
	if len(columns) == 0 {
		return nil, ErrNoColumns
	}
	if len(columns) > MaxColumns {
		return nil, fmt.Errorf("%w: %d", ErrTooManyColumns, len(columns))
	}

	length, err := sharedLength(columns)
	if err != nil {
		return nil, err
	}

	dim := len(columns)
	buf := make([]byte, 0, len(name)+1+headerSize+(dim+1)/2+length*4*dim)
	buf = append(buf, name...)
	buf = append(buf, 0)
	buf = append(buf, byte(dim))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(length))

	// Two specifiers per byte, low nibble first
	for i := 0; i < dim; i += 2 {
		b := byte(columns[i].Format)
		if i+1 < dim {
			b |= byte(columns[i+1].Format) << 4
		}
		buf = append(buf, b)
	}

	for i, c := range columns {
		if c.Format.IsText() {
			buf = append(buf, c.Text...)
			buf = append(buf, 0)
			continue
		}
		min, max := c.Format.Range()
		for j, v := range c.Values {
			if v < min || v > max {
				return nil, fmt.Errorf("%w: column %d element %d is %d, %s accepts [%d, %d]",
					ErrValueOutOfRange, i, j, v, c.Format, min, max)
			}
			buf = appendInt(buf, c.Format, v)
		}
	}

	return buf, nil
}

// sharedLength validates column formats and returns the common length.
func sharedLength(columns []Column) (int, error) {
	length := -1
	for i, c := range columns {
		switch {
		case !c.Format.Valid():
			return 0, fmt.Errorf("%w: column %d has specifier %d", ErrUnknownFormat, i, uint8(c.Format))
		case c.Format == FormatFloat:
			return 0, fmt.Errorf("%w: column %d is %s", ErrUnsupportedFormat, i, c.Format)
		case c.Format.IsText():
			if strings.IndexByte(c.Text, 0) >= 0 {
				return 0, fmt.Errorf("%w: column %d", ErrInvalidText, i)
			}
		default:
			if length < 0 {
				length = len(c.Values)
			} else if len(c.Values) != length {
				return 0, fmt.Errorf("%w: column %d has %d elements, expected %d",
					ErrLengthMismatch, i, len(c.Values), length)
			}
		}
	}
	if length < 0 {
		return 1, nil
	}
	if length > MaxLength {
		return 0, fmt.Errorf("%w: %d", ErrLengthOverflow, length)
	}
	return length, nil
}

func appendInt(buf []byte, f Format, v int64) []byte {
	switch f.Width() {
	case 1:
		return append(buf, uint8(v))
	case 2:
		return binary.LittleEndian.AppendUint16(buf, uint16(v))
	default:
		return binary.LittleEndian.AppendUint32(buf, uint32(v))
	}
}

// Decode parses a topic payload. A text column without its terminator runs
// to the end of the payload. Bytes after the last column are ignored.
func Decode(payload []byte) (*Message, error) {
	nul := bytes.IndexByte(payload, 0)
	if nul < 0 {
		return nil, &DecodeError{Offset: len(payload), Column: -1, Err: ErrTruncated}
	}
	off := nul + 1
	if len(payload)-off < headerSize {
		return nil, &DecodeError{Offset: len(payload), Column: -1, Err: ErrTruncated}
	}

	dim := int(payload[off])
	length := int(binary.LittleEndian.Uint16(payload[off+1:]))
	if dim == 0 {
		return nil, &DecodeError{Offset: off, Column: -1, Err: ErrMalformedHeader}
	}
	off += headerSize

	specBytes := (dim + 1) / 2
	if len(payload)-off < specBytes {
		return nil, &DecodeError{Offset: len(payload), Column: -1, Err: ErrTruncated}
	}
	formats := make([]Format, dim)
	for i := range formats {
		b := payload[off+i/2]
		if i%2 == 1 {
			b >>= 4
		}
		formats[i] = Format(b & 0x0F)
		if !formats[i].Valid() {
			return nil, &DecodeError{Offset: off + i/2, Column: i, Err: ErrUnknownFormat}
		}
	}
	off += specBytes

	m := &Message{
		Topic:   string(payload[:nul]),
		Length:  length,
		Columns: make([]Column, dim),
	}

	for i, f := range formats {
		col := Column{Format: f}
		switch {
		case f.IsText():
			end := bytes.IndexByte(payload[off:], 0)
			if end < 0 {
				col.Text = string(payload[off:])
				off = len(payload)
			} else {
				col.Text = string(payload[off : off+end])
				off += end + 1
			}
		case f == FormatFloat:
			return nil, &DecodeError{Offset: off, Column: i, Err: ErrUnsupportedFormat}
		default:
			w := f.Width()
			if len(payload)-off < length*w {
				return nil, &DecodeError{Offset: len(payload), Column: i, Err: ErrTruncated}
			}
			col.Values = make([]int64, length)
			for j := range col.Values {
				col.Values[j] = readInt(f, payload[off+j*w:])
			}
			off += length * w
		}
		m.Columns[i] = col
	}

	return m, nil
}

func readInt(f Format, b []byte) int64 {
	switch f {
	case FormatU8:
		return int64(b[0])
	case FormatS8:
		return int64(int8(b[0]))
	case FormatU16:
		return int64(binary.LittleEndian.Uint16(b))
	case FormatS16:
		return int64(int16(binary.LittleEndian.Uint16(b)))
	case FormatU32:
		return int64(binary.LittleEndian.Uint32(b))
	default:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	}
}
