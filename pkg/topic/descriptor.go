// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package topic

import (
	"fmt"
	"strconv"
	"strings"
)

// Descriptor is the firmware's compact topic declaration, written as
//
//	name[:length],fmt[,fmt...]
//
// for example "bar:3,u16,u8". A descriptor without formats declares a single
// text column; a missing or zero length means 1.
type Descriptor struct {
	Topic   string
	Length  int
	Formats []Format
}

// ParseDescriptor parses a descriptor string.
func ParseDescriptor(s string) (Descriptor, error) {
	head, rest, hasFormats := strings.Cut(s, ",")

	name, lenStr, hasLen := strings.Cut(head, ":")
	d := Descriptor{Topic: strings.TrimSpace(name), Length: 1}
	if strings.IndexByte(d.Topic, 0) >= 0 {
		return Descriptor{}, ErrInvalidTopic
	}
	if hasLen {
		n, err := strconv.Atoi(strings.TrimSpace(lenStr))
		if err != nil || n < 0 || n > MaxLength {
			return Descriptor{}, fmt.Errorf("%w: bad length %q", ErrInvalidDescriptor, lenStr)
		}
		if n > 0 {
			d.Length = n
		}
	}

	if !hasFormats {
		d.Formats = []Format{FormatString}
		return d, nil
	}
	for _, field := range strings.Split(rest, ",") {
		f, err := ParseFormat(field)
		if err != nil {
			return Descriptor{}, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
		}
		d.Formats = append(d.Formats, f)
	}
	if len(d.Formats) > MaxColumns {
		return Descriptor{}, fmt.Errorf("%w: %w", ErrInvalidDescriptor, ErrTooManyColumns)
	}
	return d, nil
}

// String renders the descriptor in its parseable form.
func (d Descriptor) String() string {
	var sb strings.Builder
	sb.WriteString(d.Topic)
	fmt.Fprintf(&sb, ":%d", d.Length)
	for _, f := range d.Formats {
		sb.WriteByte(',')
		sb.WriteString(strings.ToLower(f.String()))
	}
	return sb.String()
}

// ValueCount returns how many literal values Columns expects.
func (d Descriptor) ValueCount() int {
	n := 0
	for _, f := range d.Formats {
		if f.IsText() {
			n++
		} else {
			n += d.Length
		}
	}
	return n
}

// Columns builds typed columns from literal values in column order: one value
// per text column, Length values per integer column. Integers accept the
// prefixes understood by strconv.ParseInt with base 0.
func (d Descriptor) Columns(values []string) ([]Column, error) {
	if want := d.ValueCount(); len(values) != want {
		return nil, fmt.Errorf("%w: %s takes %d values, got %d", ErrInvalidDescriptor, d, want, len(values))
	}

	cols := make([]Column, 0, len(d.Formats))
	for _, f := range d.Formats {
		if f.IsText() {
			cols = append(cols, Column{Format: f, Text: values[0]})
			values = values[1:]
			continue
		}
		col := Column{Format: f, Values: make([]int64, d.Length)}
		for j := range col.Values {
			v, err := strconv.ParseInt(strings.TrimSpace(values[j]), 0, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not an integer", ErrInvalidDescriptor, values[j])
			}
			col.Values[j] = v
		}
		values = values[d.Length:]
		cols = append(cols, col)
	}
	return cols, nil
}

// Encode builds and encodes a message from literal values.
func (d Descriptor) Encode(values []string) ([]byte, error) {
	cols, err := d.Columns(values)
	if err != nil {
		return nil, err
	}
	return Encode(d.Topic, cols...)
}
