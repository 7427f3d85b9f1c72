// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package topic

import (
	"fmt"
	"time"
)

// Column is one typed column of a topic message.
// Text columns use Text; integer columns use Values.
type Column struct {
	Format Format
	Text   string
	Values []int64
}

// TextColumn creates a STRING column.
func TextColumn(s string) Column {
	return Column{Format: FormatString, Text: s}
}

// IntColumn creates an integer column of the given format.
func IntColumn(f Format, values ...int64) Column {
	return Column{Format: f, Values: values}
}

// Len returns the number of elements: 1 for text, len(Values) otherwise.
func (c Column) Len() int {
	if c.Format.IsText() {
		return 1
	}
	return len(c.Values)
}

// SignedValues returns the elements read as two's complement of the column
// width. Unsigned columns decode as unsigned, so a negative value sent in a
// U16 column arrives as 65526; SignedValues turns it back into -10. Text
// columns return nil.
func (c Column) SignedValues() []int64 {
	if !c.Format.IsInteger() {
		return nil
	}
	out := make([]int64, len(c.Values))
	for i, v := range c.Values {
		switch c.Format.Bits() {
		case 8:
			out[i] = int64(int8(v))
		case 16:
			out[i] = int64(int16(v))
		default:
			out[i] = int64(int32(v))
		}
	}
	return out
}

// Message is a decoded topic value.
type Message struct {
	Topic   string
	Length  int // elements per integer column
	Columns []Column

	// Received is stamped by the dispatcher; the codec leaves it zero.
	Received time.Time
}

// Dim returns the number of columns.
func (m *Message) Dim() int {
	return len(m.Columns)
}

// Formats returns the format specifier of every column in order.
func (m *Message) Formats() []Format {
	out := make([]Format, len(m.Columns))
	for i, c := range m.Columns {
		out[i] = c.Format
	}
	return out
}

// Text returns the first text column, if any.
func (m *Message) Text() (string, bool) {
	for _, c := range m.Columns {
		if c.Format.IsText() {
			return c.Text, true
		}
	}
	return "", false
}

// Rows returns the integer columns in order, one slice per column.
func (m *Message) Rows() [][]int64 {
	var rows [][]int64
	for _, c := range m.Columns {
		if c.Format.IsInteger() {
			rows = append(rows, c.Values)
		}
	}
	return rows
}

// Column returns column i.
func (m *Message) Column(i int) (Column, error) {
	if i < 0 || i >= len(m.Columns) {
		return Column{}, fmt.Errorf("%w: %d of %d", ErrNoSuchColumn, i, len(m.Columns))
	}
	return m.Columns[i], nil
}
