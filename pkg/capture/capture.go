// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records decoded topic messages to a CBOR stream and reads
// them back for replay.
//
// A capture is a header item followed by one item per message, each a CBOR
// map with small integer keys.
package capture

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Thermoquad/serialdispatch/pkg/topic"
	"github.com/fxamacker/cbor/v2"
)

// Magic identifies a capture stream
const Magic = "serialdispatch-capture"

// Version of the record layout
const Version = 1

var (
	ErrNotCapture         = errors.New("capture: stream has no capture header")
	ErrUnsupportedVersion = errors.New("capture: unsupported version")
	ErrBadRecord          = errors.New("capture: malformed record")
)

// Header is the first item of a capture
type Header struct {
	Magic   string `cbor:"1,keyasint"`
	Version int    `cbor:"2,keyasint"`
	Started int64  `cbor:"3,keyasint"` // unix nanoseconds
	Link    string `cbor:"4,keyasint,omitempty"`
}

// Record is one captured message. Text and Values are indexed by column;
// Text is empty for integer columns and Values is nil for text columns.
type Record struct {
	Time    int64     `cbor:"1,keyasint"` // unix nanoseconds
	Topic   string    `cbor:"2,keyasint"`
	Length  int       `cbor:"3,keyasint"`
	Formats []uint8   `cbor:"4,keyasint"`
	Text    []string  `cbor:"5,keyasint"`
	Values  [][]int64 `cbor:"6,keyasint"`
}

// NewRecord converts a message to a record
func NewRecord(m *topic.Message) Record {
	r := Record{
		Topic:   m.Topic,
		Length:  m.Length,
		Formats: make([]uint8, len(m.Columns)),
		Text:    make([]string, len(m.Columns)),
		Values:  make([][]int64, len(m.Columns)),
	}
	if !m.Received.IsZero() {
		r.Time = m.Received.UnixNano()
	}
	for i, c := range m.Columns {
		r.Formats[i] = uint8(c.Format)
		r.Text[i] = c.Text
		r.Values[i] = c.Values
	}
	return r
}

// Timestamp returns the receive time of the record
func (r Record) Timestamp() time.Time {
	if r.Time == 0 {
		return time.Time{}
	}
	return time.Unix(0, r.Time)
}

// Message rebuilds the captured message
func (r Record) Message() (*topic.Message, error) {
	dim := len(r.Formats)
	if dim == 0 || len(r.Text) != dim || len(r.Values) != dim {
		return nil, fmt.Errorf("%w: %d formats, %d texts, %d value columns",
			ErrBadRecord, dim, len(r.Text), len(r.Values))
	}

	m := &topic.Message{
		Topic:    r.Topic,
		Length:   r.Length,
		Columns:  make([]topic.Column, dim),
		Received: r.Timestamp(),
	}
	for i, raw := range r.Formats {
		f := topic.Format(raw)
		switch {
		case f.IsText():
			m.Columns[i] = topic.Column{Format: f, Text: r.Text[i]}
		case f.IsInteger():
			if len(r.Values[i]) != r.Length {
				return nil, fmt.Errorf("%w: column %d has %d values, length is %d",
					ErrBadRecord, i, len(r.Values[i]), r.Length)
			}
			m.Columns[i] = topic.Column{Format: f, Values: r.Values[i]}
		default:
			return nil, fmt.Errorf("%w: column %d has format %s", ErrBadRecord, i, f)
		}
	}
	return m, nil
}

// Writer appends records to a capture stream
type Writer struct {
	enc   *cbor.Encoder
	count int
}

// NewWriter writes the capture header to w. linkInfo describes the source
// and may be empty.
func NewWriter(w io.Writer, linkInfo string) (*Writer, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("capture: encoder setup: %w", err)
	}

	enc := em.NewEncoder(w)
	header := Header{
		Magic:   Magic,
		Version: Version,
		Started: time.Now().UnixNano(),
		Link:    linkInfo,
	}
	if err := enc.Encode(header); err != nil {
		return nil, fmt.Errorf("capture: write header: %w", err)
	}
	return &Writer{enc: enc}, nil
}

// Write appends one message
func (w *Writer) Write(m *topic.Message) error {
	if err := w.enc.Encode(NewRecord(m)); err != nil {
		return fmt.Errorf("capture: write record: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of records written
func (w *Writer) Count() int {
	return w.count
}

// Reader reads records from a capture stream
type Reader struct {
	dec    *cbor.Decoder
	header Header
}

// NewReader reads and validates the capture header
func NewReader(r io.Reader) (*Reader, error) {
	dec := cbor.NewDecoder(r)

	var h Header
	if err := dec.Decode(&h); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNotCapture
		}
		return nil, fmt.Errorf("%w: %v", ErrNotCapture, err)
	}
	if h.Magic != Magic {
		return nil, ErrNotCapture
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	return &Reader{dec: dec, header: h}, nil
}

// Header returns the capture header
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next record, or io.EOF at the end of the stream
func (r *Reader) Next() (*Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: %v", ErrBadRecord, err)
	}
	return &rec, nil
}
