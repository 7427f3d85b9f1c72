// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/Thermoquad/serialdispatch/pkg/topic"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func testMessages() []*topic.Message {
	at := time.Unix(1700000000, 123456789)
	return []*topic.Message{
		{
			Topic:  "bar",
			Length: 3,
			Columns: []topic.Column{
				topic.IntColumn(topic.FormatU16, 65526, 20, 30),
				topic.IntColumn(topic.FormatU8, 253, 4, 5),
			},
			Received: at,
		},
		{
			Topic:    "mode",
			Length:   1,
			Columns:  []topic.Column{topic.TextColumn("heat")},
			Received: at.Add(time.Second),
		},
		{
			Topic:  "mixed",
			Length: 2,
			Columns: []topic.Column{
				topic.IntColumn(topic.FormatS32, -2147483648, 2147483647),
				{Format: topic.FormatNone, Text: "label"},
			},
		},
	}
}

func TestCapture_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, "Serial: /dev/ttyUSB0 @ 57600 baud")
	if err != nil {
		t.Fatalf("NewWriter error: %v", err)
	}

	msgs := testMessages()
	for _, m := range msgs {
		if err := w.Write(m); err != nil {
			t.Fatalf("Write error: %v", err)
		}
	}
	if w.Count() != len(msgs) {
		t.Errorf("Count = %d, want %d", w.Count(), len(msgs))
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader error: %v", err)
	}
	if h := r.Header(); h.Version != Version || h.Link != "Serial: /dev/ttyUSB0 @ 57600 baud" {
		t.Errorf("unexpected header: %+v", h)
	}

	var got []*topic.Message
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next error: %v", err)
		}
		m, err := rec.Message()
		if err != nil {
			t.Fatalf("Message error: %v", err)
		}
		got = append(got, m)
	}

	opts := cmp.Options{
		cmpopts.EquateEmpty(),
		cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) }),
	}
	if diff := cmp.Diff(msgs, got, opts); diff != "" {
		t.Errorf("capture mismatch (-want +got):\n%s", diff)
	}
}

func TestCapture_ReplayedMessagesEncode(t *testing.T) {
	rec := NewRecord(testMessages()[0])
	m, err := rec.Message()
	if err != nil {
		t.Fatalf("Message error: %v", err)
	}
	if _, err := topic.Encode(m.Topic, m.Columns...); err != nil {
		t.Errorf("replayed message does not encode: %v", err)
	}
}

func TestNewReader_NotCapture(t *testing.T) {
	if _, err := NewReader(bytes.NewReader(nil)); !errors.Is(err, ErrNotCapture) {
		t.Errorf("empty stream: expected ErrNotCapture, got %v", err)
	}

	other, _ := cbor.Marshal(Header{Magic: "something-else", Version: Version})
	if _, err := NewReader(bytes.NewReader(other)); !errors.Is(err, ErrNotCapture) {
		t.Errorf("wrong magic: expected ErrNotCapture, got %v", err)
	}

	future, _ := cbor.Marshal(Header{Magic: Magic, Version: Version + 1})
	if _, err := NewReader(bytes.NewReader(future)); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("future version: expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestRecord_MessageRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{"no columns", Record{Topic: "t", Length: 1}},
		{"ragged", Record{Topic: "t", Length: 1, Formats: []uint8{2}, Text: []string{""}}},
		{"short values", Record{Topic: "t", Length: 2, Formats: []uint8{2}, Text: []string{""}, Values: [][]int64{{1}}}},
		{"float", Record{Topic: "t", Length: 1, Formats: []uint8{8}, Text: []string{""}, Values: [][]int64{{1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.rec.Message(); !errors.Is(err, ErrBadRecord) {
				t.Errorf("expected ErrBadRecord, got %v", err)
			}
		})
	}
}

func TestReader_TruncatedRecord(t *testing.T) {
	var buf bytes.Buffer
	w, _ := NewWriter(&buf, "")
	w.Write(testMessages()[0])

	data := buf.Bytes()[:buf.Len()-3]
	r, err := NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("NewReader error: %v", err)
	}
	if _, err := r.Next(); !errors.Is(err, ErrBadRecord) {
		t.Errorf("expected ErrBadRecord, got %v", err)
	}
}
