// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package topic

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatMessage formats a message into a human-readable string
func FormatMessage(m *Message) string {
	var sb strings.Builder

	if !m.Received.IsZero() {
		fmt.Fprintf(&sb, "[%s] ", m.Received.Format("15:04:05.000"))
	}
	fmt.Fprintf(&sb, "%s dim=%d len=%d\n", formatTopic(m.Topic), m.Dim(), m.Length)

	for i, c := range m.Columns {
		fmt.Fprintf(&sb, "  [%d] %-6s %s\n", i, c.Format, FormatColumn(c))
	}
	return sb.String()
}

// FormatColumn formats the values of one column on a single line
func FormatColumn(c Column) string {
	if c.Format.IsText() {
		return strconv.Quote(c.Text)
	}
	parts := make([]string, len(c.Values))
	for i, v := range c.Values {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, " ")
}

// HexDump formats raw bytes as space-separated hex
func HexDump(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// formatTopic quotes topic names that would be ambiguous unquoted
func formatTopic(name string) string {
	if name == "" || strings.ContainsAny(name, " \t\r\n\"") || !strconv.CanBackquote(name) {
		return strconv.Quote(name)
	}
	return name
}
