// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/serialdispatch/pkg/dispatch"
	"github.com/Thermoquad/serialdispatch/pkg/topic"
	"github.com/spf13/cobra"
)

var (
	waitTimeout int
	waitTopic   string
)

var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Test connection by waiting for a valid topic message",
	Long: `Wait for a valid topic message on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any frame
that passes its checksum and decodes as a topic message. Noise and corrupt
frames are skipped. With --topic only that topic counts.

Exit codes:
  0 - Message received before timeout
  1 - Timeout reached without receiving a valid message
  2 - Connection error

Useful for testing connectivity before running scripts against a device.`,
	RunE: runWait,
}

func init() {
	rootCmd.AddCommand(waitCmd)
	waitCmd.Flags().IntVar(&waitTimeout, "timeout", 10, "Timeout in seconds to wait for a message")
	waitCmd.Flags().StringVarP(&waitTopic, "topic", "t", "", "Only accept this topic")
}

func runWait(cmd *cobra.Command, args []string) error {
	received := make(chan *topic.Message, 1)
	offer := func(m *topic.Message) {
		select {
		case received <- m:
		default:
		}
	}

	d, connInfo, err := OpenDispatcher(func(dc *dispatch.Config) {
		if waitTopic == "" {
			dc.OnMessage = offer
		}
	})
	if err != nil {
		return &ExitError{Code: 2, Err: fmt.Errorf("connection error: %w", err)}
	}
	defer d.Close()

	if waitTopic != "" {
		if _, err := d.Subscribe(waitTopic, func(name string) {
			if m, err := d.GetData(name); err == nil {
				offer(m)
			}
		}); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "serialdispatch - Wait\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Timeout: %d seconds\n", waitTimeout)
	fmt.Fprintf(out, "Waiting for valid topic message...\n\n")

	select {
	case m := <-received:
		st := d.Statistics()
		if skipped := st.DiscardedBytes; skipped > 0 {
			fmt.Fprintf(out, "(skipped %d invalid bytes before sync)\n", skipped)
		}
		formats := make([]string, 0, m.Dim())
		for _, f := range m.Formats() {
			formats = append(formats, f.String())
		}
		fmt.Fprintf(out, "SUCCESS: Received valid message\n")
		fmt.Fprintf(out, "  Topic: %s\n", m.Topic)
		fmt.Fprintf(out, "  Columns: %d (%s)\n", m.Dim(), strings.Join(formats, ", "))
		fmt.Fprintf(out, "  Length: %d\n", m.Length)
		return nil

	case <-d.Done():
		return &ExitError{Code: 2, Err: fmt.Errorf("read error: %w", d.Err())}

	case <-time.After(time.Duration(waitTimeout) * time.Second):
		return &ExitError{Code: 1, Err: fmt.Errorf("TIMEOUT: no valid message received within %d seconds", waitTimeout)}
	}
}
