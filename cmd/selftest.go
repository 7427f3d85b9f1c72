// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/Thermoquad/serialdispatch/pkg/dispatch"
	"github.com/Thermoquad/serialdispatch/pkg/link"
	"github.com/Thermoquad/serialdispatch/pkg/topic"
	"github.com/spf13/cobra"
)

var selftestTimeout time.Duration

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Run a publish/subscribe round trip over an in-memory link",
	Long: `Publish topic "bar" with a U16 column [-10, 20, 30] and a U8 column
[-3, 4, 5] over a loopback link, then check that the subscriber receives the
same values back through framing, escaping and the checksum.

No device is needed. Exit code 0 on PASS, 1 on FAIL.`,
	Args: cobra.NoArgs,
	RunE: runSelftest,
}

func init() {
	rootCmd.AddCommand(selftestCmd)
	selftestCmd.Flags().DurationVar(&selftestTimeout, "timeout", 2*time.Second, "Time to wait for the message to come back")
}

func runSelftest(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if err := selftest(out, selftestTimeout); err != nil {
		fmt.Fprintf(out, "FAIL: %v\n", err)
		return &ExitError{Code: 1}
	}
	fmt.Fprintf(out, "PASS\n")
	return nil
}

// selftest runs the "bar" round trip and prints what went over the wire
func selftest(out io.Writer, timeout time.Duration) error {
	want := [][]int64{{-10, 20, 30}, {-3, 4, 5}}
	formats := []topic.Format{topic.FormatU16, topic.FormatU8}

	dc := cfg.Dispatch(logger)
	dc.PollInterval = time.Millisecond
	d := dispatch.New(link.NewLoopback(0), dc)
	defer d.Close()

	received := make(chan *topic.Message, 1)
	if _, err := d.Subscribe("bar", func(name string) {
		if m, err := d.GetData(name); err == nil {
			received <- m
		}
	}); err != nil {
		return err
	}

	cols := make([]topic.Column, len(formats))
	for i, f := range formats {
		cols[i] = topic.IntColumn(f, want[i]...)
	}
	framed, err := d.Publish("bar", cols...)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	fmt.Fprintf(out, "Sent:     %s\n", topic.HexDump(framed))

	var m *topic.Message
	select {
	case m = <-received:
	case <-time.After(timeout):
		return fmt.Errorf("no message within %v", timeout)
	}
	fmt.Fprint(out, topic.FormatMessage(m))

	if m.Dim() != len(want) || m.Length != len(want[0]) {
		return fmt.Errorf("got dim=%d len=%d, want dim=%d len=%d", m.Dim(), m.Length, len(want), len(want[0]))
	}
	if !slices.Equal(m.Formats(), formats) {
		return fmt.Errorf("got formats %v, want %v", m.Formats(), formats)
	}
	for i, c := range m.Columns {
		if got := c.SignedValues(); !slices.Equal(got, want[i]) {
			return fmt.Errorf("column %d: got %v, want %v", i, got, want[i])
		}
	}

	st := d.Statistics()
	if st.ChecksumErrors > 0 || st.DecodeErrors > 0 {
		return fmt.Errorf("link reported %d checksum and %d decode errors", st.ChecksumErrors, st.DecodeErrors)
	}
	return nil
}
