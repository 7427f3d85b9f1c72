// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/Thermoquad/serialdispatch/pkg/topic"
	"github.com/spf13/cobra"
)

var (
	publishHex      bool
	publishCount    int
	publishInterval time.Duration
)

var publishCmd = &cobra.Command{
	Use:   "publish [flags] DESCRIPTOR [VALUES...]",
	Short: "Publish one topic message",
	Long: `Encode, frame and send a topic message.

The descriptor names the topic, the shared column length and the column
formats: name[:length],fmt[,fmt...]. Formats are u8, s8, u16, s16, u32, s32
and st (string). A descriptor without formats sends one string column.

Values follow in column order: one value per string column and length values
per integer column. Integers accept 0x, 0o and 0b prefixes.

Flags go before the descriptor. Everything after it is a value, so negative
numbers need no quoting. A "--" before the values is also accepted.

Examples:
  serialdispatch publish "period:1,u16" 100
  serialdispatch publish "mode,st" heat
  serialdispatch publish --hex "bar:3,u16,u8" -10 20 30 -3 4 5
  serialdispatch publish --hex "bar:3,u16,u8" -- -10 20 30 -3 4 5`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().BoolVar(&publishHex, "hex", false, "Print the framed bytes")
	publishCmd.Flags().IntVar(&publishCount, "count", 1, "Number of times to send the message")
	publishCmd.Flags().DurationVar(&publishInterval, "interval", time.Second, "Delay between repeated sends")

	// Stop at the descriptor so values such as -10 are not read as flags
	publishCmd.Flags().SetInterspersed(false)
}

// publishValues drops the "--" separator that precedes the values when
// flag parsing stopped at the descriptor
func publishValues(args []string) []string {
	if len(args) > 0 && args[0] == "--" {
		return args[1:]
	}
	return args
}

func runPublish(cmd *cobra.Command, args []string) error {
	desc, err := topic.ParseDescriptor(args[0])
	if err != nil {
		return err
	}
	cols, err := desc.Columns(publishValues(args[1:]))
	if err != nil {
		return err
	}
	if publishCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	d, connInfo, err := OpenDispatcher(nil)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, stop := signalContext()
	defer stop()

	logger.Debug().Str("link", connInfo).Str("descriptor", desc.String()).Msg("publishing")

	out := cmd.OutOrStdout()
	for i := 0; i < publishCount; i++ {
		if i > 0 {
			select {
			case <-time.After(publishInterval):
			case <-ctx.Done():
				return nil
			}
		}

		framed, err := d.PublishContext(ctx, desc.Topic, cols...)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Published %s (%d bytes)\n", desc, len(framed))
		if publishHex {
			fmt.Fprintf(out, "  %s\n", topic.HexDump(framed))
		}
	}
	return nil
}
