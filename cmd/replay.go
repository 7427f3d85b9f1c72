// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/serialdispatch/pkg/capture"
	"github.com/Thermoquad/serialdispatch/pkg/dispatch"
	"github.com/Thermoquad/serialdispatch/pkg/topic"
	"github.com/spf13/cobra"
)

var (
	replayIn     string
	replayRate   float64
	replayDryRun bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-send the messages of a capture file",
	Long: `Read a capture file written by record and publish every message again,
keeping the recorded spacing scaled by --rate (2 is twice as fast, 0 sends
as fast as possible).

With --dry-run the capture is printed and nothing is sent.`,
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVarP(&replayIn, "in", "i", "", "Capture file to read (required)")
	replayCmd.Flags().Float64Var(&replayRate, "rate", 1, "Playback speed multiplier (0 for no delay)")
	replayCmd.Flags().BoolVar(&replayDryRun, "dry-run", false, "Print the capture without sending")
	replayCmd.MarkFlagRequired("in")
}

func runReplay(cmd *cobra.Command, args []string) error {
	if replayRate < 0 {
		return fmt.Errorf("--rate must not be negative")
	}

	f, err := os.Open(replayIn)
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	r, err := capture.NewReader(bufio.NewReader(f))
	if err != nil {
		return err
	}
	hdr := r.Header()

	var d *dispatch.Dispatcher
	if !replayDryRun {
		var connInfo string
		d, connInfo, err = OpenDispatcher(nil)
		if err != nil {
			return err
		}
		defer d.Close()
		fmt.Printf("Connection: %s\n", connInfo)
	}

	fmt.Printf("Capture: %s (recorded %s from %s)\n", replayIn, time.Unix(0, hdr.Started).Format(time.RFC3339), hdr.Link)

	ctx, stop := signalContext()
	defer stop()

	var prev time.Time
	sent := 0
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		m, err := rec.Message()
		if err != nil {
			return err
		}

		if replayDryRun {
			fmt.Print(topic.FormatMessage(m))
			sent++
			continue
		}

		if ts := rec.Timestamp(); !prev.IsZero() && replayRate > 0 {
			gap := time.Duration(float64(ts.Sub(prev)) / replayRate)
			if gap > 0 {
				select {
				case <-time.After(gap):
				case <-ctx.Done():
					fmt.Printf("Interrupted after %d messages\n", sent)
					return nil
				}
			}
		}
		prev = rec.Timestamp()

		if _, err := d.PublishContext(ctx, m.Topic, m.Columns...); err != nil {
			if ctx.Err() != nil {
				fmt.Printf("Interrupted after %d messages\n", sent)
				return nil
			}
			return err
		}
		sent++
	}

	if replayDryRun {
		fmt.Printf("%d messages\n", sent)
	} else {
		fmt.Printf("Replayed %d messages\n", sent)
	}
	return nil
}
