// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Thermoquad/serialdispatch/pkg/capture"
	"github.com/Thermoquad/serialdispatch/pkg/dispatch"
	"github.com/Thermoquad/serialdispatch/pkg/link"
	"github.com/Thermoquad/serialdispatch/pkg/topic"
	"github.com/spf13/cobra"
)

var (
	recordOut      string
	recordDuration time.Duration
	recordTopics   []string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record decoded topic messages to a capture file",
	Long: `Record every decoded topic message to a CBOR capture file until Ctrl+C,
the connection closes or --duration elapses.

The capture can be printed or re-sent with the replay command.`,
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().StringVarP(&recordOut, "out", "o", "", "Capture file to write (required)")
	recordCmd.Flags().DurationVar(&recordDuration, "duration", 0, "Stop after this long (0 records until interrupted)")
	recordCmd.Flags().StringSliceVarP(&recordTopics, "topic", "t", nil, "Only record these topics (repeatable)")
	recordCmd.MarkFlagRequired("out")
}

func runRecord(cmd *cobra.Command, args []string) error {
	f, err := os.Create(recordOut)
	if err != nil {
		return fmt.Errorf("failed to create capture: %w", err)
	}
	defer f.Close()
	buffered := bufio.NewWriter(f)

	filter := make(map[string]bool, len(recordTopics))
	for _, name := range recordTopics {
		filter[name] = true
	}

	var (
		mu       sync.Mutex
		w        *capture.Writer
		writeErr error
	)
	record := func(m *topic.Message) {
		if len(filter) > 0 && !filter[m.Topic] {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if w == nil || writeErr != nil {
			return
		}
		writeErr = w.Write(m)
	}

	d, connInfo, err := OpenDispatcher(func(dc *dispatch.Config) {
		dc.OnMessage = record
	})
	if err != nil {
		return err
	}
	defer d.Close()

	mu.Lock()
	w, err = capture.NewWriter(buffered, connInfo)
	mu.Unlock()
	if err != nil {
		return err
	}

	fmt.Printf("serialdispatch - Record\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Output: %s\n", recordOut)
	fmt.Printf("Press Ctrl+C to stop\n\n")

	ctx, stop := signalContext()
	defer stop()

	var deadline <-chan time.Time
	if recordDuration > 0 {
		timer := time.NewTimer(recordDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	var linkErr error
	select {
	case <-ctx.Done():
	case <-deadline:
	case <-d.Done():
		if err := d.Err(); err != nil && !errors.Is(err, link.ErrConnectionClosed) {
			linkErr = err
		}
	}

	// Stop the worker before flushing so no record is half written
	d.Close()

	mu.Lock()
	count, werr := w.Count(), writeErr
	mu.Unlock()
	if werr != nil {
		return fmt.Errorf("failed to write capture: %w", werr)
	}
	if err := buffered.Flush(); err != nil {
		return fmt.Errorf("failed to write capture: %w", err)
	}

	fmt.Printf("Recorded %d messages to %s\n", count, recordOut)
	return linkErr
}
