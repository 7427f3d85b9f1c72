// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/serialdispatch/pkg/dispatch"
	"github.com/Thermoquad/serialdispatch/pkg/link"
	"github.com/Thermoquad/serialdispatch/pkg/topic"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	monitorTopics        []string
	monitorTUI           bool
	monitorStatsInterval int
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display decoded topic messages as they arrive",
	Long: `Continuously decode and display topic messages as they arrive.

Without --topic every decoded message is printed. With --topic only the named
topics are subscribed and printed; everything else is discarded on arrival.

Statistics are printed every --stats-interval seconds (0 disables them).
--tui shows a live table of topics with a publish prompt instead.

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringSliceVarP(&monitorTopics, "topic", "t", nil, "Only show these topics (repeatable)")
	monitorCmd.Flags().BoolVar(&monitorTUI, "tui", false, "Use terminal UI")
	monitorCmd.Flags().IntVar(&monitorStatsInterval, "stats-interval", 10, "Seconds between statistics reports (0 to disable)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if monitorTUI {
		return runMonitorTUI()
	}

	showAll := len(monitorTopics) == 0
	d, connInfo, err := OpenDispatcher(func(dc *dispatch.Config) {
		if showAll {
			dc.OnMessage = func(m *topic.Message) {
				fmt.Print(topic.FormatMessage(m))
			}
		}
		dc.OnError = func(err error) {
			fmt.Printf("[ERROR] %v\n", err)
		}
	})
	if err != nil {
		return err
	}
	defer d.Close()

	for _, name := range monitorTopics {
		if _, err := d.Subscribe(name, func(name string) {
			m, err := d.GetData(name)
			if err != nil {
				return
			}
			fmt.Print(topic.FormatMessage(m))
		}); err != nil {
			return err
		}
	}

	fmt.Printf("serialdispatch - Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	if showAll {
		fmt.Printf("Topics: all\n")
	} else {
		fmt.Printf("Topics: %v\n", d.Topics())
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signalContext()
	defer stop()

	var statsTick <-chan time.Time
	if monitorStatsInterval > 0 {
		ticker := time.NewTicker(time.Duration(monitorStatsInterval) * time.Second)
		defer ticker.Stop()
		statsTick = ticker.C
	}

	for {
		select {
		case <-statsTick:
			fmt.Print("\n" + d.Statistics().String() + "\n")

		case <-d.Done():
			if err := d.Err(); err != nil && !errors.Is(err, link.ErrConnectionClosed) {
				return err
			}
			logger.Info().Msg("connection closed")
			return nil

		case <-ctx.Done():
			fmt.Print("\n" + d.Statistics().String())
			return nil
		}
	}
}

func runMonitorTUI() error {
	events := make(chan tea.Msg, 256)
	quit := make(chan struct{})
	forward := func(msg tea.Msg) {
		select {
		case events <- msg:
		case <-quit:
		}
	}

	d, connInfo, err := OpenDispatcher(func(dc *dispatch.Config) {
		dc.OnMessage = func(m *topic.Message) { forward(topicMsg{message: m}) }
		dc.OnError = func(err error) { forward(decodeErrMsg{err: err}) }
		// Logs would corrupt the alternate screen
		dc.Logger = zerolog.Nop()
	})
	if err != nil {
		return err
	}
	defer d.Close()
	defer close(quit)

	p := tea.NewProgram(newMonitorModel(d, connInfo, monitorTopics, events), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
