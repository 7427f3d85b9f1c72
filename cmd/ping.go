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
	pingTimeout int
	pingCount   int
	pingRequest string
	pingReply   string
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure round trips by publishing a request topic and waiting for a reply",
	Long: `Publish a request topic carrying a U32 sequence number and wait for the
device to publish the reply topic.

A reply whose first integer column starts with the sequence number is
matched to its request; a reply without integer columns is accepted as is.

This is useful for verifying:
  - The link is open in both directions
  - The device firmware is dispatching topics
  - Round-trip latency of the link

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().StringVar(&pingRequest, "request", "ping", "Topic to publish")
	pingCmd.Flags().StringVar(&pingReply, "reply", "pong", "Topic the device answers on")
}

// pingMatches reports whether a reply answers request seq
func pingMatches(m *topic.Message, seq uint32) bool {
	rows := m.Rows()
	if len(rows) == 0 {
		return true
	}
	return len(rows[0]) > 0 && uint32(rows[0][0]) == seq
}

func runPing(cmd *cobra.Command, args []string) error {
	d, connInfo, err := OpenDispatcher(nil)
	if err != nil {
		return &ExitError{Code: 2, Err: fmt.Errorf("connection error: %w", err)}
	}
	defer d.Close()

	replies := make(chan *topic.Message, 16)
	if _, err := d.Subscribe(pingReply, func(name string) {
		m, err := d.GetData(name)
		if err != nil {
			return
		}
		select {
		case replies <- m:
		default:
		}
	}); err != nil {
		return err
	}

	fmt.Printf("serialdispatch - Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Request: %s, reply: %s\n", pingRequest, pingReply)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	successCount := 0
	failCount := 0
	var totalRTT time.Duration

pings:
	for i := 1; i <= pingCount; i++ {
		seq := uint32(i)
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		startTime := time.Now()
		if _, err := d.Publish(pingRequest, topic.IntColumn(topic.FormatU32, int64(seq))); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			failCount++
			continue
		}

		timeout := time.After(time.Duration(pingTimeout) * time.Second)
	wait:
		for {
			select {
			case m := <-replies:
				if !pingMatches(m, seq) {
					// Late reply to an earlier ping
					continue
				}
				rtt := time.Since(startTime)
				totalRTT += rtt
				fmt.Printf("reply from %s, rtt=%v\n", m.Topic, rtt.Round(time.Millisecond))
				successCount++
				break wait

			case <-d.Done():
				fmt.Printf("READ FAILED: %v\n", d.Err())
				failCount += pingCount - i + 1
				break pings

			case <-timeout:
				fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)
				failCount++
				break wait
			}
		}

		// Small delay between pings
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	// Summary
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)
	if successCount > 0 {
		fmt.Printf("average rtt=%v\n", (totalRTT / time.Duration(successCount)).Round(time.Millisecond))
	}

	if failCount > 0 {
		return &ExitError{Code: 1}
	}
	return nil
}
