// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// serialdispatch - topic publish/subscribe over a framed serial link
//
// A CLI tool for exchanging named, typed data topics with a device over a
// serial port or a serial-over-WebSocket bridge.

package main

import (
	"errors"
	"os"

	"github.com/Thermoquad/serialdispatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		var exitErr *cmd.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
