// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dispatch

import "errors"

var (
	// ErrNoData is returned by GetData when no value is stored for a topic:
	// it was never received, had no subscribers, or was already purged.
	ErrNoData = errors.New("dispatch: no data available for topic")

	ErrNotSubscribed = errors.New("dispatch: subscription not found")
	ErrInvalidTopic  = errors.New("dispatch: topic must be non-empty and contain no null byte")
	ErrNilCallback   = errors.New("dispatch: nil callback")
	ErrClosed        = errors.New("dispatch: dispatcher closed")
)
