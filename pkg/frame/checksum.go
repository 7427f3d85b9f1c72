// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

// Fletcher16 computes the link checksum for the given data.
//
// Both accumulators start at 0xFF and wrap at 16 bits. After the loop each
// accumulator is folded (low byte plus high byte) before being combined as
// sum2<<8 | sum1. The fold must be kept bit-for-bit for wire compatibility
// with the firmware.
func Fletcher16(data []byte) uint16 {
	sum1 := uint32(fletcherInitial)
	sum2 := uint32(fletcherInitial)

	for _, b := range data {
		sum1 = (sum1 + uint32(b)) & 0xFFFF
		sum2 = (sum2 + sum1) & 0xFFFF
	}

	sum1 = (sum1 & 0xFF) + (sum1 >> 8)
	sum2 = (sum2 & 0xFF) + (sum2 >> 8)

	return uint16(((sum2 << 8) & 0xFFFF) | sum1)
}
