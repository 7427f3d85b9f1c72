// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package topic

import "fmt"

// Integer is any Go integer type an integer column can be converted to.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Elements converts integer column i to []T. It fails if the column holds
// text or any element does not fit in T.
func Elements[T Integer](m *Message, i int) ([]T, error) {
	c, err := m.Column(i)
	if err != nil {
		return nil, err
	}
	if !c.Format.IsInteger() {
		return nil, fmt.Errorf("%w: column %d is %s", ErrTextColumn, i, c.Format)
	}

	out := make([]T, len(c.Values))
	for j, v := range c.Values {
		t := T(v)
		if int64(t) != v || (t < 0) != (v < 0) {
			return nil, fmt.Errorf("%w: column %d element %d (%d) does not fit %T",
				ErrValueOutOfRange, i, j, v, t)
		}
		out[j] = t
	}
	return out, nil
}
