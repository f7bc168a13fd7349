// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pairing

import "testing"

func TestParseRemain(t *testing.T) {
	valid := []struct {
		value any
		want  int
	}{
		{int32(42), 42},
		{int16(-3), -3},
		{uint16(7), 7},
		{int64(1200), 1200},
		{float64(40), 40},
		{float32(12), 12},
		{" 15 ", 15},
	}
	for _, tc := range valid {
		got, err := ParseRemain(tc.value)
		if err != nil {
			t.Errorf("ParseRemain(%#v): %v", tc.value, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseRemain(%#v) = %d, want %d", tc.value, got, tc.want)
		}
	}

	invalid := []any{nil, "forty", 40.5, int64(1) << 40, true, []byte("1")}
	for _, value := range invalid {
		if got, err := ParseRemain(value); err == nil {
			t.Errorf("ParseRemain(%#v) = %d, want error", value, got)
		}
	}
}
