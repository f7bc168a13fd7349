// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pairing

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseRemain converts a notification value to a remain count. Integer
// kinds, integral floats, and decimal strings are accepted; anything
// else is an error the caller logs before dropping the notification.
func ParseRemain(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int8:
		return int(v), nil
	case int16:
		return int(v), nil
	case int32:
		return int(v), nil
	case int64:
		return fromInt64(v)
	case uint8:
		return int(v), nil
	case uint16:
		return int(v), nil
	case uint32:
		return fromInt64(int64(v))
	case uint64:
		if v > math.MaxInt32 {
			return 0, fmt.Errorf("remain %d out of range", v)
		}
		return int(v), nil
	case float32:
		return fromFloat(float64(v))
	case float64:
		return fromFloat(v)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 32)
		if err != nil {
			return 0, fmt.Errorf("remain %q is not an integer", v)
		}
		return int(parsed), nil
	case nil:
		return 0, fmt.Errorf("remain is empty")
	default:
		return 0, fmt.Errorf("remain of type %T is not numeric", value)
	}
}

func fromInt64(v int64) (int, error) {
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, fmt.Errorf("remain %d out of range", v)
	}
	return int(v), nil
}

func fromFloat(v float64) (int, error) {
	if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("remain %v is not a whole number", v)
	}
	return fromInt64(int64(v))
}
