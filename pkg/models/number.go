/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

var errNotInteger = errors.New("must be a number")

// Number is an integer telemetry field as sent by a device. Firmware
// versions disagree on encoding, so decoding keeps the raw value and
// Int64 accepts integers, fractional numbers (truncated) and numeric
// strings.
type Number struct {
	raw json.RawMessage
}

// Int returns a Number holding v.
func Int(v int64) *Number {
	return &Number{raw: strconv.AppendInt(nil, v, 10)}
}

func (n *Number) UnmarshalJSON(data []byte) error {
	n.raw = append(n.raw[:0], data...)

	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if len(n.raw) == 0 {
		return []byte("null"), nil
	}

	return n.raw, nil
}

// Int64 converts the raw value.
func (n *Number) Int64() (int64, error) {
	s := string(n.raw)

	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}

	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || f >= math.MaxInt64 || f <= math.MinInt64 {
		return 0, errNotInteger
	}

	return int64(f), nil
}
