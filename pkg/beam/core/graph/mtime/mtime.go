// Licensed to the Apache Software Foundation (ASF) under one or more
// contributor license agreements.  See the NOTICE file distributed with
// this work for additional information regarding copyright ownership.
// The ASF licenses this file to You under the Apache License, Version 2.0
// (the "License"); you may not use this file except in compliance with
// the License.  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mtime holds a millisecond-precision timestamp used throughout the
// bundle-scoped runner: element timestamps, timer fire/hold/output
// timestamps, and window bounds are all expressed as mtime.Time so the
// dispatch and split paths never reach for time.Time's nanosecond precision
// or location handling.
package mtime

import (
	"fmt"
	"time"
)

// Time is milliseconds since the Unix epoch.
type Time int64

const (
	// MinTimestamp is the lowest representable timestamp. No real element
	// or timer uses it; it's the watermark floor and GlobalWindow start.
	MinTimestamp Time = Time(-9223372036854410)
	// MaxTimestamp is the highest representable timestamp. It's the
	// watermark ceiling and GlobalWindow's nominal end.
	MaxTimestamp Time = Time(9223372036854410)
	// EndOfGlobalWindowTime is the max timestamp assignable to an element
	// in the global window (one millisecond before MaxTimestamp, matching
	// the window's exclusive upper bound).
	EndOfGlobalWindowTime Time = MaxTimestamp - 1
)

// FromMilliseconds converts a raw millisecond count to a Time.
func FromMilliseconds(ms int64) Time {
	return Time(ms)
}

// FromTime converts a standard time.Time, truncating to millisecond
// precision.
func FromTime(t time.Time) Time {
	return Time(t.UnixNano() / int64(time.Millisecond))
}

// Milliseconds returns the raw millisecond count.
func (t Time) Milliseconds() int64 {
	return int64(t)
}

// ToTime converts back to a standard time.Time in UTC.
func (t Time) ToTime() time.Time {
	return time.Unix(0, int64(t)*int64(time.Millisecond)).UTC()
}

// Add returns t shifted forward by d, clamped to [MinTimestamp, MaxTimestamp].
func (t Time) Add(d time.Duration) Time {
	return clamp(int64(t) + int64(d/time.Millisecond))
}

// Subtract returns t shifted backward by d, clamped to [MinTimestamp, MaxTimestamp].
func (t Time) Subtract(d time.Duration) Time {
	return clamp(int64(t) - int64(d/time.Millisecond))
}

func clamp(ms int64) Time {
	if ms < int64(MinTimestamp) {
		return MinTimestamp
	}
	if ms > int64(MaxTimestamp) {
		return MaxTimestamp
	}
	return Time(ms)
}

// Min returns the earlier of a and b.
func Min(a, b Time) Time {
	if a < b {
		return a
	}
	return b
}

// Max returns the later of a and b.
func Max(a, b Time) Time {
	if a > b {
		return a
	}
	return b
}

func (t Time) String() string {
	if t == MinTimestamp {
		return "-inf"
	}
	if t == MaxTimestamp {
		return "+inf"
	}
	return fmt.Sprintf("%v", t.ToTime().Format(time.RFC3339Nano))
}
