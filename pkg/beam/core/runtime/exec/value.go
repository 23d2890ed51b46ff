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

// Package exec is the bundle-scoped user-function runner: it dispatches
// windowed elements, side-input reads, and timer firings through user
// transform callbacks, collects emitted outputs, and exposes the
// concurrent self-split protocol for splittable transforms.
package exec

import (
	"fmt"

	"github.com/stephenoken/beam/pkg/beam/core/graph/mtime"
	"github.com/stephenoken/beam/pkg/beam/core/graph/window"
)

// WindowedValue is the immutable envelope carrying a value, its event-time
// timestamp, the set of windows it belongs to, and its pane identity. The
// runner explodes a multi-window WindowedValue into one single-window copy
// per window during dispatch; it otherwise never mutates one in place.
type WindowedValue struct {
	Value     any
	Timestamp mtime.Time
	Windows   window.Set
	Pane      window.PaneInfo
}

// Explode returns one WindowedValue per window in wv.Windows, each carrying
// the same Value, Timestamp, and Pane, iterated in declaration order. Per
// §3's invariants, window fan-out within a single element is always
// sequential and always in this order.
func (wv WindowedValue) Explode() []WindowedValue {
	out := make([]WindowedValue, len(wv.Windows))
	for i, w := range wv.Windows {
		out[i] = WindowedValue{
			Value:     wv.Value,
			Timestamp: wv.Timestamp,
			Windows:   window.Set{w},
			Pane:      wv.Pane,
		}
	}
	return out
}

// SingleWindow returns wv's sole window. Panics if wv does not carry
// exactly one window; every WindowedValue reaching a per-window dispatch
// path has already been exploded by Explode and must satisfy this.
func (wv WindowedValue) SingleWindow() window.Window {
	if len(wv.Windows) != 1 {
		panic(fmt.Sprintf("exec: WindowedValue has %d windows, want exactly 1 (call Explode first)", len(wv.Windows)))
	}
	return wv.Windows[0]
}

// KV is a generic key/value pair. State, timer-key derivation, and several
// of the SDF element shapes (elem, (restriction, wmState)) are expressed as
// KV so the runner can recognize and destructure them without reflection.
type KV struct {
	Key   any
	Value any
}

// AsKV reports whether v is a KV, returning it if so. State and dynamic
// per-key timer access both require a KV-typed current element (or a
// current timer, which already carries a user key); this is the check
// behind that invariant.
func AsKV(v any) (KV, bool) {
	kv, ok := v.(KV)
	return kv, ok
}

// Sized pairs a value with a getSize estimate, the trailing float64 the
// *_AND_SIZE_RESTRICTIONS URNs append to and strip from their element
// shape.
type Sized struct {
	Value any
	Size  float64
}

// RestrictionAndState is the (restriction, watermarkEstimatorState) pair
// PAIR_WITH_RESTRICTION and the SPLIT_* URNs emit or consume alongside the
// original element.
type RestrictionAndState struct {
	Restriction          any
	WatermarkEstimatorState any
}
