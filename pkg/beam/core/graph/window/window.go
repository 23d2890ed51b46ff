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

// Package window holds the bounded-interval window type the runner explodes
// WindowedValues over, and the pane identity attached to each firing.
package window

import (
	"fmt"
	"time"

	"github.com/stephenoken/beam/pkg/beam/core/graph/mtime"
)

// Window is a bounded interval with a total order by max timestamp. Its
// internal structure is otherwise opaque to the runner: user code never
// inspects anything but MaxTimestamp.
type Window interface {
	// MaxTimestamp is the last representable event timestamp within this
	// window; it's the value the timer GC bound is computed from.
	MaxTimestamp() mtime.Time
	Equals(other Window) bool
	String() string
}

// IntervalWindow is a half-open [Start, End) interval, the window kind
// produced by fixed and sliding windowing strategies.
type IntervalWindow struct {
	Start, End mtime.Time
}

// MaxTimestamp returns End-1ms, since End is exclusive.
func (w IntervalWindow) MaxTimestamp() mtime.Time {
	return w.End - 1
}

// Equals reports whether other is an identical IntervalWindow.
func (w IntervalWindow) Equals(other Window) bool {
	o, ok := other.(IntervalWindow)
	return ok && o.Start == w.Start && o.End == w.End
}

func (w IntervalWindow) String() string {
	return fmt.Sprintf("[%v, %v)", w.Start, w.End)
}

// GlobalWindow is the single window every element belongs to absent an
// explicit windowing strategy.
type GlobalWindow struct{}

// MaxTimestamp returns the fixed end-of-global-window sentinel.
func (GlobalWindow) MaxTimestamp() mtime.Time {
	return mtime.EndOfGlobalWindowTime
}

// Equals reports whether other is also the GlobalWindow.
func (GlobalWindow) Equals(other Window) bool {
	_, ok := other.(GlobalWindow)
	return ok
}

func (GlobalWindow) String() string {
	return "GlobalWindow"
}

// Set is the (possibly multi-membership) collection of windows a
// WindowedValue belongs to. Iteration for per-window dispatch happens in
// this declared order, never re-sorted, per the runner's sequential
// per-element fan-out guarantee.
type Set []Window

// GCTime returns the last instant at which an event-time timer may fire, or
// a state write may be considered live, for w: its max timestamp plus the
// window's allowed lateness. No event-time timer may be scheduled beyond
// this bound.
func GCTime(w Window, allowedLateness time.Duration) mtime.Time {
	return w.MaxTimestamp().Add(allowedLateness)
}
