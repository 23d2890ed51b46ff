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

package exec

import (
	"context"
	"time"

	"github.com/stephenoken/beam/pkg/beam/core/graph/mtime"
	"github.com/stephenoken/beam/pkg/beam/core/graph/window"
)

// UserFnTimer is the `Timer` surface presented to user code: a fluent
// pre-commit builder accumulating offset/period/outputTimestamp, committed
// by either Set (absolute, event-time only) or SetRelative (offset from the
// firing source timestamp, optionally period-aligned).
//
// One UserFnTimer is constructed per call to a timer-typed parameter
// accessor; it captures everything needed to compute and validate a
// scheduled time without the caller threading bundle state through it.
type UserFnTimer struct {
	timerID    string
	userKey    []byte
	dynamicTag string
	win        window.Window
	holdTs     mtime.Time
	fireSource mtime.Time
	pane       window.PaneInfo

	domain          TimeDomain
	allowedLateness time.Duration
	handler         TimerHandler

	// pre-commit builder state
	offset          time.Duration
	period          time.Duration
	outputTimestamp *mtime.Time
}

// newUserFnTimer constructs the builder for one timer-set call. holdTs is
// the current element's timestamp (when firing from processElement) or the
// firing timer's own hold (when firing from onTimer); fireSource is the
// timestamp set-relative computations are offset from — conventionally the
// same value as holdTs.
func newUserFnTimer(timerID string, userKey []byte, dynamicTag string, win window.Window, holdTs, fireSource mtime.Time, pane window.PaneInfo, domain TimeDomain, allowedLateness time.Duration, handler TimerHandler) *UserFnTimer {
	return &UserFnTimer{
		timerID:         timerID,
		userKey:         userKey,
		dynamicTag:      dynamicTag,
		win:             win,
		holdTs:          holdTs,
		fireSource:      fireSource,
		pane:            pane,
		domain:          domain,
		allowedLateness: allowedLateness,
		handler:         handler,
	}
}

// WithOffset accumulates an offset applied by SetRelative; it has no effect
// on Set.
func (t *UserFnTimer) WithOffset(d time.Duration) *UserFnTimer {
	t.offset = d
	return t
}

// AlignTo accumulates a period SetRelative aligns its target to; it has no
// effect on Set. A zero period (the default) means no alignment.
func (t *UserFnTimer) AlignTo(period time.Duration) *UserFnTimer {
	t.period = period
	return t
}

// WithOutputTimestamp accumulates an explicit output-timestamp override,
// validated against holdTs at commit.
func (t *UserFnTimer) WithOutputTimestamp(ts mtime.Time) *UserFnTimer {
	t.outputTimestamp = &ts
	return t
}

// windowGC is this timer's window's GC time: the latest instant any
// event-time timer on it may be scheduled for.
func (t *UserFnTimer) windowGC() mtime.Time {
	return window.GCTime(t.win, t.allowedLateness)
}

// Set commits an absolute scheduled time. Only valid in EVENT_TIME domain;
// any other domain returns a UsageError directing the caller to
// SetRelative instead (see SPEC_FULL's open-question decision: behavior
// matches the source, the stale "relative timers in processing time"
// wording does not).
func (t *UserFnTimer) Set(ctx context.Context, scheduled mtime.Time) error {
	if t.domain != EventTime {
		return newUsageError("timer %q: Set is only valid for EVENT_TIME timers, got %s (use SetRelative for processing-time timers)", t.timerID, t.domain)
	}
	if scheduled > t.windowGC() {
		return newUsageError("timer %q: scheduled time %v exceeds window GC time %v", t.timerID, scheduled, t.windowGC())
	}
	return t.commit(ctx, scheduled)
}

// SetRelative commits a scheduled time computed from the firing source
// timestamp and the accumulated offset, optionally aligned to a period:
//
//	period == 0:  target = fireSource + offset
//	period != 0:  m = (fireSource + offset) mod period
//	              target = fireSource            if m == 0
//	                     = fireSource + period - m otherwise
//
// commit rejects the result if it lands past the window's GC time; this
// method never clamps it silently.
func (t *UserFnTimer) SetRelative(ctx context.Context) error {
	base := t.fireSource.Add(t.offset)
	var target mtime.Time
	if t.period == 0 {
		target = base
	} else {
		periodMs := int64(t.period / time.Millisecond)
		m := base.Milliseconds() % periodMs
		if m < 0 {
			m += periodMs
		}
		if m == 0 {
			target = t.fireSource
		} else {
			target = t.fireSource.Add(t.period).Subtract(time.Duration(m) * time.Millisecond)
		}
	}
	return t.commit(ctx, target)
}

// commit derives the output timestamp per §4.G, validates the event-time
// or processing-time invariant, and writes the resulting Timer to the
// registered TimerHandler.
func (t *UserFnTimer) commit(ctx context.Context, scheduled mtime.Time) error {
	outputTs, err := t.resolveOutputTimestamp(scheduled)
	if err != nil {
		return err
	}

	// The GC bound applies to the output timestamp and to the scheduled
	// time independently, regardless of domain; an explicit
	// WithOutputTimestamp override may legitimately exceed the timer's own
	// scheduled (fire) time, so the two are not compared with each other.
	// A value past the bound is rejected, never clamped.
	if outputTs > t.windowGC() {
		return newUsageError("timer %q: invariant violated: outputTimestamp(%v) <= windowGC(%v)", t.timerID, outputTs, t.windowGC())
	}
	if scheduled > t.windowGC() {
		return newUsageError("timer %q: invariant violated: scheduledTime(%v) <= windowGC(%v)", t.timerID, scheduled, t.windowGC())
	}

	rec := Timer{
		UserKey:       t.userKey,
		DynamicTag:    t.dynamicTag,
		Windows:       window.Set{t.win},
		FireTimestamp: scheduled,
		HoldTimestamp: outputTs,
		Pane:          t.pane,
	}
	if err := t.handler.Set(ctx, rec); err != nil {
		return wrapUserCode(t.timerID, err)
	}
	return nil
}

func (t *UserFnTimer) resolveOutputTimestamp(scheduled mtime.Time) (mtime.Time, error) {
	if t.outputTimestamp != nil {
		if *t.outputTimestamp < t.holdTs {
			return 0, newUsageError("timer %q: outputTimestamp(%v) must be >= holdTimestamp(%v)", t.timerID, *t.outputTimestamp, t.holdTs)
		}
		return *t.outputTimestamp, nil
	}
	if t.domain == EventTime {
		return scheduled, nil
	}
	return t.holdTs, nil
}
