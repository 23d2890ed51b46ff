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

// UserFn is the opaque facade this runner drives. Per §1, the reflective
// introspection that extracts callbacks and declarations from a user
// transform definition is out of scope; a caller is expected to produce
// one of these (e.g. by reflecting over a DoFn struct) and hand it to
// NewBundleRunner. Every method here corresponds to one callback named in
// §4.H's dispatch table or §9's design notes; a transform that doesn't use
// a given mode may leave the corresponding method unimplemented (nil
// receiver checks are the caller's responsibility, not this interface's).
type UserFn interface {
	// StartBundle runs once per bundle, before any element or timer
	// delivery.
	StartBundle(ctx context.Context) error
	// FinishBundle runs once per bundle, after all timer handlers have
	// drained.
	FinishBundle(ctx context.Context) error
	// Teardown runs once the runner is permanently done with this UserFn
	// instance.
	Teardown(ctx context.Context) error

	// ProcessElement is invoked once per window for PAR_DO,
	// PROCESS_ELEMENTS, and PROCESS_SIZED_ELEMENTS_AND_RESTRICTIONS. Its
	// return value is only meaningful for the two splittable URNs, where a
	// ProcessContinuation with ShouldResume set requests resumption.
	ProcessElement(ictx *InvocationContext) (ProcessContinuation, error)

	// InitialRestriction computes PAIR_WITH_RESTRICTION's output: the
	// initial restriction and watermark-estimator state for elem.
	InitialRestriction(ictx *InvocationContext, elem any) (restriction any, watermarkEstimatorState any, err error)

	// SplitRestriction is invoked once per window for SPLIT_RESTRICTION
	// and SPLIT_AND_SIZE_RESTRICTIONS; it calls ictx.Output for each
	// sub-restriction it wants emitted.
	SplitRestriction(ictx *InvocationContext) error

	// NewTracker constructs a fresh RestrictionTracker over restriction,
	// called at the top of the process-continuation protocol (§4.H step 1).
	// It is called before splitLock is taken; only the publication of the
	// new tracker happens under splitLock.
	NewTracker(restriction any) RestrictionTracker

	// NewWatermarkEstimator constructs a fresh WatermarkEstimator from
	// state, called alongside NewTracker.
	NewWatermarkEstimator(state any) WatermarkEstimator

	// GetSize estimates the work size of restriction, used by the
	// *_AND_SIZE_RESTRICTIONS and *_SIZED_* URNs.
	GetSize(restriction any) (float64, error)

	// OnTimer is invoked once per window a firing timer names, for the
	// (familyID, dynamicTag) pair it was scheduled under.
	OnTimer(ictx *InvocationContext, familyID, dynamicTag string) error
}

// ProcessContinuation is ProcessElement's resumption request. The zero
// value (ShouldResume: false) means the element is fully processed.
type ProcessContinuation struct {
	ShouldResume bool
	ResumeDelay  time.Duration
}

// Done is the continuation value meaning "no resumption requested".
var Done = ProcessContinuation{}

// InvocationContext is the single struct threaded through every user
// callback invocation, collapsing the source's per-URN ArgumentProvider
// proliferation (§9's design note) into one value holding closures for
// whichever capabilities the current mode offers. A capability a mode
// doesn't support is left nil; calling through a nil closure is a
// programming error in this package, not something user code can trigger,
// since accessor methods below translate a nil closure into a UsageError
// (Element, Window, Timestamp, Pane and Key return a zero value instead).
type InvocationContext struct {
	Ctx context.Context

	// element returns the current element's undecoded value. Always set
	// during ProcessElement, InitialRestriction, SplitRestriction.
	element func() any
	// window returns the single window the active callback is running
	// for.
	windowFn func() window.Window
	// timestamp returns the current element's (or firing timer's)
	// timestamp.
	timestamp func() mtime.Time
	// pane returns the current pane.
	pane func() window.PaneInfo

	// output emits value to the named output tag. An empty tag selects
	// the sole main output.
	output func(tag string, value any) error

	// tracker returns the currently published RestrictionTracker. Only
	// set for the two splittable process URNs during their
	// ProcessElement callback.
	tracker func() RestrictionTracker
	// watermarkEstimator returns the currently published
	// WatermarkEstimator, alongside tracker.
	watermarkEstimator func() WatermarkEstimator

	// newTimer constructs a pre-commit UserFnTimer builder for timerID.
	newTimer func(timerID string) (*UserFnTimer, error)

	// sideInput reads a materialized side input for tag.
	sideInput func(tag string) (any, error)

	// state binds a StateHandle for stateID.
	state func(stateID string) (StateHandle, error)

	// key returns the current keyed context's key, if any.
	key func() (key []byte, ok bool)
}

// Element returns the current element's value.
func (c *InvocationContext) Element() any {
	if c.element == nil {
		return nil
	}
	return c.element()
}

// Window returns the single window the active callback runs for.
func (c *InvocationContext) Window() window.Window {
	if c.windowFn == nil {
		return nil
	}
	return c.windowFn()
}

// Timestamp returns the current element's (or firing timer's) timestamp.
func (c *InvocationContext) Timestamp() mtime.Time {
	if c.timestamp == nil {
		return 0
	}
	return c.timestamp()
}

// Pane returns the current pane.
func (c *InvocationContext) Pane() window.PaneInfo {
	if c.pane == nil {
		return window.NoFiring
	}
	return c.pane()
}

// Output emits value to the main output.
func (c *InvocationContext) Output(value any) error {
	return c.OutputTagged("", value)
}

// OutputTagged emits value to the named output tag.
func (c *InvocationContext) OutputTagged(tag string, value any) error {
	if c.output == nil {
		return newUsageError("output is not available in this callback")
	}
	return c.output(tag, value)
}

// Tracker returns the current RestrictionTracker, failing with a
// UsageError if this callback doesn't carry one (every mode except the two
// splittable process URNs).
func (c *InvocationContext) Tracker() (RestrictionTracker, error) {
	if c.tracker == nil {
		return nil, newUsageError("restriction tracker is only available in a splittable process callback")
	}
	return c.tracker(), nil
}

// WatermarkEstimator returns the current WatermarkEstimator, failing with a
// UsageError if this callback doesn't carry one.
func (c *InvocationContext) WatermarkEstimator() (WatermarkEstimator, error) {
	if c.watermarkEstimator == nil {
		return nil, newUsageError("watermark estimator is only available in a splittable process callback")
	}
	return c.watermarkEstimator(), nil
}

// Timer returns a pre-commit builder for the named timer declaration.
func (c *InvocationContext) Timer(timerID string) (*UserFnTimer, error) {
	if c.newTimer == nil {
		return nil, newUsageError("timers are not available in this callback")
	}
	return c.newTimer(timerID)
}

// SideInput reads the materialized side input declared under tag.
func (c *InvocationContext) SideInput(tag string) (any, error) {
	if c.sideInput == nil {
		return nil, newUsageError("side inputs are not available in this callback")
	}
	return c.sideInput(tag)
}

// State binds a StateHandle for stateID, failing with a UsageError if no
// keyed context is active.
func (c *InvocationContext) State(stateID string) (StateHandle, error) {
	if c.state == nil {
		return nil, newUsageError("state access is not available in this callback")
	}
	return c.state(stateID)
}

// Key returns the current keyed context's key, if any.
func (c *InvocationContext) Key() ([]byte, bool) {
	if c.key == nil {
		return nil, false
	}
	return c.key()
}
