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

import "testing"

type observerCalls struct {
	claimed, failed []any
}

func (o *observerCalls) OnClaimed(position any)     { o.claimed = append(o.claimed, position) }
func (o *observerCalls) OnClaimFailed(position any) { o.failed = append(o.failed, position) }

func TestObservingTrackerFiresClaimObserver(t *testing.T) {
	ft := newFakeTracker(0, 5)
	obs := &observerCalls{}
	ot := newObservingTracker(ft, obs)

	if !ot.TryClaim(1) {
		t.Fatalf("TryClaim(1) = false, want true")
	}
	if ot.TryClaim(10) {
		t.Fatalf("TryClaim(10) = true, want false (out of range)")
	}

	if len(obs.claimed) != 1 || obs.claimed[0] != 1 {
		t.Errorf("claimed = %v, want [1]", obs.claimed)
	}
	if len(obs.failed) != 1 || obs.failed[0] != 10 {
		t.Errorf("failed = %v, want [10]", obs.failed)
	}
}

func TestObservingTrackerDefaultsToNoopObserver(t *testing.T) {
	ft := newFakeTracker(0, 5)
	ot := newObservingTracker(ft, nil)

	// Must not panic absent an explicit observer.
	if !ot.TryClaim(2) {
		t.Fatalf("TryClaim(2) = false, want true")
	}
}

func TestObservingTrackerForwardsSplittableAndProgressable(t *testing.T) {
	ft := newFakeTracker(0, 10)
	ot := newObservingTracker(ft, nil)

	primary, residual, err := ot.TrySplit(0.5)
	if err != nil {
		t.Fatalf("TrySplit: %v", err)
	}
	if primary == nil || residual == nil {
		t.Fatalf("TrySplit returned nil primary/residual for a splittable tracker")
	}

	completed, remaining, ok := ot.GetProgress()
	if !ok {
		t.Fatalf("GetProgress: ok = false, want true for a progressable tracker")
	}
	if completed < 0 || remaining < 0 {
		t.Errorf("GetProgress = (%v, %v), want non-negative", completed, remaining)
	}
}

// nonSplittableTracker implements only the required RestrictionTracker
// capability set, with neither Splittable nor Progressable.
type nonSplittableTracker struct{}

func (nonSplittableTracker) TryClaim(any) bool   { return true }
func (nonSplittableTracker) GetRestriction() any { return nil }
func (nonSplittableTracker) GetError() error     { return nil }
func (nonSplittableTracker) CheckDone() error    { return nil }
func (nonSplittableTracker) IsBounded() bool     { return true }

func TestObservingTrackerDeclinesSplitAndProgressWhenUnsupported(t *testing.T) {
	ot := newObservingTracker(nonSplittableTracker{}, nil)

	primary, residual, err := ot.TrySplit(0.5)
	if err != nil || primary != nil || residual != nil {
		t.Errorf("TrySplit on a non-Splittable tracker = (%v, %v, %v), want (nil, nil, nil)", primary, residual, err)
	}

	if _, _, ok := ot.GetProgress(); ok {
		t.Errorf("GetProgress on a non-Progressable tracker: ok = true, want false")
	}
}
