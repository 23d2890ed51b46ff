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

// RestrictionTracker mediates claims against a restriction. Its structure
// beyond this required capability set is entirely opaque to the runner: a
// user transform supplies one via UserFn.NewTracker and the runner never
// inspects the restriction or position types it operates over.
type RestrictionTracker interface {
	// TryClaim attempts to claim position, returning whether the claim
	// succeeded. A failed claim means the tracker's remaining restriction
	// no longer covers position (e.g. a concurrent split already
	// shrunk it).
	TryClaim(position any) bool
	// GetRestriction returns the (possibly already-shrunk) restriction
	// this tracker currently covers.
	GetRestriction() any
	// GetError returns any error TryClaim recorded, surfaced by the
	// runner once a processElement call returns.
	GetError() error
	// CheckDone is called once a processElement invocation completes
	// without requesting resumption; it must fail if the tracker believes
	// unclaimed work remains.
	CheckDone() error
	// IsBounded reports whether this restriction represents a bounded
	// amount of work (affects continuation handling upstream; the runner
	// itself doesn't branch on it, callers may).
	IsBounded() bool
}

// Splittable is the optional capability a RestrictionTracker exposes to
// support SplitCoordinator.trySplit. A tracker that doesn't implement it
// can never be split (trySplit always returns nil, nil for it).
type Splittable interface {
	// TrySplit splits the tracker's remaining restriction at
	// fractionOfRemainder, returning the primary (already claimed and
	// retained by this tracker) and residual (handed to the caller)
	// restrictions. A nil, nil, nil return means the tracker declined.
	TrySplit(fractionOfRemainder float64) (primary, residual any, err error)
}

// Progressable is the optional capability behind
// SplitCoordinator.getProgress.
type Progressable interface {
	// GetProgress returns (completed, remaining) work estimates in
	// whatever unit the tracker's restriction uses.
	GetProgress() (completed, remaining float64)
}

// ClaimObserver is notified of TryClaim outcomes on the tracker currently
// published as BundleRunner's currentTracker. The default observer is a
// no-op: per §4.H step 1, it exists purely as a hook point for metrics, not
// behavior, and must never change what TryClaim returns.
type ClaimObserver interface {
	OnClaimed(position any)
	OnClaimFailed(position any)
}

type noopClaimObserver struct{}

func (noopClaimObserver) OnClaimed(any)     {}
func (noopClaimObserver) OnClaimFailed(any) {}

// observingTracker forwards every RestrictionTracker (and, where the
// wrapped tracker supports them, Splittable/Progressable) method unchanged,
// firing ClaimObserver callbacks around TryClaim. It never itself
// serializes concurrent access: the tracker's own TrySplit/TryClaim
// synchronization (if any) is the tracker's problem, per §5 — the runner
// only serializes the *identity* of the current tracker, via splitLock in
// SplitCoordinator.
type observingTracker struct {
	RestrictionTracker
	observer ClaimObserver
}

// newObservingTracker wraps rt with observer, defaulting to a no-op
// observer when none is supplied.
func newObservingTracker(rt RestrictionTracker, observer ClaimObserver) *observingTracker {
	if observer == nil {
		observer = noopClaimObserver{}
	}
	return &observingTracker{RestrictionTracker: rt, observer: observer}
}

// TryClaim forwards to the wrapped tracker and fires the matching
// ClaimObserver hook.
func (t *observingTracker) TryClaim(position any) bool {
	ok := t.RestrictionTracker.TryClaim(position)
	if ok {
		t.observer.OnClaimed(position)
	} else {
		t.observer.OnClaimFailed(position)
	}
	return ok
}

// TrySplit forwards to the wrapped tracker if it implements Splittable,
// otherwise reports that this tracker cannot be split.
func (t *observingTracker) TrySplit(fractionOfRemainder float64) (primary, residual any, err error) {
	s, ok := t.RestrictionTracker.(Splittable)
	if !ok {
		return nil, nil, nil
	}
	return s.TrySplit(fractionOfRemainder)
}

// GetProgress forwards to the wrapped tracker if it implements
// Progressable, otherwise reports that no progress reading is available.
func (t *observingTracker) GetProgress() (completed, remaining float64, ok bool) {
	p, ok := t.RestrictionTracker.(Progressable)
	if !ok {
		return 0, 0, false
	}
	c, r := p.GetProgress()
	return c, r, true
}
