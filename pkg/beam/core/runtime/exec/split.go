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
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/stephenoken/beam/pkg/beam/core/graph/mtime"
	"github.com/stephenoken/beam/pkg/beam/core/graph/window"
)

// BundleApplication is the wire-format description of work to re-run in a
// new bundle: the transform to invoke, the input it reads from, and the
// already-encoded windowed element bytes to deliver to it.
type BundleApplication struct {
	TransformID string
	InputID     string
	Element     []byte
}

// DelayedBundleApplication is a BundleApplication the caller should not
// attempt before RequestedTimeDelay has elapsed, carrying the watermark
// hold every output id must observe until it's processed.
type DelayedBundleApplication struct {
	ID                 string
	Application        BundleApplication
	RequestedTimeDelay time.Duration
	OutputWatermarks   map[string]*timestamppb.Timestamp
}

// SplitResult is the (primary, residual) pair a successful trySplit
// produces.
type SplitResult struct {
	Primary  BundleApplication
	Residual DelayedBundleApplication
}

// SplitCoordinator owns the split-critical snapshot of per-element
// transient state (§3's "per-element transient state", §5's shared
// mutable state table) and performs trySplit/getProgress against it. It is
// shared between BundleRunner's process thread, which publishes and clears
// the snapshot around each ProcessElement invocation, and an external
// control thread, which may call TrySplit/GetProgress at any time.
type SplitCoordinator struct {
	mu sync.Mutex

	fn     UserFn
	mode   UrnMode
	config *Config

	// published snapshot; nil/zero when no element is in flight (between
	// window iterations or between elements).
	tracker            *observingTracker
	watermarkEstimator *threadSafeWatermarkEstimator
	elem               any
	win                window.Window
	pane               window.PaneInfo
	timestamp          mtime.Time
}

// NewSplitCoordinator constructs a coordinator for fn operating in mode
// under config.
func NewSplitCoordinator(fn UserFn, mode UrnMode, config *Config) *SplitCoordinator {
	return &SplitCoordinator{fn: fn, mode: mode, config: config}
}

// publish installs a fresh tracker/estimator/element snapshot under
// splitLock. Called by BundleRunner at the top of the process-continuation
// protocol (§4.H step 1), before the mutex is released for the
// ProcessElement call itself.
func (s *SplitCoordinator) publish(tracker RestrictionTracker, observer ClaimObserver, estimator WatermarkEstimator, elem any, win window.Window, ts mtime.Time, pane window.PaneInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker = newObservingTracker(tracker, observer)
	s.watermarkEstimator = newThreadSafeWatermarkEstimator(estimator)
	s.elem = elem
	s.win = win
	s.timestamp = ts
	s.pane = pane
}

// clear removes the published snapshot under splitLock. Called by
// BundleRunner on every exit path from the process-continuation protocol
// (§4.H step 5), including exceptions.
func (s *SplitCoordinator) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker = nil
	s.watermarkEstimator = nil
	s.elem = nil
	s.win = nil
	s.timestamp = 0
	s.pane = window.PaneInfo{}
}

// currentTracker returns the published tracker for read access from the
// process thread itself (e.g. CheckDone after a non-resuming return). The
// process thread is the sole writer, so it may read without contending the
// lock per §5 — but CheckDone below still takes the lock because it also
// has to be safe to call concurrently with an in-flight TrySplit that
// hasn't yet cleared the snapshot.
func (s *SplitCoordinator) currentTracker() *observingTracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker
}

// CheckDone calls CheckDone on the currently published tracker, propagating
// any error. A nil tracker (nothing published) is a no-op.
func (s *SplitCoordinator) CheckDone() error {
	t := s.currentTracker()
	if t == nil {
		return nil
	}
	return t.CheckDone()
}

// GetProgress returns the currently published tracker's progress reading,
// if it supports Progressable. ok is false if no tracker is published or
// the tracker doesn't support progress reporting — in both cases this is
// not an error (§4.F step 1).
func (s *SplitCoordinator) GetProgress() (completed, remaining float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracker == nil {
		return 0, 0, false
	}
	return s.tracker.GetProgress()
}

// TrySplit attempts to split the currently in-flight element's restriction
// at fractionOfRemainder, tagging the residual with resumeDelay. A nil
// SplitResult (with nil error) means there is nothing to split right now —
// either no element is in flight, or the tracker declined — and the caller
// must treat this as transient, not as failure (§7, §8's "split
// idempotence-under-null-tracker" law).
func (s *SplitCoordinator) TrySplit(fractionOfRemainder float64, resumeDelay time.Duration) (*SplitResult, error) {
	s.mu.Lock()

	if s.tracker == nil {
		s.mu.Unlock()
		return nil, nil
	}

	// Critical ordering (§5, §4.F step 3): the watermark must be frozen
	// before the tracker is asked to split, or the residual could be
	// published with a watermark strictly greater than what the user
	// callback observed.
	watermarkMillis, wmState := s.watermarkEstimator.GetWatermarkAndState()
	frozenWatermark := mtime.FromMilliseconds(watermarkMillis)

	primaryRestriction, residualRestriction, err := s.tracker.TrySplit(fractionOfRemainder)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("exec: SplitCoordinator.TrySplit: tracker split failed: %w", err)
	}
	if primaryRestriction == nil && residualRestriction == nil {
		s.mu.Unlock()
		return nil, nil
	}

	elem := s.elem
	win := s.win
	pane := s.pane
	ts := s.timestamp
	s.mu.Unlock()

	primaryValue, residualValue, err := s.buildSplitValues(elem, primaryRestriction, residualRestriction, wmState)
	if err != nil {
		return nil, err
	}

	codec := s.config.windowedCodec()
	primaryBytes, err := codec.EncodeToBytes(primaryValue, ts, window.Set{win}, pane)
	if err != nil {
		return nil, fmt.Errorf("exec: SplitCoordinator.TrySplit: encode primary: %w", err)
	}
	residualBytes, err := codec.EncodeToBytes(residualValue, ts, window.Set{win}, pane)
	if err != nil {
		return nil, fmt.Errorf("exec: SplitCoordinator.TrySplit: encode residual: %w", err)
	}

	primary := BundleApplication{
		TransformID: s.config.TransformID,
		InputID:     s.config.MainInputID,
		Element:     primaryBytes,
	}
	residualApp := BundleApplication{
		TransformID: s.config.TransformID,
		InputID:     s.config.MainInputID,
		Element:     residualBytes,
	}

	residual := DelayedBundleApplication{
		ID:                 uuid.NewString(),
		Application:        residualApp,
		RequestedTimeDelay: resumeDelay,
	}
	if frozenWatermark != mtime.MinTimestamp {
		residual.OutputWatermarks = make(map[string]*timestamppb.Timestamp, len(s.config.OutputTags))
		for _, outputID := range s.config.OutputTags {
			residual.OutputWatermarks[outputID] = watermarkToProto(frozenWatermark)
		}
	}

	return &SplitResult{Primary: primary, Residual: residual}, nil
}

// buildSplitValues constructs the primary/residual element-shape values
// per §6's per-URN output element shape: plain (elem, (subRestriction,
// wmState)) for PROCESS_ELEMENTS, size-annotated for
// PROCESS_SIZED_ELEMENTS_AND_RESTRICTIONS (invoking GetSize once per side,
// per §4.F step 5).
func (s *SplitCoordinator) buildSplitValues(elem any, primaryRestriction, residualRestriction any, wmState any) (primary, residual any, err error) {
	primaryKV := KV{Key: elem, Value: RestrictionAndState{Restriction: primaryRestriction, WatermarkEstimatorState: wmState}}
	residualKV := KV{Key: elem, Value: RestrictionAndState{Restriction: residualRestriction, WatermarkEstimatorState: wmState}}

	if !s.mode.sized() {
		return primaryKV, residualKV, nil
	}

	primarySize, err := s.fn.GetSize(primaryRestriction)
	if err != nil {
		return nil, nil, wrapUserCode(s.config.TransformID, err)
	}
	residualSize, err := s.fn.GetSize(residualRestriction)
	if err != nil {
		return nil, nil, wrapUserCode(s.config.TransformID, err)
	}
	return Sized{Value: primaryKV, Size: primarySize}, Sized{Value: residualKV, Size: residualSize}, nil
}

// watermarkToProto converts an mtime.Time into a protobuf Timestamp,
// computing nanos as (millis % 1000) * 1_000_000 per §4.F step 7.
func watermarkToProto(t mtime.Time) *timestamppb.Timestamp {
	ms := t.Milliseconds()
	seconds := ms / 1000
	nanos := (ms % 1000) * 1_000_000
	if nanos < 0 {
		// keep seconds/nanos both sign-consistent for negative timestamps.
		nanos += 1_000_000_000
		seconds--
	}
	return &timestamppb.Timestamp{Seconds: seconds, Nanos: int32(nanos)}
}
