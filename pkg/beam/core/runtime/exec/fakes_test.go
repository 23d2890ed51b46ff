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
	"fmt"
	"io"
	"sync"

	"github.com/stephenoken/beam/pkg/beam/core/graph/window"
)

// fakeAnyCodec is a placeholder element Codec for tests that only need
// WindowedCodec.EncodeToBytes to succeed, never decode the bytes back.
type fakeAnyCodec struct{}

func (fakeAnyCodec) Encode(v any, w io.Writer) error {
	_, err := fmt.Fprintf(w, "%v", v)
	return err
}

func (fakeAnyCodec) Decode(io.Reader) (any, error) {
	return nil, fmt.Errorf("fakeAnyCodec: Decode not supported")
}

// fakeTimerHandler records every Timer Set on it, for assertion in tests.
type fakeTimerHandler struct {
	mu  sync.Mutex
	set []Timer
}

func (h *fakeTimerHandler) Set(ctx context.Context, t Timer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.set = append(h.set, t)
	return nil
}
func (h *fakeTimerHandler) Await(ctx context.Context) error { return nil }
func (h *fakeTimerHandler) Close() error                    { return nil }

func (h *fakeTimerHandler) last() Timer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.set[len(h.set)-1]
}

// fakeOutputManager records every emitted WindowedValue per tag.
type fakeOutputManager struct {
	mu      sync.Mutex
	emitted map[string][]WindowedValue
}

func newFakeOutputManager() *fakeOutputManager {
	return &fakeOutputManager{emitted: map[string][]WindowedValue{}}
}

func (o *fakeOutputManager) Emit(tag string, v WindowedValue) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.emitted[tag] = append(o.emitted[tag], v)
	return nil
}

func (o *fakeOutputManager) all(tag string) []WindowedValue {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]WindowedValue(nil), o.emitted[tag]...)
}

// fakeStateAccessor is a minimal no-op StateAccessor for tests that don't
// exercise state/side-input reads.
type fakeStateAccessor struct{}

func (fakeStateAccessor) Get(ctx context.Context, view SideInputSpec, w window.Window) (any, error) {
	return nil, nil
}
func (fakeStateAccessor) Bind(stateID string, w window.Window) (StateHandle, error) {
	return nil, newUsageError("state not available in this test fake")
}
func (fakeStateAccessor) FinalizeState(ctx context.Context) error { return nil }

// fakeTimerService hands out fakeTimerHandlers and remembers them by
// family id.
type fakeTimerService struct {
	mu       sync.Mutex
	handlers map[string]*fakeTimerHandler
}

func newFakeTimerService() *fakeTimerService {
	return &fakeTimerService{handlers: map[string]*fakeTimerHandler{}}
}

func (s *fakeTimerService) RegisterHandler(bundleInstructionID, transformID, familyLocalName string, onFire func(ctx context.Context, domain TimeDomain, t Timer) error) (TimerHandler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := &fakeTimerHandler{}
	s.handlers[familyLocalName] = h
	return h, nil
}

// fakeUserFn is a stub UserFn; each field a test exercises is overridden,
// the rest panic if called (surfacing tests that exercise an unplanned
// callback).
type fakeUserFn struct {
	processElement      func(*InvocationContext) (ProcessContinuation, error)
	initialRestriction  func(*InvocationContext, any) (any, any, error)
	splitRestriction    func(*InvocationContext) error
	newTracker          func(any) RestrictionTracker
	newWatermarkEst     func(any) WatermarkEstimator
	getSize             func(any) (float64, error)
	onTimer             func(*InvocationContext, string, string) error
}

func (f *fakeUserFn) StartBundle(ctx context.Context) error  { return nil }
func (f *fakeUserFn) FinishBundle(ctx context.Context) error { return nil }
func (f *fakeUserFn) Teardown(ctx context.Context) error     { return nil }

func (f *fakeUserFn) ProcessElement(ictx *InvocationContext) (ProcessContinuation, error) {
	if f.processElement == nil {
		panic("fakeUserFn: ProcessElement not set")
	}
	return f.processElement(ictx)
}

func (f *fakeUserFn) InitialRestriction(ictx *InvocationContext, elem any) (any, any, error) {
	if f.initialRestriction == nil {
		panic("fakeUserFn: InitialRestriction not set")
	}
	return f.initialRestriction(ictx, elem)
}

func (f *fakeUserFn) SplitRestriction(ictx *InvocationContext) error {
	if f.splitRestriction == nil {
		panic("fakeUserFn: SplitRestriction not set")
	}
	return f.splitRestriction(ictx)
}

func (f *fakeUserFn) NewTracker(restriction any) RestrictionTracker {
	if f.newTracker == nil {
		panic("fakeUserFn: NewTracker not set")
	}
	return f.newTracker(restriction)
}

func (f *fakeUserFn) NewWatermarkEstimator(state any) WatermarkEstimator {
	if f.newWatermarkEst == nil {
		panic("fakeUserFn: NewWatermarkEstimator not set")
	}
	return f.newWatermarkEst(state)
}

func (f *fakeUserFn) GetSize(restriction any) (float64, error) {
	if f.getSize == nil {
		panic("fakeUserFn: GetSize not set")
	}
	return f.getSize(restriction)
}

func (f *fakeUserFn) OnTimer(ictx *InvocationContext, familyID, dynamicTag string) error {
	if f.onTimer == nil {
		panic("fakeUserFn: OnTimer not set")
	}
	return f.onTimer(ictx, familyID, dynamicTag)
}

// fakeTracker is a simple RestrictionTracker+Splittable+Progressable over
// an integer range [pos, end), for process-continuation and split tests.
type fakeTracker struct {
	mu        sync.Mutex
	pos, end  int
	done      bool
	claimErr  error
}

func newFakeTracker(start, end int) *fakeTracker {
	return &fakeTracker{pos: start, end: end}
}

func (t *fakeTracker) TryClaim(position any) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := position.(int)
	if p >= t.end {
		return false
	}
	t.pos = p
	return true
}

func (t *fakeTracker) GetRestriction() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return [2]int{t.pos, t.end}
}

func (t *fakeTracker) GetError() error { return t.claimErr }

func (t *fakeTracker) CheckDone() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pos < t.end-1 {
		return newUsageError("fakeTracker: %d of %d claimed", t.pos, t.end)
	}
	return nil
}

func (t *fakeTracker) IsBounded() bool { return true }

func (t *fakeTracker) TrySplit(fraction float64) (primary, residual any, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	remaining := t.end - t.pos - 1
	if remaining <= 0 {
		return nil, nil, nil
	}
	split := t.pos + 1 + int(float64(remaining)*fraction)
	if split >= t.end {
		return nil, nil, nil
	}
	primaryRestriction := [2]int{t.pos, split}
	residualRestriction := [2]int{split, t.end}
	t.end = split
	return primaryRestriction, residualRestriction, nil
}

func (t *fakeTracker) GetProgress() (completed, remaining float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.pos), float64(t.end - t.pos)
}

// fakeWatermarkEstimator is a constant-watermark WatermarkEstimator used
// where tests don't need observation behavior.
type fakeWatermarkEstimator struct {
	watermark int64
}

func (e *fakeWatermarkEstimator) CurrentWatermark() int64 { return e.watermark }
