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
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/stephenoken/beam/pkg/beam/core/graph/coder"
	"github.com/stephenoken/beam/pkg/beam/core/graph/mtime"
	"github.com/stephenoken/beam/pkg/beam/core/graph/window"
	"github.com/stephenoken/beam/pkg/beam/core/runtime/urns"
)

func testConfig(t *testing.T, urn string, outputTags []string) *Config {
	t.Helper()
	cfg, err := NewConfig(
		urn,
		"transform-1", "input-1", "main",
		outputTags,
		nil, nil,
		map[string]TimerFamilySpec{},
		WindowingStrategy{WindowCoder: coder.IntervalWindowCoder{}},
		coder.BytesCodec{},
	)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	return cfg
}

func newTestRunner(t *testing.T, cfg *Config, fn UserFn) (*BundleRunner, *fakeOutputManager) {
	t.Helper()
	out := newFakeOutputManager()
	r := NewBundleRunner(
		"bundle-1",
		cfg,
		fn,
		out,
		func(keyFn KeyFn) StateAccessor { return fakeStateAccessor{} },
		newFakeTimerService(),
		nil,
		slog.Default(),
	)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return r, out
}

func TestParDoDoublesValue(t *testing.T) {
	cfg := testConfig(t, urns.TransformParDo, nil)
	fn := &fakeUserFn{
		processElement: func(ictx *InvocationContext) (ProcessContinuation, error) {
			v := ictx.Element().(int)
			return Done, ictx.Output(v * 2)
		},
	}
	r, out := newTestRunner(t, cfg, fn)

	in := WindowedValue{
		Value:     42,
		Timestamp: mtime.FromMilliseconds(10),
		Windows:   window.Set{window.GlobalWindow{}},
		Pane:      window.NoFiring,
	}
	if err := r.Accept(context.Background(), in); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	got := out.all("")
	if len(got) != 1 {
		t.Fatalf("got %d outputs, want 1", len(got))
	}
	if got[0].Value != 84 {
		t.Errorf("value = %v, want 84", got[0].Value)
	}
}

func TestPairWithRestrictionEmitsRestrictionAndState(t *testing.T) {
	cfg := testConfig(t, urns.TransformPairWithRestriction, nil)
	fn := &fakeUserFn{
		initialRestriction: func(ictx *InvocationContext, elem any) (any, any, error) {
			return "R0", "W0", nil
		},
	}
	r, out := newTestRunner(t, cfg, fn)

	in := WindowedValue{
		Value:     "abc",
		Timestamp: mtime.FromMilliseconds(5),
		Windows:   window.Set{window.GlobalWindow{}},
		Pane:      window.NoFiring,
	}
	if err := r.Accept(context.Background(), in); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	got := out.all("")
	if len(got) != 1 {
		t.Fatalf("got %d outputs, want 1", len(got))
	}
	want := KV{Key: "abc", Value: RestrictionAndState{Restriction: "R0", WatermarkEstimatorState: "W0"}}
	if diff := cmp.Diff(want, got[0].Value); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitAndSizeRestrictionsEmitsSizedOutputs(t *testing.T) {
	cfg := testConfig(t, urns.TransformSplitAndSizeRestrictions, nil)
	fn := &fakeUserFn{
		splitRestriction: func(ictx *InvocationContext) error {
			if err := ictx.Output("Ra"); err != nil {
				return err
			}
			return ictx.Output("Rb")
		},
		getSize: func(restriction any) (float64, error) {
			if restriction.(string) == "Ra" {
				return 3, nil
			}
			return 4, nil
		},
	}
	r, out := newTestRunner(t, cfg, fn)

	in := WindowedValue{
		Value:     KV{Key: "abc", Value: RestrictionAndState{Restriction: "R0", WatermarkEstimatorState: "W0"}},
		Timestamp: mtime.FromMilliseconds(0),
		Windows:   window.Set{window.GlobalWindow{}},
		Pane:      window.NoFiring,
	}
	if err := r.Accept(context.Background(), in); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	got := out.all("")
	if len(got) != 2 {
		t.Fatalf("got %d outputs, want 2", len(got))
	}
	want0 := Sized{Value: KV{Key: "abc", Value: RestrictionAndState{Restriction: "Ra", WatermarkEstimatorState: "W0"}}, Size: 3}
	want1 := Sized{Value: KV{Key: "abc", Value: RestrictionAndState{Restriction: "Rb", WatermarkEstimatorState: "W0"}}, Size: 4}
	if diff := cmp.Diff(want0, got[0].Value); diff != "" {
		t.Errorf("output[0] mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want1, got[1].Value); diff != "" {
		t.Errorf("output[1] mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessElementsCallsCheckDoneWhenNotResuming(t *testing.T) {
	cfg := testConfig(t, urns.TransformProcessElements, []string{""})
	fn := &fakeUserFn{
		processElement: func(ictx *InvocationContext) (ProcessContinuation, error) {
			tracker, err := ictx.Tracker()
			if err != nil {
				t.Fatalf("Tracker: %v", err)
			}
			tracker.TryClaim(1) // claims through to end, matching fakeTracker's [0,2) range
			return Done, nil
		},
		newTracker: func(restriction any) RestrictionTracker {
			return newFakeTracker(0, 2)
		},
		newWatermarkEst: func(state any) WatermarkEstimator {
			return &fakeWatermarkEstimator{}
		},
	}
	r, _ := newTestRunner(t, cfg, fn)

	in := WindowedValue{
		Value:     KV{Key: "k", Value: RestrictionAndState{Restriction: [2]int{0, 2}, WatermarkEstimatorState: nil}},
		Timestamp: mtime.FromMilliseconds(10),
		Windows:   window.Set{window.GlobalWindow{}},
		Pane:      window.NoFiring,
	}
	if err := r.Accept(context.Background(), in); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	if c, rem, ok := r.GetProgress(); ok {
		t.Errorf("GetProgress after completed dispatch = (%v, %v, %v), want ok=false (no tracker published)", c, rem, ok)
	}
}

func TestProcessElementsClearsTransientStateOnError(t *testing.T) {
	cfg := testConfig(t, urns.TransformProcessElements, []string{""})
	fn := &fakeUserFn{
		processElement: func(ictx *InvocationContext) (ProcessContinuation, error) {
			return Done, errUserBoom
		},
		newTracker: func(restriction any) RestrictionTracker {
			return newFakeTracker(0, 2)
		},
		newWatermarkEst: func(state any) WatermarkEstimator {
			return &fakeWatermarkEstimator{}
		},
	}
	r, _ := newTestRunner(t, cfg, fn)

	in := WindowedValue{
		Value:     KV{Key: "k", Value: RestrictionAndState{Restriction: [2]int{0, 2}, WatermarkEstimatorState: nil}},
		Timestamp: mtime.FromMilliseconds(10),
		Windows:   window.Set{window.GlobalWindow{}},
		Pane:      window.NoFiring,
	}
	if err := r.Accept(context.Background(), in); err == nil {
		t.Fatalf("Accept: want error, got nil")
	}

	if _, _, ok := r.GetProgress(); ok {
		t.Errorf("GetProgress after error = ok, want not-ok: transient state must be cleared on every exit path")
	}
}

var errUserBoom = &UsageError{Reason: "boom"}
