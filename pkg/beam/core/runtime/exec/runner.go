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
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stephenoken/beam/pkg/beam/core/graph/mtime"
	"github.com/stephenoken/beam/pkg/beam/core/graph/window"
)

// SplitListener is notified of every successful self-split, receiving the
// same (primary, residual) pair TrySplit returns, for forwarding to the
// orchestrator's split RPC.
type SplitListener func(primary BundleApplication, residual DelayedBundleApplication)

// BundleRunner accepts elements and timer firings for a single transform
// within a single bundle, driving the per-URN mode machine of §4.H and
// managing per-bundle setup/teardown. One BundleRunner is constructed per
// (bundle, transform) pair and discarded after Finish/Teardown.
type BundleRunner struct {
	config *Config
	fn     UserFn
	out    OutputManager

	stateFactory StateAccessorFactory
	state        StateAccessor

	timerService  TimerService
	timerHandlers map[string]TimerHandler // familyID -> handler, write-once at Start

	splitListener SplitListener
	split         *SplitCoordinator

	bundleInstructionID string
	logger              *slog.Logger

	// per-bundle transient "current" slots (§3). Owned exclusively by the
	// process thread; accept/onTimer are never re-entrant, so no lock is
	// needed for these beyond what SplitCoordinator already provides for
	// the subset an external split thread can observe.
	curKey   []byte
	curKeyOK bool
}

// NewBundleRunner constructs a runner for config, backed by fn, emitting to
// out, with state accessed via stateFactory and timers registered against
// timerService. splitListener is invoked whenever the process-continuation
// protocol's own self-split succeeds; a split requested through
// BundleRunner.TrySplit is returned to its caller and not passed to
// splitListener.
func NewBundleRunner(
	bundleInstructionID string,
	config *Config,
	fn UserFn,
	out OutputManager,
	stateFactory StateAccessorFactory,
	timerService TimerService,
	splitListener SplitListener,
	logger *slog.Logger,
) *BundleRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &BundleRunner{
		config:               config,
		fn:                   fn,
		out:                  out,
		stateFactory:         stateFactory,
		timerService:         timerService,
		timerHandlers:        map[string]TimerHandler{},
		splitListener:        splitListener,
		split:                NewSplitCoordinator(fn, config.Mode, config),
		bundleInstructionID:  bundleInstructionID,
		logger:               logger,
	}
}

// keyFn implements KeyFn for the StateAccessor: the key of currentElement
// if it's a KV with a []byte key, else the user-key of currentTimer, else
// not-ok. A KV whose key is of any other type yields not-ok.
func (r *BundleRunner) keyFn() (key []byte, ok bool) {
	return r.curKey, r.curKeyOK
}

// Start constructs the StateAccessor, registers one TimerHandler per
// declared timer family (each re-entering OnTimer when a timer fires), and
// invokes the user StartBundle callback.
func (r *BundleRunner) Start(ctx context.Context) error {
	r.state = r.stateFactory(r.keyFn)

	// Each family's Domain isn't needed here. The timer service passes a
	// domain to onFire at fire time; it is not forwarded, since OnTimer
	// takes only the family id and the Timer record.
	for familyID := range r.config.TimerFamilies {
		familyID := familyID
		handler, err := r.timerService.RegisterHandler(r.bundleInstructionID, r.config.TransformID, familyID, func(ctx context.Context, domain TimeDomain, t Timer) error {
			return r.OnTimer(ctx, familyID, t)
		})
		if err != nil {
			return fmt.Errorf("exec: BundleRunner.Start: registering timer family %q: %w", familyID, err)
		}
		r.timerHandlers[familyID] = handler
	}

	if err := r.fn.StartBundle(ctx); err != nil {
		return wrapUserCode(r.config.TransformID, err)
	}
	return nil
}

// Accept dispatches wv according to the transform's URN mode (§4.H's
// dispatch table).
func (r *BundleRunner) Accept(ctx context.Context, wv WindowedValue) error {
	switch r.config.Mode {
	case ModeParDo:
		return r.dispatchParDo(ctx, wv)
	case ModePairWithRestriction:
		return r.dispatchPairWithRestriction(ctx, wv)
	case ModeSplitRestriction, ModeSplitAndSizeRestrictions:
		return r.dispatchSplitRestriction(ctx, wv)
	case ModeProcessElements, ModeProcessSizedElementsAndRestrictions:
		return r.dispatchProcessElements(ctx, wv)
	default:
		return newConfigError("unhandled mode %v", r.config.Mode)
	}
}

// newOutputFn returns the ictx.output closure for mode's plain output
// shape, targeting the sole main output when tag is "".
func (r *BundleRunner) newOutputFn() func(tag string, value any) error {
	return func(tag string, value any) error {
		wv := WindowedValue{Value: value}
		return r.out.Emit(tag, wv)
	}
}

func (r *BundleRunner) setKeyFromElement(elem any) (restore func()) {
	prevKey, prevOK := r.curKey, r.curKeyOK
	if kv, ok := AsKV(elem); ok {
		if kb, ok := kv.Key.([]byte); ok {
			r.curKey, r.curKeyOK = kb, true
		} else {
			r.curKey, r.curKeyOK = nil, false
		}
	} else {
		r.curKey, r.curKeyOK = nil, false
	}
	return func() { r.curKey, r.curKeyOK = prevKey, prevOK }
}

// baseInvocationContext builds the capabilities common to every non-split
// callback: element/window/timestamp/pane accessors, output, side input,
// state, and timer set. tracker/watermarkEstimator are left nil; splittable
// dispatch paths add them separately.
func (r *BundleRunner) baseInvocationContext(ctx context.Context, wv WindowedValue) *InvocationContext {
	w := wv.SingleWindow()
	return &InvocationContext{
		Ctx:       ctx,
		element:   func() any { return wv.Value },
		windowFn:  func() window.Window { return w },
		timestamp: func() mtime.Time { return wv.Timestamp },
		pane:      func() window.PaneInfo { return wv.Pane },
		output:    r.newOutputFn(),
		sideInput: func(tag string) (any, error) { return r.readSideInput(ctx, tag, w) },
		state: func(stateID string) (StateHandle, error) {
			if _, ok := r.keyFn(); !ok {
				return nil, newUsageError("state access requires a KV-typed current element or a current timer")
			}
			return r.state.Bind(stateID, w)
		},
		newTimer: func(timerID string) (*UserFnTimer, error) {
			return r.newUserFnTimerFor(timerID, w, wv.Timestamp, wv.Timestamp, wv.Pane)
		},
		key: r.keyFn,
	}
}

func (r *BundleRunner) readSideInput(ctx context.Context, tag string, mainWindow window.Window) (any, error) {
	spec, ok := r.config.SideInputs[tag]
	if !ok {
		return nil, newUsageError("unknown side input tag %q", tag)
	}
	mappedWindow := mainWindow
	if spec.WindowMappingFn != nil {
		mappedWindow = spec.WindowMappingFn(mainWindow)
	}
	return r.state.Get(ctx, spec, mappedWindow)
}

func (r *BundleRunner) newUserFnTimerFor(timerID string, w window.Window, holdTs, fireSource mtime.Time, pane window.PaneInfo) (*UserFnTimer, error) {
	spec, ok := r.config.TimerFamilies[timerID]
	if !ok {
		return nil, newUsageError("unknown timer family %q", timerID)
	}
	handler, ok := r.timerHandlers[timerID]
	if !ok {
		return nil, newUsageError("timer family %q has no registered handler (Start not yet called?)", timerID)
	}
	key, _ := r.keyFn()
	return newUserFnTimer(timerID, key, "", w, holdTs, fireSource, pane, spec.Domain, r.config.Windowing.AllowedLateness, handler), nil
}

// dispatchParDo invokes ProcessElement once per window, ignoring the
// ProcessContinuation return (PAR_DO is never splittable).
func (r *BundleRunner) dispatchParDo(ctx context.Context, wv WindowedValue) error {
	for _, w := range wv.Explode() {
		restore := r.setKeyFromElement(w.Value)
		ictx := r.baseInvocationContext(ctx, w)
		_, err := r.fn.ProcessElement(ictx)
		restore()
		if err != nil {
			return wrapUserCode(r.config.TransformID, err)
		}
	}
	return nil
}

// dispatchPairWithRestriction computes the initial restriction and
// watermark-estimator state for each element and emits
// (elem, (restriction, wmState)) to the sole main output.
func (r *BundleRunner) dispatchPairWithRestriction(ctx context.Context, wv WindowedValue) error {
	for _, w := range wv.Explode() {
		ictx := r.baseInvocationContext(ctx, w)
		restriction, wmState, err := r.fn.InitialRestriction(ictx, w.Value)
		if err != nil {
			return wrapUserCode(r.config.TransformID, err)
		}
		out := KV{Key: w.Value, Value: RestrictionAndState{Restriction: restriction, WatermarkEstimatorState: wmState}}
		if err := r.out.Emit("", WindowedValue{Value: out, Timestamp: w.Timestamp, Windows: w.Windows, Pane: w.Pane}); err != nil {
			return fmt.Errorf("exec: dispatchPairWithRestriction: emit: %w", err)
		}
	}
	return nil
}

// dispatchSplitRestriction reads the restriction and watermark-estimator
// state from the input KV and invokes splitRestriction, wrapping each output
// call per mode: plain for SPLIT_RESTRICTION, size-annotated for
// SPLIT_AND_SIZE_RESTRICTIONS. No separate current-restriction slot is set;
// the user callback sees the whole input KV through ictx.Element().
func (r *BundleRunner) dispatchSplitRestriction(ctx context.Context, wv WindowedValue) error {
	sized := r.config.Mode.sized()
	for _, w := range wv.Explode() {
		kv, ok := AsKV(w.Value)
		if !ok {
			return newConfigError("%v: input element is not a KV(elem, (restriction, wmState))", r.config.Mode)
		}
		ras, ok := kv.Value.(RestrictionAndState)
		if !ok {
			return newConfigError("%v: input element's value is not a RestrictionAndState", r.config.Mode)
		}

		ictx := r.baseInvocationContext(ctx, w)
		ictx.output = func(tag string, subRestriction any) error {
			outKV := KV{Key: kv.Key, Value: RestrictionAndState{Restriction: subRestriction, WatermarkEstimatorState: ras.WatermarkEstimatorState}}
			var outValue any = outKV
			if sized {
				size, err := r.fn.GetSize(subRestriction)
				if err != nil {
					return wrapUserCode(r.config.TransformID, err)
				}
				outValue = Sized{Value: outKV, Size: size}
			}
			return r.out.Emit(tag, WindowedValue{Value: outValue, Timestamp: w.Timestamp, Windows: w.Windows, Pane: w.Pane})
		}

		if err := r.fn.SplitRestriction(ictx); err != nil {
			return wrapUserCode(r.config.TransformID, err)
		}
	}
	return nil
}

// dispatchProcessElements runs the process-continuation protocol of §4.H
// for PROCESS_ELEMENTS and PROCESS_SIZED_ELEMENTS_AND_RESTRICTIONS, one
// window at a time.
func (r *BundleRunner) dispatchProcessElements(ctx context.Context, wv WindowedValue) error {
	sized := r.config.Mode.sized()
	for _, w := range wv.Explode() {
		value := w.Value
		if sized {
			s, ok := value.(Sized)
			if !ok {
				return newConfigError("%v: input element is not a Sized value", r.config.Mode)
			}
			value = s.Value // strip the trailing size; unused for dispatch.
		}
		kv, ok := AsKV(value)
		if !ok {
			return newConfigError("%v: input element is not a KV(elem, (restriction, wmState))", r.config.Mode)
		}
		ras, ok := kv.Value.(RestrictionAndState)
		if !ok {
			return newConfigError("%v: input element's value is not a RestrictionAndState", r.config.Mode)
		}

		if err := r.processOneWindow(ctx, kv.Key, ras, w); err != nil {
			return err
		}
	}
	return nil
}

// processOneWindow implements §4.H's five-step process-continuation
// protocol for a single (elem, window) pair.
func (r *BundleRunner) processOneWindow(ctx context.Context, elem any, ras RestrictionAndState, w WindowedValue) error {
	// Step 1: snapshot and publish under splitLock, then release.
	tracker := r.fn.NewTracker(ras.Restriction)
	estimator := r.fn.NewWatermarkEstimator(ras.WatermarkEstimatorState)
	r.split.publish(tracker, nil, estimator, elem, w.SingleWindow(), w.Timestamp, w.Pane)

	// Step 5 (on every exit path, including exceptions below).
	defer r.split.clear()

	restore := r.setKeyFromElement(KV{Key: elem, Value: ras})
	defer restore()

	observedTracker := r.split.currentTracker()
	observedEstimator := r.split.watermarkEstimator

	ictx := r.baseInvocationContext(ctx, w)
	ictx.tracker = func() RestrictionTracker { return observedTracker }
	ictx.watermarkEstimator = func() WatermarkEstimator { return observedEstimator }

	// Step 2: invoke the user callback with the split mutex released.
	cont, err := r.fn.ProcessElement(ictx)
	if err != nil {
		return wrapUserCode(r.config.TransformID, err)
	}
	if err := observedTracker.GetError(); err != nil {
		return wrapUserCode(r.config.TransformID, err)
	}

	if !cont.ShouldResume {
		// Step 3.
		if err := observedTracker.CheckDone(); err != nil {
			return wrapUserCode(r.config.TransformID, fmt.Errorf("restriction not fully claimed: %w", err))
		}
		return nil
	}

	// Step 4.
	result, err := r.split.TrySplit(0.0, cont.ResumeDelay)
	if err != nil {
		return fmt.Errorf("exec: processOneWindow: self split: %w", err)
	}
	if result == nil {
		// An external split already consumed the remainder.
		if err := observedTracker.CheckDone(); err != nil {
			return wrapUserCode(r.config.TransformID, fmt.Errorf("restriction not fully claimed: %w", err))
		}
		return nil
	}
	if r.splitListener != nil {
		r.splitListener(result.Primary, result.Residual)
	}
	return nil
}

// OnTimer fires the user OnTimer callback once per window named by t, with
// the timer's user key as the current key, restoring the previous key on
// every exit path.
func (r *BundleRunner) OnTimer(ctx context.Context, familyID string, t Timer) error {
	// The family's Domain isn't needed here: it only governed how this
	// timer was scheduled, already resolved by the timer service before
	// OnTimer was invoked.
	if _, ok := r.config.TimerFamilies[familyID]; !ok {
		return newConfigError("onTimer: unknown timer family %q", familyID)
	}

	prevKey, prevOK := r.curKey, r.curKeyOK
	r.curKey, r.curKeyOK = t.UserKey, len(t.UserKey) > 0
	defer func() { r.curKey, r.curKeyOK = prevKey, prevOK }()

	for _, w := range t.Windows {
		ictx := &InvocationContext{
			Ctx:       ctx,
			windowFn:  func() window.Window { return w },
			timestamp: func() mtime.Time { return t.HoldTimestamp },
			pane:      func() window.PaneInfo { return t.Pane },
			output:    r.newOutputFn(),
			sideInput: func(tag string) (any, error) { return r.readSideInput(ctx, tag, w) },
			state: func(stateID string) (StateHandle, error) {
				if _, ok := r.keyFn(); !ok {
					return nil, newUsageError("state access requires a current timer with a key")
				}
				return r.state.Bind(stateID, w)
			},
			newTimer: func(timerID string) (*UserFnTimer, error) {
				return r.newUserFnTimerFor(timerID, w, t.HoldTimestamp, t.FireTimestamp, t.Pane)
			},
			key: r.keyFn,
		}
		if err := r.fn.OnTimer(ictx, familyID, t.DynamicTag); err != nil {
			return wrapUserCode(r.config.TransformID, err)
		}
	}
	return nil
}

// Finish awaits every registered timer handler concurrently (a firing may
// set further timers while the handlers drain), then closes them one by
// one, invokes FinishBundle, and finalizes the state accessor.
func (r *BundleRunner) Finish(ctx context.Context) error {
	eg, egctx := errgroup.WithContext(ctx)
	for familyID, handler := range r.timerHandlers {
		familyID, handler := familyID, handler
		eg.Go(func() error {
			if err := handler.Await(egctx); err != nil {
				return fmt.Errorf("exec: BundleRunner.Finish: awaiting timer family %q: %w", familyID, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	for familyID, handler := range r.timerHandlers {
		if err := handler.Close(); err != nil {
			return fmt.Errorf("exec: BundleRunner.Finish: closing timer family %q: %w", familyID, err)
		}
	}

	if err := r.fn.FinishBundle(ctx); err != nil {
		return wrapUserCode(r.config.TransformID, err)
	}

	if r.state != nil {
		if err := r.state.FinalizeState(ctx); err != nil {
			return fmt.Errorf("exec: BundleRunner.Finish: finalizing state: %w", err)
		}
		r.state = nil
	}
	return nil
}

// Teardown invokes the user Teardown hook. Called once this BundleRunner
// will never process another bundle.
func (r *BundleRunner) Teardown(ctx context.Context) error {
	if err := r.fn.Teardown(ctx); err != nil {
		return wrapUserCode(r.config.TransformID, err)
	}
	return nil
}

// GetProgress exposes the split coordinator's progress reading for the
// currently in-flight element, if any.
func (r *BundleRunner) GetProgress() (completed, remaining float64, ok bool) {
	return r.split.GetProgress()
}

// TrySplit exposes the split coordinator's split operation to an external
// control thread.
func (r *BundleRunner) TrySplit(fractionOfRemainder float64, resumeDelay time.Duration) (*SplitResult, error) {
	return r.split.TrySplit(fractionOfRemainder, resumeDelay)
}
