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

import "sync"

// WatermarkEstimator tracks the lower bound of event times this element's
// restriction has yet to produce. Its only required method is
// CurrentWatermark; ObserveTimestamp/GetEstimatorState are optional
// capabilities a user implementation may additionally expose.
type WatermarkEstimator interface {
	// CurrentWatermark returns the estimator's current watermark reading,
	// in milliseconds since epoch.
	CurrentWatermark() int64
}

// TimestampObservingEstimator is the optional capability letting
// processElement feed observed output timestamps back into the estimator.
type TimestampObservingEstimator interface {
	ObserveTimestamp(timestampMillis int64)
}

// StateExtractingEstimator is the optional capability letting the runner
// retrieve a serializable snapshot of estimator state, e.g. to persist
// alongside a residual's watermarkEstimatorState on split.
type StateExtractingEstimator interface {
	GetEstimatorState() any
}

// threadSafeWatermarkEstimator wraps a user-supplied WatermarkEstimator
// with a per-estimator mutex. Per §4.E, this wrapper is mandatory whenever
// the user implementation exposes the optional capabilities: the process
// thread calls ObserveTimestamp while the split thread concurrently calls
// GetWatermarkAndState, and every method here runs under the same
// exclusive lock so neither thread observes a torn read.
type threadSafeWatermarkEstimator struct {
	mu        sync.Mutex
	estimator WatermarkEstimator
}

func newThreadSafeWatermarkEstimator(e WatermarkEstimator) *threadSafeWatermarkEstimator {
	return &threadSafeWatermarkEstimator{estimator: e}
}

// CurrentWatermark returns the wrapped estimator's current reading under
// lock.
func (w *threadSafeWatermarkEstimator) CurrentWatermark() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.estimator.CurrentWatermark()
}

// ObserveTimestamp forwards to the wrapped estimator under lock, if it
// supports timestamp observation; otherwise it's a no-op.
func (w *threadSafeWatermarkEstimator) ObserveTimestamp(timestampMillis int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if o, ok := w.estimator.(TimestampObservingEstimator); ok {
		o.ObserveTimestamp(timestampMillis)
	}
}

// GetWatermarkAndState reads the current watermark and, if supported, the
// estimator's extractable state, as one atomic operation under lock. This
// is the combined read SplitCoordinator.trySplit must perform before
// calling tracker.TrySplit — see §4.F step 3 and §5's critical-ordering
// requirement.
func (w *threadSafeWatermarkEstimator) GetWatermarkAndState() (watermarkMillis int64, state any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	wm := w.estimator.CurrentWatermark()
	var st any
	if s, ok := w.estimator.(StateExtractingEstimator); ok {
		st = s.GetEstimatorState()
	}
	return wm, st
}
