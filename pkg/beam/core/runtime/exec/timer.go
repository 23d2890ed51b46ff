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

	"github.com/stephenoken/beam/pkg/beam/core/graph/mtime"
	"github.com/stephenoken/beam/pkg/beam/core/graph/window"
)

// TimeDomain selects which clock a timer family fires against.
type TimeDomain int

const (
	// EventTime timers fire as the input watermark passes their scheduled
	// time; they're bounded by the window's GC time.
	EventTime TimeDomain = iota
	// ProcessingTime timers fire as wall-clock time passes their scheduled
	// time, irrespective of the watermark.
	ProcessingTime
	// SyncProcessingTime timers fire as wall-clock time passes, but are
	// additionally held back from advancing past the input watermark.
	SyncProcessingTime
)

func (d TimeDomain) String() string {
	switch d {
	case EventTime:
		return "EVENT_TIME"
	case ProcessingTime:
		return "PROCESSING_TIME"
	case SyncProcessingTime:
		return "SYNC_PROCESSING_TIME"
	default:
		return "UNKNOWN_TIME_DOMAIN"
	}
}

// Timer is a single scheduled (or firing) timer record: the user key it's
// keyed by, an optional dynamic tag for timer-family timers (always "" in
// this spec's single-timer-per-family scope, per SPEC_FULL's open-question
// decision), the windows it applies to, its fire time, its watermark hold,
// and the pane it was set under.
type Timer struct {
	UserKey    []byte
	DynamicTag string
	Windows    window.Set
	FireTimestamp  mtime.Time
	HoldTimestamp  mtime.Time
	Pane       window.PaneInfo
}

// TimerHandler is the per-timer-family sink a BundleRunner writes scheduled
// Timer records to. One is registered per declared timer family at
// BundleRunner.Start and treated as immutable (the map holding them, not
// the handler itself) afterward.
type TimerHandler interface {
	// Set schedules t, re-entering the runner's OnTimer when it fires.
	Set(ctx context.Context, t Timer) error
	// Await blocks until every timer this handler has scheduled has either
	// fired or been superseded. Called from BundleRunner.Finish, where all
	// handlers drain concurrently before any is closed and before the user
	// FinishBundle callback runs.
	Await(ctx context.Context) error
	// Close releases the handler's resources. Called after Await returns.
	Close() error
}

// TimerService registers a TimerHandler for a given bundle/transform/timer
// family triple, keyed as the data plane names it:
// (bundleInstructionID, transformID, familyLocalName). The returned
// TimerHandler re-enters BundleRunner.OnTimer when a scheduled timer fires.
type TimerService interface {
	RegisterHandler(bundleInstructionID, transformID, familyLocalName string, onFire func(ctx context.Context, domain TimeDomain, t Timer) error) (TimerHandler, error)
}
