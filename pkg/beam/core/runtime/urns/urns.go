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

// Package urns holds the string identifiers this module dispatches and
// reports on: the six transform execution modes NewConfig's urn selects between,
// and the two progress monitoring-info URNs the split coordinator reports.
//
// Named analogously to beam's runners/prism/internal/urns package, which
// execute.go imports for its transform and coder URN constants.
package urns

const (
	// TransformParDo is a plain element-processing transform: one
	// processElement invocation per input element per window.
	TransformParDo = "beam:transform:pardo:v1"
	// TransformPairWithRestriction computes the initial restriction and
	// watermark-estimator state for each element of a splittable transform.
	TransformPairWithRestriction = "beam:transform:sdf_pair_with_restriction:v1"
	// TransformSplitRestriction invokes the user's splitRestriction to
	// produce sub-restrictions ahead of any processing.
	TransformSplitRestriction = "beam:transform:sdf_split_restriction:v1"
	// TransformSplitAndSizeRestrictions is TransformSplitRestriction plus a
	// getSize call on every emitted sub-restriction.
	TransformSplitAndSizeRestrictions = "beam:transform:sdf_split_and_size_restrictions:v1"
	// TransformProcessElements drives the splittable process loop: tracker
	// construction, processElement, and self-split handling.
	TransformProcessElements = "beam:transform:sdf_process_elements:v1"
	// TransformProcessSizedElementsAndRestrictions is
	// TransformProcessElements over an input that carries a trailing size,
	// stripped before dispatch.
	TransformProcessSizedElementsAndRestrictions = "beam:transform:sdf_process_sized_elements_and_restrictions:v1"
)

const (
	// MonitoringInfoWorkCompleted is the URN under which SplitCoordinator
	// reports a tracker's completed-work estimate.
	MonitoringInfoWorkCompleted = "beam:metric:sdf:work_completed:v1"
	// MonitoringInfoWorkRemaining is the URN under which SplitCoordinator
	// reports a tracker's remaining-work estimate.
	MonitoringInfoWorkRemaining = "beam:metric:sdf:work_remaining:v1"
)

// CoderDouble is the standard IEEE-754 double coder URN, used to encode the
// single-element iterable payload of a progress metric.
const CoderDouble = "beam:coder:double:v1"

// CoderIterable is the standard iterable coder URN wrapping CoderDouble for
// progress-metric payloads.
const CoderIterable = "beam:coder:iterable:v1"
