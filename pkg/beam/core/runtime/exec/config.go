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
	"sort"
	"time"

	"golang.org/x/exp/maps"

	"github.com/stephenoken/beam/pkg/beam/core/graph/coder"
	"github.com/stephenoken/beam/pkg/beam/core/runtime/urns"
)

// UrnMode is the tagged variant selecting both the element-shape parser
// and the output wrapper for a transform, replacing the source's family of
// anonymous subclass overrides (§9's design note).
type UrnMode int

const (
	ModeParDo UrnMode = iota
	ModePairWithRestriction
	ModeSplitRestriction
	ModeSplitAndSizeRestrictions
	ModeProcessElements
	ModeProcessSizedElementsAndRestrictions
)

// sized reports whether this mode's element shape carries a trailing
// getSize value that must be stripped (inputs) or attached (outputs).
func (m UrnMode) sized() bool {
	return m == ModeSplitAndSizeRestrictions || m == ModeProcessSizedElementsAndRestrictions
}

// splittable reports whether this mode drives the process-continuation
// protocol of §4.H.
func (m UrnMode) splittable() bool {
	return m == ModeProcessElements || m == ModeProcessSizedElementsAndRestrictions
}

func (m UrnMode) String() string {
	switch m {
	case ModeParDo:
		return "PAR_DO"
	case ModePairWithRestriction:
		return "PAIR_WITH_RESTRICTION"
	case ModeSplitRestriction:
		return "SPLIT_RESTRICTION"
	case ModeSplitAndSizeRestrictions:
		return "SPLIT_AND_SIZE_RESTRICTIONS"
	case ModeProcessElements:
		return "PROCESS_ELEMENTS"
	case ModeProcessSizedElementsAndRestrictions:
		return "PROCESS_SIZED_ELEMENTS_AND_RESTRICTIONS"
	default:
		return "UNKNOWN_MODE"
	}
}

// modeFromURN parses a transform descriptor's URN into its dispatch mode,
// failing with a ConfigurationError if the URN is unrecognized.
func modeFromURN(urn string) (UrnMode, error) {
	switch urn {
	case urns.TransformParDo:
		return ModeParDo, nil
	case urns.TransformPairWithRestriction:
		return ModePairWithRestriction, nil
	case urns.TransformSplitRestriction:
		return ModeSplitRestriction, nil
	case urns.TransformSplitAndSizeRestrictions:
		return ModeSplitAndSizeRestrictions, nil
	case urns.TransformProcessElements:
		return ModeProcessElements, nil
	case urns.TransformProcessSizedElementsAndRestrictions:
		return ModeProcessSizedElementsAndRestrictions, nil
	default:
		return 0, newConfigError("unknown transform URN %q", urn)
	}
}

// TimerFamilySpec declares one timer family: the clock it fires against
// and the codec for its user-key payload.
type TimerFamilySpec struct {
	Domain TimeDomain
	Codec  coder.Codec
}

// WindowingStrategy carries the main input's windowing configuration the
// runner needs: the allowed lateness bounding event-time timer GC, and the
// window coder for split-path encoding.
type WindowingStrategy struct {
	AllowedLateness time.Duration
	WindowCoder     coder.WindowCoder
}

// Config is the transform descriptor parsed once at BundleRunner
// construction: URN, main input/output tag names, side-input specs,
// timer-family specs, the main input's windowing strategy, and the main
// input/output element codec.
type Config struct {
	Mode UrnMode

	TransformID  string
	MainInputID  string
	MainInputTag string
	OutputTags   []string // declaration order; "" denotes the sole main output for single-output modes

	SideInputs   map[string]SideInputSpec
	TimerFamilies map[string]TimerFamilySpec

	Windowing WindowingStrategy

	// ElemCoder decodes/encodes the main input's raw element value (not
	// the windowed envelope around it).
	ElemCoder coder.Codec
}

// NewConfig parses and validates a transform descriptor, applying §7's
// configuration-error checks: unknown URN, non-multimap side inputs,
// missing main input.
func NewConfig(
	urn string,
	transformID, mainInputID, mainInputTag string,
	outputTags []string,
	sideInputs map[string]SideInputSpec,
	sideInputMaterializations map[string]string,
	timerFamilies map[string]TimerFamilySpec,
	windowing WindowingStrategy,
	elemCoder coder.Codec,
) (*Config, error) {
	mode, err := modeFromURN(urn)
	if err != nil {
		return nil, err
	}
	if mainInputID == "" {
		return nil, newConfigError("transform %q: missing main input", transformID)
	}
	// Validate in sorted tag order so a multi-violation descriptor always
	// reports its first error deterministically, regardless of Go's
	// randomized map iteration.
	tags := maps.Keys(sideInputMaterializations)
	sort.Strings(tags)
	for _, tag := range tags {
		if err := ensureMultimap(sideInputMaterializations[tag]); err != nil {
			return nil, newConfigError("transform %q: side input %q: %v", transformID, tag, err)
		}
	}
	if elemCoder == nil {
		return nil, newConfigError("transform %q: missing main input element codec", transformID)
	}
	return &Config{
		Mode:          mode,
		TransformID:   transformID,
		MainInputID:   mainInputID,
		MainInputTag:  mainInputTag,
		OutputTags:    outputTags,
		SideInputs:    sideInputs,
		TimerFamilies: timerFamilies,
		Windowing:     windowing,
		ElemCoder:     elemCoder,
	}, nil
}

// windowedCodec builds the full windowed-value codec for the main input,
// used only by the split path (§9's design note: keep the raw value codec
// separate from the windowed codec).
func (c *Config) windowedCodec() coder.WindowedCodec {
	return coder.WindowedCodec{Elem: c.ElemCoder, Window: c.Windowing.WindowCoder}
}

// OutputManager supplies the per-output-id consumer list a BundleRunner
// emits to. The data-plane transport backing it is out of scope (§1); this
// is the seam a caller's data-out registry implementation satisfies.
type OutputManager interface {
	// Emit delivers value (already wrapped in a WindowedValue by the
	// runner) to every registered consumer of outputTag.
	Emit(outputTag string, value WindowedValue) error
}
