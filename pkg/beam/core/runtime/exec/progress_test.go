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
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stephenoken/beam/pkg/beam/core/graph/coder"
	"github.com/stephenoken/beam/pkg/beam/core/graph/window"
	"github.com/stephenoken/beam/pkg/beam/core/runtime/urns"
)

func TestEncodeSingleDoubleIterable(t *testing.T) {
	got := encodeSingleDoubleIterable(3.5)

	r := bytes.NewReader(got)
	count, err := coder.DecodeVarInt(r)
	if err != nil {
		t.Fatalf("DecodeVarInt(count): %v", err)
	}
	if count != 1 {
		t.Fatalf("element count = %v, want 1", count)
	}
	var buf [8]byte
	if _, err := r.Read(buf[:]); err != nil {
		t.Fatalf("reading the double payload: %v", err)
	}
	if got := math.Float64frombits(binary.BigEndian.Uint64(buf[:])); got != 3.5 {
		t.Errorf("decoded double = %v, want 3.5", got)
	}
}

func TestReportProgressNoTrackerPublished(t *testing.T) {
	s := NewSplitCoordinator(nil, ModeProcessElements, &Config{})
	if got := ReportProgress(s); got != nil {
		t.Errorf("ReportProgress with no published tracker = %v, want nil", got)
	}
}

func TestReportProgressEncodesCompletedAndRemaining(t *testing.T) {
	cfg := &Config{Mode: ModeProcessElements, OutputTags: []string{""}}
	s := NewSplitCoordinator(nil, ModeProcessElements, cfg)
	s.publish(newFakeTracker(2, 10), nil, &fakeWatermarkEstimator{}, "k", window.GlobalWindow{}, 0, window.NoFiring)

	got := ReportProgress(s)
	if len(got) != 2 {
		t.Fatalf("ReportProgress returned %d MonitoringInfos, want 2", len(got))
	}
	if got[0].URN != urns.MonitoringInfoWorkCompleted {
		t.Errorf("got[0].URN = %v, want %v", got[0].URN, urns.MonitoringInfoWorkCompleted)
	}
	if got[1].URN != urns.MonitoringInfoWorkRemaining {
		t.Errorf("got[1].URN = %v, want %v", got[1].URN, urns.MonitoringInfoWorkRemaining)
	}
}
