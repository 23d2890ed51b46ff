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

	"github.com/stephenoken/beam/pkg/beam/core/graph/coder"
	"github.com/stephenoken/beam/pkg/beam/core/runtime/urns"
)

// MonitoringInfo is a single progress metric report: the URN identifying
// which metric it is, and the encoded payload (§6: "a one-element
// double-iterable payload under the standard iterable codec over the
// standard IEEE-754 double codec").
type MonitoringInfo struct {
	URN     string
	Payload []byte
}

// encodeDouble writes v as a big-endian IEEE-754 double, the standard
// double coder's wire format.
func encodeDouble(v float64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

// encodeSingleDoubleIterable writes v as a one-element iterable<double>:
// a varint element count of 1, followed by the double's encoding.
func encodeSingleDoubleIterable(v float64) []byte {
	var buf bytes.Buffer
	_ = coder.EncodeVarInt(1, &buf)
	buf.Write(encodeDouble(v))
	return buf.Bytes()
}

// ReportProgress encodes a SplitCoordinator.GetProgress reading as the two
// MonitoringInfo records the worker surfaces to the orchestrator. Returns
// nil if no progress reading is available (no tracker published, or the
// tracker doesn't support Progressable) — that's not an error, per §4.F
// step 1.
func ReportProgress(s *SplitCoordinator) []MonitoringInfo {
	completed, remaining, ok := s.GetProgress()
	if !ok {
		return nil
	}
	return []MonitoringInfo{
		{URN: urns.MonitoringInfoWorkCompleted, Payload: encodeSingleDoubleIterable(completed)},
		{URN: urns.MonitoringInfoWorkRemaining, Payload: encodeSingleDoubleIterable(remaining)},
	}
}
