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

package coder

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stephenoken/beam/pkg/beam/core/graph/mtime"
	"github.com/stephenoken/beam/pkg/beam/core/graph/window"
)

func TestVarIntRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, 127, 128, 300, 1 << 40} {
		var buf bytes.Buffer
		if err := EncodeVarInt(v, &buf); err != nil {
			t.Fatalf("EncodeVarInt(%d): %v", v, err)
		}
		got, err := DecodeVarInt(&buf)
		if err != nil {
			t.Fatalf("DecodeVarInt: %v", err)
		}
		if got != v {
			t.Errorf("round trip %d, got %d", v, got)
		}
	}
}

func TestBytesCodecRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := []byte("hello restriction")
	if err := (BytesCodec{}).Encode(want, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := (BytesCodec{}).Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !cmp.Equal(got.([]byte), want) {
		t.Errorf("round trip: got %q, want %q", got, want)
	}
}

func TestIntervalWindowCoderRoundTrip(t *testing.T) {
	w := window.IntervalWindow{Start: mtime.FromMilliseconds(0), End: mtime.FromMilliseconds(100)}
	var buf bytes.Buffer
	if err := (IntervalWindowCoder{}).Encode(w, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := (IntervalWindowCoder{}).Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.Equals(w) {
		t.Errorf("round trip: got %v, want %v", got, w)
	}
}

func TestWindowedCodecRoundTrip(t *testing.T) {
	c := WindowedCodec{Elem: BytesCodec{}, Window: IntervalWindowCoder{}}
	windows := window.Set{window.IntervalWindow{Start: 0, End: 100}}
	pane := window.PaneInfo{Timing: window.OnTime, IsFirst: true, IsLast: true, Index: 2, OnTimeIndex: 1}

	encoded, err := c.EncodeToBytes([]byte("abc"), mtime.FromMilliseconds(42), windows, pane)
	if err != nil {
		t.Fatalf("EncodeToBytes: %v", err)
	}

	value, ts, gotWindows, gotPane, err := c.Decode(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !cmp.Equal(value.([]byte), []byte("abc")) {
		t.Errorf("value = %q, want %q", value, "abc")
	}
	if ts != mtime.FromMilliseconds(42) {
		t.Errorf("ts = %v, want 42", ts)
	}
	if diff := cmp.Diff([]window.Window{windows[0]}, []window.Window(gotWindows)); diff != "" {
		t.Errorf("windows mismatch (-want +got):\n%s", diff)
	}
	if gotPane != pane {
		t.Errorf("pane = %+v, want %+v", gotPane, pane)
	}
}
