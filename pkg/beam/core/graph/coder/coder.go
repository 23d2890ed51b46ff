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

// Package coder encodes and decodes the element and timer payloads the
// split path needs to ship as bytes (BundleApplication.element,
// DelayedBundleApplication residuals). The runner treats the user's own
// element coder as an opaque Codec; this package only adds the
// length-prefixing and window/timestamp/pane framing around it.
package coder

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/stephenoken/beam/pkg/beam/core/graph/mtime"
	"github.com/stephenoken/beam/pkg/beam/core/graph/window"
)

// Codec encodes and decodes a single element value. The runner never
// inspects a Codec's internal structure; it is supplied by the caller for
// whatever payload type the transform's main input carries.
type Codec interface {
	Encode(v any, w io.Writer) error
	Decode(r io.Reader) (any, error)
}

// BytesCodec is the identity Codec over raw length-prefixed []byte, used
// wherever a caller hands the runner already-encoded bytes.
type BytesCodec struct{}

// Encode writes v (expected []byte) length-prefixed.
func (BytesCodec) Encode(v any, w io.Writer) error {
	b, ok := v.([]byte)
	if !ok {
		return fmt.Errorf("coder: BytesCodec.Encode: value is %T, want []byte", v)
	}
	if err := EncodeVarInt(int64(len(b)), w); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// Decode reads a length-prefixed []byte.
func (BytesCodec) Decode(r io.Reader) (any, error) {
	n, err := DecodeVarInt(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Registry maps a logical coder id (as declared on a PCollection or side
// input) to the Codec that handles it. Register and Lookup are safe for
// concurrent use; Config construction does not consult a Registry.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]Codec
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: map[string]Codec{}}
}

// Register associates id with c. Re-registering the same id overwrites.
func (r *Registry) Register(id string, c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id] = c
}

// Lookup returns the Codec registered for id, or an error if none exists.
func (r *Registry) Lookup(id string) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("coder: no codec registered for id %q", id)
	}
	return c, nil
}

// WindowCoder encodes and decodes a single window.Window.
type WindowCoder interface {
	Encode(w window.Window, out io.Writer) error
	Decode(r io.Reader) (window.Window, error)
}

// GlobalWindowCoder encodes window.GlobalWindow as a zero-length payload.
type GlobalWindowCoder struct{}

// Encode writes nothing; the global window carries no state.
func (GlobalWindowCoder) Encode(window.Window, io.Writer) error { return nil }

// Decode always returns window.GlobalWindow{}.
func (GlobalWindowCoder) Decode(io.Reader) (window.Window, error) {
	return window.GlobalWindow{}, nil
}

// IntervalWindowCoder encodes window.IntervalWindow as two big-endian-free
// varints: End (the window's exclusive upper bound) then its span, matching
// the convention that a window's start is recoverable as End-span.
type IntervalWindowCoder struct{}

// Encode writes End then (End-Start) as successive varints.
func (IntervalWindowCoder) Encode(w window.Window, out io.Writer) error {
	iw, ok := w.(window.IntervalWindow)
	if !ok {
		return fmt.Errorf("coder: IntervalWindowCoder.Encode: got %T, want window.IntervalWindow", w)
	}
	if err := EncodeVarInt(int64(iw.End), out); err != nil {
		return err
	}
	return EncodeVarInt(int64(iw.End-iw.Start), out)
}

// Decode reads End and span, reconstructing Start = End-span.
func (IntervalWindowCoder) Decode(r io.Reader) (window.Window, error) {
	end, err := DecodeVarInt(r)
	if err != nil {
		return nil, err
	}
	span, err := DecodeVarInt(r)
	if err != nil {
		return nil, err
	}
	return window.IntervalWindow{Start: mtime.Time(end - span), End: mtime.Time(end)}, nil
}

// WindowedCodec composes an element Codec with a WindowCoder, the
// timestamp, the window set, and the pane into the single framed payload
// the split path needs: the full windowed-value encoding used for
// BundleApplication.element and DelayedBundleApplication residuals. Kept
// separate from the raw element Codec because only the split path needs
// this fuller form — every other element delivery only ever needs the raw
// value.
type WindowedCodec struct {
	Elem   Codec
	Window WindowCoder
}

// Encode writes value, ts, windows, and pane as one framed payload.
func (c WindowedCodec) Encode(value any, ts mtime.Time, windows window.Set, pane window.PaneInfo, out io.Writer) error {
	if err := EncodeVarInt(int64(ts), out); err != nil {
		return fmt.Errorf("coder: WindowedCodec.Encode: timestamp: %w", err)
	}
	if err := EncodeVarInt(int64(len(windows)), out); err != nil {
		return fmt.Errorf("coder: WindowedCodec.Encode: window count: %w", err)
	}
	for _, w := range windows {
		if err := c.Window.Encode(w, out); err != nil {
			return fmt.Errorf("coder: WindowedCodec.Encode: window: %w", err)
		}
	}
	if err := encodePane(pane, out); err != nil {
		return fmt.Errorf("coder: WindowedCodec.Encode: pane: %w", err)
	}
	if err := c.Elem.Encode(value, out); err != nil {
		return fmt.Errorf("coder: WindowedCodec.Encode: element: %w", err)
	}
	return nil
}

// Decode reads a payload written by Encode.
func (c WindowedCodec) Decode(r io.Reader) (value any, ts mtime.Time, windows window.Set, pane window.PaneInfo, err error) {
	rawTS, err := DecodeVarInt(r)
	if err != nil {
		return nil, 0, nil, window.PaneInfo{}, fmt.Errorf("coder: WindowedCodec.Decode: timestamp: %w", err)
	}
	ts = mtime.Time(rawTS)
	n, err := DecodeVarInt(r)
	if err != nil {
		return nil, 0, nil, window.PaneInfo{}, fmt.Errorf("coder: WindowedCodec.Decode: window count: %w", err)
	}
	windows = make(window.Set, 0, n)
	for i := int64(0); i < n; i++ {
		w, err := c.Window.Decode(r)
		if err != nil {
			return nil, 0, nil, window.PaneInfo{}, fmt.Errorf("coder: WindowedCodec.Decode: window: %w", err)
		}
		windows = append(windows, w)
	}
	pane, err = decodePane(r)
	if err != nil {
		return nil, 0, nil, window.PaneInfo{}, fmt.Errorf("coder: WindowedCodec.Decode: pane: %w", err)
	}
	value, err = c.Elem.Decode(r)
	if err != nil {
		return nil, 0, nil, window.PaneInfo{}, fmt.Errorf("coder: WindowedCodec.Decode: element: %w", err)
	}
	return value, ts, windows, pane, nil
}

// EncodeToBytes is a convenience wrapper returning the encoded payload as a
// byte slice, the form the split path ships over the wire.
func (c WindowedCodec) EncodeToBytes(value any, ts mtime.Time, windows window.Set, pane window.PaneInfo) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(value, ts, windows, pane, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodePane(p window.PaneInfo, w io.Writer) error {
	if err := EncodeVarInt(int64(p.Timing), w); err != nil {
		return err
	}
	if err := EncodeVarInt(boolToInt(p.IsFirst), w); err != nil {
		return err
	}
	if err := EncodeVarInt(boolToInt(p.IsLast), w); err != nil {
		return err
	}
	if err := EncodeVarInt(p.Index, w); err != nil {
		return err
	}
	return EncodeVarInt(p.OnTimeIndex, w)
}

func decodePane(r io.Reader) (window.PaneInfo, error) {
	timing, err := DecodeVarInt(r)
	if err != nil {
		return window.PaneInfo{}, err
	}
	isFirst, err := DecodeVarInt(r)
	if err != nil {
		return window.PaneInfo{}, err
	}
	isLast, err := DecodeVarInt(r)
	if err != nil {
		return window.PaneInfo{}, err
	}
	idx, err := DecodeVarInt(r)
	if err != nil {
		return window.PaneInfo{}, err
	}
	onTimeIdx, err := DecodeVarInt(r)
	if err != nil {
		return window.PaneInfo{}, err
	}
	return window.PaneInfo{
		Timing:      window.Timing(timing),
		IsFirst:     isFirst != 0,
		IsLast:      isLast != 0,
		Index:       idx,
		OnTimeIndex: onTimeIdx,
	}, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
