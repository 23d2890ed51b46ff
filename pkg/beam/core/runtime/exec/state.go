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

	"github.com/stephenoken/beam/pkg/beam/core/graph/window"
)

// SideInputSpec is the materialization recipe for a single side-input tag:
// the codec(s) needed to decode its wire form, the view function shaping
// raw materialized values into what user code sees, and the window-mapping
// function translating the main element's window into the side input's
// window. Multimap is the only materialization this runner supports;
// anything else fails Config construction (a ConfigurationError).
type SideInputSpec struct {
	Tag             string
	ElemCoderID     string
	WindowCoderID   string
	ViewFn          func(multimap map[any][]any) any
	WindowMappingFn func(mainWindow window.Window) window.Window
}

// StateHandle is a per-state-id accessor bound once via
// StateAccessor.Bind, reused for the lifetime of the current keyed
// context.
type StateHandle interface {
	Read(ctx context.Context) (any, error)
	Write(ctx context.Context, v any) error
	Clear(ctx context.Context) error
}

// KeyFn returns the key of the currently active element or timer, and
// whether one exists. Per §4.H, it returns the key of currentElement if
// it's a KV with a []byte key, else the user key of currentTimer, else
// ok=false — in which case any state or per-key timer access must fail
// with a UsageError. A KV whose key is of any other type yields ok=false.
type KeyFn func() (key []byte, ok bool)

// StateAccessor is the facade the runner presents to user code for side
// input reads and user state access, keyed by the function supplied at
// bundle start. The actual state-service RPC client it talks to is outside
// this module's scope (§1); this interface is the seam a caller's client
// implementation satisfies.
type StateAccessor interface {
	// Get reads the materialized multimap side input for view in
	// currentWindow, and returns view.ViewFn applied to it. The runner has
	// already mapped the main element's window through
	// view.WindowMappingFn before calling Get, so currentWindow is the side
	// input's window; all side-input reads target it, never the main
	// element's original window set.
	Get(ctx context.Context, view SideInputSpec, currentWindow window.Window) (any, error)
	// Bind returns a StateHandle for stateID, scoped to the current key
	// and currentWindow. Fails with a UsageError if KeyFn reports no
	// current key.
	Bind(stateID string, currentWindow window.Window) (StateHandle, error)
	// FinalizeState flushes any pending writes and releases per-bundle
	// resources. Called once, from BundleRunner.Finish.
	FinalizeState(ctx context.Context) error
}

// StateAccessorFactory constructs a StateAccessor bound to keyFn, called
// once per bundle from BundleRunner.Start.
type StateAccessorFactory func(keyFn KeyFn) StateAccessor

// requireKey is the shared guard every keyed operation (state access,
// per-key timer set) runs through.
func requireKey(keyFn KeyFn) ([]byte, error) {
	if keyFn == nil {
		return nil, newUsageError("state and per-key timer access require a keyed context; none is active")
	}
	key, ok := keyFn()
	if !ok {
		return nil, newUsageError("state and per-key timer access require a KV-typed current element or a current timer; neither is active")
	}
	return key, nil
}

// ensureMultimap is invoked at Config construction for each declared side
// input; only multimap materialization is supported.
func ensureMultimap(materialization string) error {
	if materialization != "multimap" {
		return newConfigError("side input materialization %q unsupported; only %q is implemented", materialization, "multimap")
	}
	return nil
}
