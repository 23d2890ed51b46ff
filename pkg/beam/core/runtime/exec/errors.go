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

import "fmt"

// ConfigurationError reports a problem fatal at BundleRunner construction
// time: a malformed transform payload, an unknown URN, a side-input
// materialization other than multimap, or a missing main input.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("exec: configuration error: %s", e.Reason)
}

func newConfigError(format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// UsageError is raised to user code for misuse of the runner's contract:
// state or timer access outside a keyed context, an unknown output tag, an
// event-time violation in timer configuration, or calling Set in a
// non-event-time domain.
type UsageError struct {
	Reason string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("exec: usage error: %s", e.Reason)
}

func newUsageError(format string, args ...any) error {
	return &UsageError{Reason: fmt.Sprintf(format, args...)}
}

// UserCodeFailure wraps any error a user callback raised. It is applied
// exactly once at the boundary where the callback returned; code deeper in
// the call stack must never wrap a second time.
type UserCodeFailure struct {
	Transform string
	Err       error
}

func (e *UserCodeFailure) Error() string {
	return fmt.Sprintf("exec: user code failure in transform %q: %v", e.Transform, e.Err)
}

func (e *UserCodeFailure) Unwrap() error {
	return e.Err
}

// wrapUserCode wraps err as a UserCodeFailure for transform, unless err is
// nil or already a *UserCodeFailure (never double-wrap).
func wrapUserCode(transform string, err error) error {
	if err == nil {
		return nil
	}
	if uf, ok := err.(*UserCodeFailure); ok {
		return uf
	}
	return &UserCodeFailure{Transform: transform, Err: err}
}
