/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package capability defines read-only diagnostic operations that an agent
// may invoke by name, and the registry that validates and dispatches them.
package capability

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnknownCapability is returned for a name not in the registry.
	ErrUnknownCapability = errors.New("unknown capability")
	// ErrInvalidArguments is returned when arguments do not satisfy the
	// descriptor. Backends may also wrap it to reject semantically invalid
	// input before reaching the external system.
	ErrInvalidArguments = errors.New("invalid arguments")
	// ErrExecutionFailure wraps any error from the external system.
	ErrExecutionFailure = errors.New("capability execution failed")
	// ErrDuplicateCapability is returned when two descriptors share a name.
	ErrDuplicateCapability = errors.New("duplicate capability")
)

// ParamType is the JSON type of a parameter.
type ParamType string

const (
	String  ParamType = "string"
	Integer ParamType = "integer"
	Number  ParamType = "number"
	Boolean ParamType = "boolean"
)

// Param describes one named argument.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	// Default is used when an optional parameter is absent. It must already
	// have the Go type that Type coerces to (string, int, float64, bool).
	Default any
	Enum    []string
}

// Func performs the operation. args has been validated and coerced, and
// every declared parameter is present (explicit or default).
type Func func(ctx context.Context, args Args) (string, error)

// Descriptor is one capability: a unique name, its schema and the function
// bound to it.
type Descriptor struct {
	Name        string
	Description string
	Params      []Param
	Invoke      Func
}

func (d Descriptor) validate() error {
	if d.Name == "" {
		return fmt.Errorf("capability name is empty")
	}
	if d.Invoke == nil {
		return fmt.Errorf("capability %s has no invoke function", d.Name)
	}
	seen := make(map[string]struct{}, len(d.Params))
	for _, p := range d.Params {
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("capability %s: parameter %s declared twice", d.Name, p.Name)
		}
		seen[p.Name] = struct{}{}
		switch p.Type {
		case String, Integer, Number, Boolean:
		default:
			return fmt.Errorf("capability %s: parameter %s has unsupported type %q", d.Name, p.Name, p.Type)
		}
	}
	return nil
}

// FailureKind classifies a failed invocation.
type FailureKind string

const (
	FailureUnknownCapability FailureKind = "unknown_capability"
	FailureInvalidArguments  FailureKind = "invalid_arguments"
	FailureExecution         FailureKind = "execution_failure"
)

// Failure describes why an invocation produced no payload.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Unwrap maps the kind back to its sentinel so callers can use errors.Is.
func (f *Failure) Unwrap() error {
	switch f.Kind {
	case FailureUnknownCapability:
		return ErrUnknownCapability
	case FailureInvalidArguments:
		return ErrInvalidArguments
	default:
		return ErrExecutionFailure
	}
}

// Result is the outcome of one invocation. Exactly one of Output or Failure
// is meaningful.
type Result struct {
	Capability string        `json:"capability"`
	Output     string        `json:"output,omitempty"`
	Failure    *Failure      `json:"failure,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// OK reports whether the invocation succeeded.
func (r Result) OK() bool {
	return r.Failure == nil
}

// Err returns the failure as an error, or nil.
func (r Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}

// Text renders the result for the model.
func (r Result) Text() string {
	if r.Failure != nil {
		return "ERROR (" + string(r.Failure.Kind) + "): " + r.Failure.Message
	}
	return r.Output
}
