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

package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func newTestRegistry(t *testing.T, invoked *int, captured *Args) *Registry {
	t.Helper()
	r, err := NewRegistry(
		Descriptor{
			Name:        "get_pod_logs",
			Description: "Fetch pod logs",
			Params: []Param{
				{Name: "pod_name", Type: String, Required: true},
				{Name: "namespace", Type: String, Default: "default"},
				{Name: "tail_lines", Type: Integer, Default: 50},
				{Name: "previous", Type: Boolean},
			},
			Invoke: func(_ context.Context, args Args) (string, error) {
				*invoked++
				*captured = args
				return "log line", nil
			},
		},
		Descriptor{
			Name: "flaky",
			Invoke: func(context.Context, Args) (string, error) {
				return "", fmt.Errorf("pods \"x\" is forbidden")
			},
		},
		Descriptor{
			Name: "explodes",
			Invoke: func(context.Context, Args) (string, error) {
				var m map[string]int
				m["boom"]++ // nil map write
				return "", nil
			},
		},
		Descriptor{
			Name:   "http_check",
			Params: []Param{{Name: "method", Type: String, Default: "GET", Enum: []string{"GET", "HEAD"}}},
			Invoke: func(context.Context, Args) (string, error) {
				return "", fmt.Errorf("url scheme ftp: %w", ErrInvalidArguments)
			},
		},
	)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return r
}

func TestRegistry_Invoke(t *testing.T) {
	tests := []struct {
		name        string
		capability  string
		args        string
		wantKind    FailureKind
		wantInvoked int
		wantArgs    Args
	}{
		{
			name:        "defaults fill optional params",
			capability:  "get_pod_logs",
			args:        `{"pod_name":"web-1"}`,
			wantInvoked: 1,
			wantArgs:    Args{"pod_name": "web-1", "namespace": "default", "tail_lines": 50, "previous": false},
		},
		{
			name:        "quoted scalars are coerced",
			capability:  "get_pod_logs",
			args:        `{"pod_name":"web-1","tail_lines":"200","previous":"true","namespace":null}`,
			wantInvoked: 1,
			wantArgs:    Args{"pod_name": "web-1", "namespace": "default", "tail_lines": 200, "previous": true},
		},
		{
			name:        "integral float accepted for integer",
			capability:  "get_pod_logs",
			args:        `{"pod_name":"web-1","tail_lines":100.0}`,
			wantInvoked: 1,
			wantArgs:    Args{"pod_name": "web-1", "namespace": "default", "tail_lines": 100, "previous": false},
		},
		{
			name:        "undeclared args ignored",
			capability:  "get_pod_logs",
			args:        `{"pod_name":"web-1","verbose":true}`,
			wantInvoked: 1,
			wantArgs:    Args{"pod_name": "web-1", "namespace": "default", "tail_lines": 50, "previous": false},
		},
		{name: "unknown capability", capability: "delete_pod", args: `{}`, wantKind: FailureUnknownCapability},
		{name: "missing required", capability: "get_pod_logs", args: `{}`, wantKind: FailureInvalidArguments},
		{name: "empty required", capability: "get_pod_logs", args: `{"pod_name":"  "}`, wantKind: FailureInvalidArguments},
		{name: "uncoercible type", capability: "get_pod_logs", args: `{"pod_name":"x","tail_lines":"many"}`, wantKind: FailureInvalidArguments},
		{name: "fractional integer", capability: "get_pod_logs", args: `{"pod_name":"x","tail_lines":1.5}`, wantKind: FailureInvalidArguments},
		{name: "integer out of range", capability: "get_pod_logs", args: `{"pod_name":"x","tail_lines":"9999999999999"}`, wantKind: FailureInvalidArguments},
		{name: "whole float out of range", capability: "get_pod_logs", args: `{"pod_name":"x","tail_lines":9999999999999.0}`, wantKind: FailureInvalidArguments},
		{name: "not an object", capability: "get_pod_logs", args: `["web-1"]`, wantKind: FailureInvalidArguments},
		{name: "malformed json", capability: "get_pod_logs", args: `{"pod_name":`, wantKind: FailureInvalidArguments},
		{name: "enum violation", capability: "http_check", args: `{"method":"DELETE"}`, wantKind: FailureInvalidArguments},
		{name: "backend invalid arguments", capability: "http_check", args: `{}`, wantKind: FailureInvalidArguments},
		{name: "backend error", capability: "flaky", args: ``, wantKind: FailureExecution},
		{name: "backend panic", capability: "explodes", args: `null`, wantKind: FailureExecution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var invoked int
			var captured Args
			r := newTestRegistry(t, &invoked, &captured)

			res := r.Invoke(context.Background(), tt.capability, json.RawMessage(tt.args))

			if res.Capability != tt.capability {
				t.Errorf("Capability = %q, want %q", res.Capability, tt.capability)
			}
			if tt.wantKind == "" {
				if !res.OK() {
					t.Fatalf("Invoke() failure = %v, want success", res.Failure)
				}
				if diff := cmp.Diff(tt.wantArgs, captured); diff != "" {
					t.Errorf("args mismatch (-want +got):\n%s", diff)
				}
			} else {
				if res.OK() {
					t.Fatalf("Invoke() succeeded, want %s", tt.wantKind)
				}
				if res.Failure.Kind != tt.wantKind {
					t.Errorf("Failure.Kind = %s, want %s (%s)", res.Failure.Kind, tt.wantKind, res.Failure.Message)
				}
				if !strings.HasPrefix(res.Text(), "ERROR (") {
					t.Errorf("Text() = %q, want ERROR prefix", res.Text())
				}
			}
			if invoked != tt.wantInvoked {
				t.Errorf("backend invoked %d times, want %d", invoked, tt.wantInvoked)
			}
		})
	}
}

func TestCoerce_Numbers(t *testing.T) {
	tests := []struct {
		in      any
		typ     ParamType
		want    any
		wantErr bool
	}{
		{in: json.Number("2.5"), typ: Number, want: 2.5},
		{in: " 0.25 ", typ: Number, want: 0.25},
		{in: "NaN", typ: Number, wantErr: true},
		{in: "Inf", typ: Number, wantErr: true},
		{in: "-Infinity", typ: Number, wantErr: true},
		{in: json.Number("1e400"), typ: Number, wantErr: true},
		{in: json.Number("2147483647"), typ: Integer, want: 2147483647},
		{in: "-2147483647", typ: Integer, want: -2147483647},
		{in: "9999999999999", typ: Integer, wantErr: true},
		{in: "9999999999999.0", typ: Integer, wantErr: true},
		{in: "NaN", typ: Integer, wantErr: true},
	}
	for _, tt := range tests {
		got, err := coerce(tt.in, tt.typ)
		if tt.wantErr {
			if err == nil {
				t.Errorf("coerce(%v, %s) = %v, want error", tt.in, tt.typ, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("coerce(%v, %s) = %v, %v; want %v", tt.in, tt.typ, got, err, tt.want)
		}
	}
}

func TestFailure_Unwrap(t *testing.T) {
	tests := map[FailureKind]error{
		FailureUnknownCapability: ErrUnknownCapability,
		FailureInvalidArguments:  ErrInvalidArguments,
		FailureExecution:         ErrExecutionFailure,
	}
	for kind, want := range tests {
		res := Result{Failure: &Failure{Kind: kind, Message: "x"}}
		if !errors.Is(res.Err(), want) {
			t.Errorf("errors.Is(%s, %v) = false", kind, want)
		}
	}
	if (Result{Output: "ok"}).Err() != nil {
		t.Error("Err() on success should be nil")
	}
}

func TestNewRegistry_Validation(t *testing.T) {
	noop := func(context.Context, Args) (string, error) { return "", nil }

	tests := []struct {
		name  string
		descs []Descriptor
		isDup bool
	}{
		{name: "duplicate name", descs: []Descriptor{{Name: "a", Invoke: noop}, {Name: "a", Invoke: noop}}, isDup: true},
		{name: "empty name", descs: []Descriptor{{Invoke: noop}}},
		{name: "nil invoke", descs: []Descriptor{{Name: "a"}}},
		{name: "bad param type", descs: []Descriptor{{Name: "a", Invoke: noop, Params: []Param{{Name: "x", Type: "object"}}}}},
		{name: "duplicate param", descs: []Descriptor{{Name: "a", Invoke: noop, Params: []Param{{Name: "x", Type: String}, {Name: "x", Type: String}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.descs...)
			if err == nil {
				t.Fatal("NewRegistry() error = nil, want error")
			}
			if tt.isDup != errors.Is(err, ErrDuplicateCapability) {
				t.Errorf("errors.Is(err, ErrDuplicateCapability) = %v, want %v", !tt.isDup, tt.isDup)
			}
		})
	}
}

func TestRegistry_Defs(t *testing.T) {
	var invoked int
	var captured Args
	r := newTestRegistry(t, &invoked, &captured)

	defs := r.Defs()
	if len(defs) != r.Len() {
		t.Fatalf("Defs() len = %d, want %d", len(defs), r.Len())
	}
	if defs[0].Name != "get_pod_logs" {
		t.Errorf("Defs()[0].Name = %q, want registration order", defs[0].Name)
	}
	p := defs[0].Params[1]
	if p.Name != "namespace" || !strings.Contains(p.Description, "default: default") {
		t.Errorf("namespace param = %+v, want default in description", p)
	}
	if !defs[0].Params[0].Required {
		t.Error("pod_name should be required")
	}
	if got := defs[3].Params[0].Enum; len(got) != 2 {
		t.Errorf("enum = %v, want 2 values", got)
	}
}

func counterValue(t *testing.T, capability, result string) float64 {
	t.Helper()
	counter, err := invocationsTotal.GetMetricWith(prometheus.Labels{"capability": capability, "result": result})
	if err != nil {
		t.Fatalf("failed to get metric: %v", err)
	}
	var m dto.Metric
	if err := counter.Write(&m); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestRegistry_InvocationMetrics(t *testing.T) {
	var invoked int
	var captured Args
	r := newTestRegistry(t, &invoked, &captured)
	ctx := context.Background()

	tests := []struct {
		call       string
		capability string
		result     string
	}{
		{call: "get_pod_logs", capability: "get_pod_logs", result: "success"},
		{call: "flaky", capability: "flaky", result: string(FailureExecution)},
		{call: "no_such_tool", capability: "unknown", result: string(FailureUnknownCapability)},
	}
	for _, tt := range tests {
		t.Run(tt.call, func(t *testing.T) {
			before := counterValue(t, tt.capability, tt.result)
			r.Invoke(ctx, tt.call, json.RawMessage(`{"pod_name":"api-0"}`))
			if delta := counterValue(t, tt.capability, tt.result) - before; delta != 1 {
				t.Errorf("counter %s/%s moved by %v, want 1", tt.capability, tt.result, delta)
			}
		})
	}
}

