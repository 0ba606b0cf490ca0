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
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/tranductrinh/kube-medic/internal/ai"
)

var log = logf.Log.WithName("capability")

var invocationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "kubemedic_capability_invocations_total",
	Help: "Total capability invocations by result",
}, []string{"capability", "result"})

func init() {
	metrics.Registry.MustRegister(invocationsTotal)
}

// Registry is the fixed set of capabilities one agent may call. It is built
// at startup and read-only afterwards, so it is safe for concurrent use.
type Registry struct {
	order  []string
	byName map[string]Descriptor
}

// NewRegistry validates the descriptors and builds a registry. Names must be
// unique.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{byName: make(map[string]Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if err := d.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCapability, d.Name)
		}
		r.byName[d.Name] = d
		r.order = append(r.order, d.Name)
	}
	return r, nil
}

// MustNewRegistry is NewRegistry that panics on error, for static wiring.
func MustNewRegistry(descriptors ...Descriptor) *Registry {
	r, err := NewRegistry(descriptors...)
	if err != nil {
		panic(err)
	}
	return r
}

// Names returns capability names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of capabilities.
func (r *Registry) Len() int {
	return len(r.order)
}

// Lookup returns the descriptor for name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Defs returns the tool definitions handed to the model.
func (r *Registry) Defs() []ai.ToolDef {
	defs := make([]ai.ToolDef, 0, len(r.order))
	for _, name := range r.order {
		d := r.byName[name]
		params := make([]ai.ToolParam, 0, len(d.Params))
		for _, p := range d.Params {
			desc := p.Description
			if p.Default != nil && p.Default != "" {
				desc = fmt.Sprintf("%s (default: %v)", desc, p.Default)
			}
			params = append(params, ai.ToolParam{
				Name:        p.Name,
				Type:        string(p.Type),
				Description: desc,
				Required:    p.Required,
				Enum:        p.Enum,
			})
		}
		defs = append(defs, ai.ToolDef{Name: d.Name, Description: d.Description, Params: params})
	}
	return defs
}

// Invoke validates and runs one capability. It never returns an error or
// panics: every failure is described in the Result.
func (r *Registry) Invoke(ctx context.Context, name string, raw json.RawMessage) Result {
	start := time.Now()
	res := r.invoke(ctx, name, raw)
	res.Capability = name
	res.Duration = time.Since(start)

	outcome := "success"
	if res.Failure != nil {
		outcome = string(res.Failure.Kind)
	}
	if _, known := r.byName[name]; known {
		invocationsTotal.WithLabelValues(name, outcome).Inc()
	} else {
		invocationsTotal.WithLabelValues("unknown", outcome).Inc()
	}
	return res
}

func (r *Registry) invoke(ctx context.Context, name string, raw json.RawMessage) (res Result) {
	d, ok := r.byName[name]
	if !ok {
		return Result{Failure: &Failure{
			Kind:    FailureUnknownCapability,
			Message: fmt.Sprintf("no capability named %q; available: %v", name, r.order),
		}}
	}

	args, err := parseArgs(raw, d.Params)
	if err != nil {
		return Result{Failure: &Failure{Kind: FailureInvalidArguments, Message: err.Error()}}
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error(fmt.Errorf("panic: %v", p), "Capability panicked", "capability", name, "stack", string(debug.Stack()))
			res = Result{Failure: &Failure{Kind: FailureExecution, Message: fmt.Sprintf("internal error: %v", p)}}
		}
	}()

	out, err := d.Invoke(ctx, args)
	if err != nil {
		kind := FailureExecution
		if errors.Is(err, ErrInvalidArguments) {
			kind = FailureInvalidArguments
		}
		logf.FromContext(ctx).V(1).Info("Capability failed", "capability", name, "kind", kind, "error", err.Error())
		return Result{Failure: &Failure{Kind: kind, Message: err.Error()}}
	}
	return Result{Output: out}
}
