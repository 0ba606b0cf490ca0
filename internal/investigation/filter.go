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

package investigation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
)

const (
	filterCostLimit   = 1_000_000
	filterEvalTimeout = time.Second
)

// AlertFilter is a compiled CEL expression deciding which alerts are worth
// investigating. The expression sees labels, annotations and status, e.g.
//
//	labels.severity in ["critical", "warning"] && status == "firing"
type AlertFilter struct {
	expr    string
	program cel.Program
}

// NewAlertFilter compiles expr. The expression must evaluate to a bool.
func NewAlertFilter(expr string) (*AlertFilter, error) {
	env, err := cel.NewEnv(
		cel.Variable("labels", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("annotations", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("status", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("alert filter compilation error: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("alert filter must return bool, got %s", ast.OutputType())
	}

	prg, err := env.Program(ast, cel.CostLimit(filterCostLimit))
	if err != nil {
		return nil, fmt.Errorf("alert filter program creation error: %w", err)
	}
	return &AlertFilter{expr: expr, program: prg}, nil
}

// String returns the source expression.
func (f *AlertFilter) String() string { return f.expr }

// Match reports whether the alert passes the filter.
func (f *AlertFilter) Match(ctx context.Context, a Alert) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, filterEvalTimeout)
	defer cancel()

	out, _, err := f.program.ContextEval(ctx, map[string]any{
		"labels":      a.Labels,
		"annotations": a.Annotations,
		"status":      a.Status,
	})
	if err != nil {
		return false, fmt.Errorf("alert filter evaluation error: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("alert filter did not return bool, got %T", out.Value())
	}
	return val, nil
}
