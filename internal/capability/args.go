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
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Args holds coerced argument values keyed by parameter name.
type Args map[string]any

// String returns a string argument, or "" when absent.
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Int returns an integer argument, or 0 when absent.
func (a Args) Int(name string) int {
	n, _ := a[name].(int)
	return n
}

// Float returns a number argument, or 0 when absent.
func (a Args) Float(name string) float64 {
	f, _ := a[name].(float64)
	return f
}

// Bool returns a boolean argument, or false when absent.
func (a Args) Bool(name string) bool {
	b, _ := a[name].(bool)
	return b
}

// parseArgs decodes raw model arguments and coerces them against params.
// Names not declared in params are ignored.
func parseArgs(raw json.RawMessage, params []Param) (Args, error) {
	values := map[string]any{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&values); err != nil {
			return nil, fmt.Errorf("arguments must be a JSON object: %v", err)
		}
	}

	args := make(Args, len(params))
	var problems []string
	for _, p := range params {
		v, present := values[p.Name]
		if !present || v == nil {
			if p.Required {
				problems = append(problems, fmt.Sprintf("missing required parameter %q", p.Name))
				continue
			}
			if p.Default != nil {
				args[p.Name] = p.Default
			} else {
				args[p.Name] = zeroValue(p.Type)
			}
			continue
		}
		coerced, err := coerce(v, p.Type)
		if err != nil {
			problems = append(problems, fmt.Sprintf("parameter %q: %v", p.Name, err))
			continue
		}
		if s, ok := coerced.(string); ok {
			if p.Required && strings.TrimSpace(s) == "" {
				problems = append(problems, fmt.Sprintf("parameter %q must not be empty", p.Name))
				continue
			}
			if len(p.Enum) > 0 && !slices.Contains(p.Enum, s) {
				problems = append(problems, fmt.Sprintf("parameter %q must be one of %s", p.Name, strings.Join(p.Enum, ", ")))
				continue
			}
		}
		args[p.Name] = coerced
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return args, nil
}

func zeroValue(t ParamType) any {
	switch t {
	case Integer:
		return 0
	case Number:
		return 0.0
	case Boolean:
		return false
	default:
		return ""
	}
}

// coerce converts a decoded JSON value to the Go type for t. Models often
// quote numbers and booleans, so string forms are accepted.
func coerce(v any, t ParamType) (any, error) {
	switch t {
	case String:
		switch x := v.(type) {
		case string:
			return x, nil
		case json.Number:
			return x.String(), nil
		case bool:
			return strconv.FormatBool(x), nil
		}
	case Integer:
		var s string
		switch x := v.(type) {
		case json.Number:
			s = x.String()
		case string:
			s = strings.TrimSpace(x)
		default:
			return nil, fmt.Errorf("expected integer, got %T", v)
		}
		// Whole floats such as "50.0" are accepted. Both forms share one range.
		if n, err := strconv.Atoi(s); err == nil {
			if n > math.MaxInt32 || n < -math.MaxInt32 {
				return nil, fmt.Errorf("integer %q out of range", s)
			}
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != math.Trunc(f) {
			return nil, fmt.Errorf("expected integer, got %q", s)
		}
		if math.Abs(f) > math.MaxInt32 {
			return nil, fmt.Errorf("integer %q out of range", s)
		}
		return int(f), nil
	case Number:
		var s string
		switch x := v.(type) {
		case json.Number:
			s = x.String()
		case string:
			s = strings.TrimSpace(x)
		default:
			return nil, fmt.Errorf("expected number, got %T", v)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("expected finite number, got %q", s)
		}
		return f, nil
	case Boolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(x))
			if err != nil {
				return nil, fmt.Errorf("expected boolean, got %q", x)
			}
			return b, nil
		}
	}
	return nil, fmt.Errorf("expected %s, got %T", t, v)
}
