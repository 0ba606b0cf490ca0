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

package prometheus

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tranductrinh/kube-medic/internal/capability"
)

// Query limits. They keep model-written PromQL from overloading Prometheus.
const (
	maxQueryLength   = 2000
	maxMatcherLength = 500
	maxRangeVectors  = 5
	maxSetOperations = 4
	maxNestingDepth  = 10
)

var (
	escapedDot   = regexp.MustCompile(`\\+\.`)
	setOperation = regexp.MustCompile(`(?i)\b(and|or|unless)\b`)
	relativeTime = regexp.MustCompile(`^(\d+)([smhdw])$`)
)

// sanitizeQuery undoes escaping models tend to add to metric names.
func sanitizeQuery(q string) string {
	return strings.TrimSpace(escapedDot.ReplaceAllString(q, "."))
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", capability.ErrInvalidArguments, fmt.Sprintf(format, args...))
}

// validateQuery rejects queries that are empty, oversized, unbalanced or
// likely to be expensive.
func validateQuery(q string) error {
	if q == "" {
		return invalid("query must not be empty")
	}
	if len(q) > maxQueryLength {
		return invalid("query exceeds maximum length (%d chars), got %d", maxQueryLength, len(q))
	}

	var (
		stack     []rune
		depth     int
		maxDepth  int
		ranges    int
		braceFrom = -1
	)
	closing := map[rune]rune{')': '(', ']': '[', '}': '{'}
	inString := rune(0)
	for i, ch := range q {
		if inString != 0 {
			if ch == inString && (i == 0 || q[i-1] != '\\') {
				inString = 0
			}
			continue
		}
		switch ch {
		case '"', '\'', '`':
			inString = ch
		case '(':
			depth++
			maxDepth = max(maxDepth, depth)
			stack = append(stack, ch)
		case '[', '{':
			if ch == '{' {
				braceFrom = i
			}
			stack = append(stack, ch)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != closing[ch] {
				return invalid("unbalanced %q at position %d", ch, i)
			}
			stack = stack[:len(stack)-1]
			switch ch {
			case ')':
				depth--
			case ']':
				ranges++
			case '}':
				if braceFrom >= 0 && i-braceFrom-1 > maxMatcherLength {
					return invalid("label matcher too long (>%d chars)", maxMatcherLength)
				}
				braceFrom = -1
			}
		}
	}
	if inString != 0 {
		return invalid("unterminated string literal")
	}
	if len(stack) > 0 {
		return invalid("unbalanced %q", stack[len(stack)-1])
	}
	if maxDepth > maxNestingDepth {
		return invalid("query too deeply nested (depth %d, max %d)", maxDepth, maxNestingDepth)
	}
	if ranges > maxRangeVectors {
		return invalid("too many range vectors (%d, max %d)", ranges, maxRangeVectors)
	}
	if ops := len(setOperation.FindAllString(stripStrings(q), -1)); ops > maxSetOperations {
		return invalid("too many set operations (%d, max %d)", ops, maxSetOperations)
	}
	return nil
}

// stripStrings blanks quoted label values so words inside them are not
// counted as operators.
func stripStrings(q string) string {
	var b strings.Builder
	inString := rune(0)
	for _, ch := range q {
		switch {
		case inString != 0:
			if ch == inString {
				inString = 0
			}
			b.WriteRune(' ')
		case ch == '"' || ch == '\'' || ch == '`':
			inString = ch
			b.WriteRune(' ')
		default:
			b.WriteRune(ch)
		}
	}
	return b.String()
}

// parseTime accepts "now", a relative offset into the past such as "30m",
// "2d" or "1w", an RFC 3339 timestamp, or Unix seconds.
func parseTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "now" {
		return now, nil
	}
	if d, ok := parseRelative(s); ok {
		return now.Add(-d), nil
	}
	if t, err := time.Parse(time.RFC3339, strings.ToUpper(s)); err == nil {
		return t, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Unix(0, int64(secs*float64(time.Second))), nil
	}
	return time.Time{}, invalid("unrecognized time %q (use now, 30m, 1h, 2d or RFC 3339)", s)
}

// parseStep accepts a Go duration, a relative unit such as "1d", or a bare
// number of seconds.
func parseStep(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second)), nil
	}
	if d, ok := parseRelative(s); ok && d > 0 {
		return d, nil
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d, nil
	}
	return 0, invalid("unrecognized step %q (use 15s, 1m, 5m or seconds)", s)
}

func parseRelative(s string) (time.Duration, bool) {
	m := relativeTime.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	unit := map[string]time.Duration{
		"s": time.Second,
		"m": time.Minute,
		"h": time.Hour,
		"d": 24 * time.Hour,
		"w": 7 * 24 * time.Hour,
	}[m[2]]
	return time.Duration(n) * unit, true
}
