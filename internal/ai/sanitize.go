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

package ai

import (
	"regexp"
)

// SensitivePatterns match credentials that can show up in logs, events and
// HTTP headers returned by diagnostic tools. Pod IPs and hostnames are left
// intact since they are needed for troubleshooting.
var SensitivePatterns = []*regexp.Regexp{
	// API keys and tokens
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|token|secret|password|passwd|pwd)\s*[=:]\s*[^\s,;"']+`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9\-_.=]+`),

	// AWS credentials
	regexp.MustCompile(`(?i)aws[_-]?(access[_-]?key|secret|session)[_-]?(id|key|token)?\s*[=:]\s*[^\s]+`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),

	// Certificate/key content
	regexp.MustCompile(`-----BEGIN [A-Z ]+-----[\s\S]*?-----END [A-Z ]+-----`),

	// Connection strings with credentials
	regexp.MustCompile(`(?i)(mongodb|postgres|postgresql|mysql|redis|amqp)://[^\s]+`),

	// JWT tokens
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`),
}

// RedactionPlaceholder is used to replace sensitive data
const RedactionPlaceholder = "[REDACTED]"

// Sanitizer removes sensitive data from text before it is shown to a model.
type Sanitizer struct {
	patterns []*regexp.Regexp
}

// NewSanitizer creates a new sanitizer with default patterns
func NewSanitizer() *Sanitizer {
	return &Sanitizer{patterns: append([]*regexp.Regexp(nil), SensitivePatterns...)}
}

// AddPattern adds a custom pattern to the sanitizer
func (s *Sanitizer) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.patterns = append(s.patterns, re)
	return nil
}

// SanitizeString removes sensitive data from a string
func (s *Sanitizer) SanitizeString(input string) string {
	if s == nil {
		return input
	}
	result := input
	for _, pattern := range s.patterns {
		result = pattern.ReplaceAllString(result, RedactionPlaceholder)
	}
	return result
}
