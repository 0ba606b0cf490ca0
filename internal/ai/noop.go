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
	"context"
)

// NoOpAnswer is the text returned by NoOpProvider.
const NoOpAnswer = "[NoOp AI] No language model is configured, so no investigation was performed. " +
	"Set an AI provider to enable troubleshooting."

// NoOpProvider is a provider that never calls tools and answers with a
// fixed notice.
type NoOpProvider struct{}

// NewNoOpProvider creates a new NoOp provider
func NewNoOpProvider() *NoOpProvider {
	return &NoOpProvider{}
}

// Name returns the provider identifier
func (p *NoOpProvider) Name() string {
	return ProviderNameNoop
}

// Available always returns true for NoOp
func (p *NoOpProvider) Available() bool {
	return true
}

// Complete returns NoOpAnswer without tool calls.
func (p *NoOpProvider) Complete(_ context.Context, _ Request) (*Response, error) {
	return &Response{Content: NoOpAnswer}, nil
}
