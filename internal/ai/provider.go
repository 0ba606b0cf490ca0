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

// Package ai provides the language model providers used by the
// troubleshooting agents.
package ai

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured is returned when AI provider is not configured
var ErrNotConfigured = errors.New("AI provider not configured")

// Provider names accepted by NewProvider.
const (
	ProviderNameOpenAI    = "openai"
	ProviderNameAzure     = "azure"
	ProviderNameAnthropic = "anthropic"
	ProviderNameGemini    = "gemini"
	ProviderNameNoop      = "noop"
)

// Provider is a chat completion backend with function calling.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai", "anthropic", "noop")
	Name() string

	// Complete sends the conversation and the callable tools to the model.
	// The response holds either final text or one or more tool calls.
	Complete(ctx context.Context, request Request) (*Response, error)

	// Available returns true if the provider is properly configured and ready
	Available() bool
}

// Request is a single completion call.
type Request struct {
	// System is the system prompt for the call.
	System string

	// Messages is the ordered conversation so far.
	Messages []Message

	// Tools are the functions the model may call. Empty means text only.
	Tools []ToolDef

	// MaxTokens overrides the provider default when > 0.
	MaxTokens int
}

// Response is the model's reply to a Request.
type Response struct {
	// Content is the assistant text. May be set alongside ToolCalls.
	Content string

	// ToolCalls are the invocations the model requested, in order.
	ToolCalls []ToolCall

	// TokensUsed tracks token consumption (if available)
	TokensUsed int
}

// HasToolCalls reports whether the model asked for tool execution.
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// Config holds AI provider configuration
type Config struct {
	// Provider is the AI provider to use ("openai", "azure", "anthropic", "gemini", "noop")
	Provider string `json:"provider" yaml:"provider"`

	// APIKey is the API key for the provider. A "$NAME" value is read from
	// the NAME environment variable.
	APIKey string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`

	// Endpoint is an optional custom API endpoint. Required for azure.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// Model is the model to use. For azure this is the deployment name.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// AzureAPIVersion is the Azure OpenAI REST API version.
	AzureAPIVersion string `json:"azureAPIVersion,omitempty" yaml:"azureAPIVersion,omitempty"`

	// MaxTokens is the maximum tokens for responses
	MaxTokens int `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`

	// Temperature is the sampling temperature.
	Temperature float32 `json:"temperature" yaml:"temperature"`

	// Timeout bounds a single completion call.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// DailyTokenLimit caps token usage per 24h. 0 disables the cap.
	DailyTokenLimit int `json:"dailyTokenLimit,omitempty" yaml:"dailyTokenLimit,omitempty"`
}

// DefaultConfig returns a default configuration with NoOp provider
func DefaultConfig() Config {
	return Config{
		Provider:        ProviderNameNoop,
		AzureAPIVersion: "2024-08-01-preview",
		MaxTokens:       2048,
		Timeout:         90 * time.Second,
	}
}

var defaultModels = map[string]string{
	ProviderNameOpenAI:    "gpt-4o",
	ProviderNameAnthropic: "claude-sonnet-4-5",
	ProviderNameGemini:    "gemini-2.5-flash",
}

// DefaultModel returns the model used when Config.Model is empty.
func DefaultModel(provider string) string {
	return defaultModels[provider]
}
