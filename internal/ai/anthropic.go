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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	defaultAnthropicEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion      = "2023-06-01"
)

// AnthropicProvider implements the Provider interface for the Anthropic
// Messages API.
type AnthropicProvider struct {
	apiKey    string
	endpoint  string
	model     string
	maxTokens int
	client    *http.Client
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(config Config) *AnthropicProvider {
	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = defaultAnthropicEndpoint
	}

	model := config.Model
	if model == "" {
		model = DefaultModel(ProviderNameAnthropic)
	}

	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	return &AnthropicProvider{
		apiKey:    config.APIKey,
		endpoint:  endpoint,
		model:     model,
		maxTokens: maxTokens,
		client:    &http.Client{Timeout: config.Timeout},
	}
}

// Name returns the provider identifier
func (p *AnthropicProvider) Name() string {
	return ProviderNameAnthropic
}

// Available returns true if API key is configured
func (p *AnthropicProvider) Available() bool {
	return p.apiKey != ""
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends the conversation to the Messages API with tool use enabled.
func (p *AnthropicProvider) Complete(ctx context.Context, request Request) (*Response, error) {
	if !p.Available() {
		return nil, ErrNotConfigured
	}

	maxTokens := p.maxTokens
	if request.MaxTokens > 0 {
		maxTokens = request.MaxTokens
	}

	tools := make([]anthropicTool, 0, len(request.Tools))
	for _, t := range request.Tools {
		tools = append(tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Schema(),
		})
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     p.model,
		MaxTokens: maxTokens,
		System:    request.System,
		Messages:  buildAnthropicMessages(request.Messages),
		Tools:     tools,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	var anthResp anthropicResponse
	if err := json.Unmarshal(respBody, &anthResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if anthResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", anthResp.Error.Message)
	}

	out := &Response{TokensUsed: anthResp.Usage.InputTokens + anthResp.Usage.OutputTokens}
	for _, block := range anthResp.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			args := block.Input
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Args: args})
		}
	}
	return out, nil
}

// buildAnthropicMessages converts Message history into Anthropic API
// messages. Tool results become "tool_result" blocks inside a "user" message,
// and consecutive results are merged to keep roles alternating.
func buildAnthropicMessages(messages []Message) []anthropicMessage {
	var result []anthropicMessage

	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			content, _ := json.Marshal(m.Content)
			result = append(result, anthropicMessage{Role: RoleUser, Content: content})

		case RoleAssistant:
			var blocks []anthropicContentBlock
			if m.Content != "" {
				blocks = append(blocks, anthropicContentBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropicContentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: tc.Args,
				})
			}
			if len(blocks) == 0 {
				continue
			}
			blockJSON, _ := json.Marshal(blocks)
			result = append(result, anthropicMessage{Role: RoleAssistant, Content: blockJSON})

		case RoleTool:
			newBlock := anthropicContentBlock{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   m.Content,
			}
			if n := len(result); n > 0 && result[n-1].Role == RoleUser {
				var existing []anthropicContentBlock
				if err := json.Unmarshal(result[n-1].Content, &existing); err == nil {
					existing = append(existing, newBlock)
					blockJSON, _ := json.Marshal(existing)
					result[n-1].Content = blockJSON
					continue
				}
			}
			blockJSON, _ := json.Marshal([]anthropicContentBlock{newBlock})
			result = append(result, anthropicMessage{Role: RoleUser, Content: blockJSON})
		}
	}

	return result
}
