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
	"encoding/json"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements Provider for OpenAI and Azure OpenAI chat
// completions.
type OpenAIProvider struct {
	name        string
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	configured  bool
}

// NewOpenAIProvider creates a provider for api.openai.com or a compatible
// endpoint.
func NewOpenAIProvider(config Config) *OpenAIProvider {
	cfg := openai.DefaultConfig(config.APIKey)
	if config.Endpoint != "" {
		cfg.BaseURL = config.Endpoint
	}
	cfg.HTTPClient = &http.Client{Timeout: config.Timeout}

	model := config.Model
	if model == "" {
		model = DefaultModel(ProviderNameOpenAI)
	}
	return &OpenAIProvider{
		name:        ProviderNameOpenAI,
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
		configured:  config.APIKey != "",
	}
}

// NewAzureOpenAIProvider creates a provider for an Azure OpenAI deployment.
// Config.Model names the deployment.
func NewAzureOpenAIProvider(config Config) *OpenAIProvider {
	cfg := openai.DefaultAzureConfig(config.APIKey, config.Endpoint)
	if config.AzureAPIVersion != "" {
		cfg.APIVersion = config.AzureAPIVersion
	}
	deployment := config.Model
	cfg.AzureModelMapperFunc = func(string) string { return deployment }
	cfg.HTTPClient = &http.Client{Timeout: config.Timeout}

	return &OpenAIProvider{
		name:        ProviderNameAzure,
		client:      openai.NewClientWithConfig(cfg),
		model:       deployment,
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
		configured:  config.APIKey != "" && config.Endpoint != "" && deployment != "",
	}
}

// Name returns the provider identifier
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Available returns true if the API key (and for Azure, endpoint and
// deployment) is configured.
func (p *OpenAIProvider) Available() bool {
	return p.configured
}

// Complete sends one chat completion request with function calling.
func (p *OpenAIProvider) Complete(ctx context.Context, request Request) (*Response, error) {
	if !p.Available() {
		return nil, ErrNotConfigured
	}

	maxTokens := p.maxTokens
	if request.MaxTokens > 0 {
		maxTokens = request.MaxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    buildOpenAIMessages(request.System, request.Messages),
		Tools:       buildOpenAITools(request.Tools),
		MaxTokens:   maxTokens,
		Temperature: p.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("%s chat completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	msg := resp.Choices[0].Message
	out := &Response{
		Content:    msg.Content,
		TokensUsed: resp.Usage.TotalTokens,
	}
	for _, tc := range msg.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return out, nil
}

func buildOpenAIMessages(system string, messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Args),
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func buildOpenAITools(tools []ToolDef) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema(),
			},
		})
	}
	return out
}
