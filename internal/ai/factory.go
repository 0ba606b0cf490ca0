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
	"fmt"
	"os"
	"strings"
)

// NewProvider creates a provider based on the configuration
func NewProvider(ctx context.Context, config Config) (Provider, error) {
	resolved := config
	resolved.APIKey = resolveAPIKey(config.APIKey)

	switch strings.ToLower(config.Provider) {
	case ProviderNameOpenAI:
		return NewOpenAIProvider(resolved), nil
	case ProviderNameAzure:
		if resolved.Endpoint == "" || resolved.Model == "" {
			return nil, fmt.Errorf("azure provider requires endpoint and model (deployment)")
		}
		return NewAzureOpenAIProvider(resolved), nil
	case ProviderNameAnthropic:
		return NewAnthropicProvider(resolved), nil
	case ProviderNameGemini:
		return NewGeminiProvider(ctx, resolved)
	case ProviderNameNoop, "":
		return NewNoOpProvider(), nil
	default:
		return nil, fmt.Errorf("unknown AI provider: %s", config.Provider)
	}
}

// resolveAPIKey reads the key from the environment when it looks like an
// env var reference ("$NAME").
func resolveAPIKey(apiKey string) string {
	if name, ok := strings.CutPrefix(apiKey, "$"); ok {
		return os.Getenv(name)
	}
	return apiKey
}
