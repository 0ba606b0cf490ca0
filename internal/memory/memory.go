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

// Package memory stores conversation turns per thread with bounded
// retention.
package memory

import (
	"context"
	"time"

	"github.com/tranductrinh/kube-medic/internal/ai"
)

// Turn is one immutable entry of a thread.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// ToolCallID and ToolName reference the capability invocation a tool
	// turn answers.
	ToolCallID string `json:"toolCallId,omitempty"`
	ToolName   string `json:"toolName,omitempty"`
	// ToolCalls are the invocations an assistant turn requested.
	ToolCalls []ai.ToolCall `json:"toolCalls,omitempty"`
	// Agent is the specialist that produced the turn, if any.
	Agent     string    `json:"agent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserTurn builds a user turn stamped now.
func UserTurn(content string) Turn {
	return Turn{Role: ai.RoleUser, Content: content, CreatedAt: time.Now()}
}

// AssistantTurn builds an assistant turn stamped now.
func AssistantTurn(content string) Turn {
	return Turn{Role: ai.RoleAssistant, Content: content, CreatedAt: time.Now()}
}

// Message converts the turn to a model message.
func (t Turn) Message() ai.Message {
	return ai.Message{
		Role:       t.Role,
		Content:    t.Content,
		ToolCallID: t.ToolCallID,
		ToolName:   t.ToolName,
		ToolCalls:  t.ToolCalls,
	}
}

// FromMessage converts a model message to a turn stamped now.
func FromMessage(m ai.Message, agent string) Turn {
	return Turn{
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
		ToolName:   m.ToolName,
		ToolCalls:  m.ToolCalls,
		Agent:      agent,
		CreatedAt:  time.Now(),
	}
}

// Messages converts turns to model messages.
func Messages(turns []Turn) []ai.Message {
	out := make([]ai.Message, len(turns))
	for i, t := range turns {
		out[i] = t.Message()
	}
	return out
}

// Store holds the turns of each thread. An empty thread id is stateless:
// Turns returns nothing and Append is a no-op.
type Store interface {
	// Turns returns the retained turns of a thread, oldest first.
	Turns(ctx context.Context, threadID string) ([]Turn, error)
	// Append adds turns to the end of a thread in the given order, then
	// applies the retention policy.
	Append(ctx context.Context, threadID string, turns ...Turn) error
}

// Retention bounds what a thread keeps. Stores always cap the turn count;
// a zero MaxAge disables the age bound.
type Retention struct {
	MaxTurns int           `json:"maxTurns" yaml:"maxTurns"`
	MaxAge   time.Duration `json:"maxAge" yaml:"maxAge"`
}

// DefaultRetention keeps the last 50 turns of the last 24 hours.
func DefaultRetention() Retention {
	return Retention{MaxTurns: 50, MaxAge: 24 * time.Hour}
}

// Stats summarizes a store.
type Stats struct {
	Backend string `json:"backend"`
	Threads int    `json:"threads"`
	Turns   int    `json:"turns"`
}
