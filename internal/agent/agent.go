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

// Package agent runs a specialist: a bounded loop that alternates between
// asking the model what to do and invoking the capabilities it requests.
package agent

import (
	"errors"

	"github.com/tranductrinh/kube-medic/internal/capability"
	"github.com/tranductrinh/kube-medic/internal/memory"
)

// DefaultMaxIterations bounds the think steps of one run when no explicit
// bound is configured.
const DefaultMaxIterations = 10

// maxParallelInvocations caps concurrent capability calls in one think step.
const maxParallelInvocations = 8

// ErrIterationBoundExceeded is reported when a run is aborted because the
// model kept requesting capabilities past the iteration bound.
var ErrIterationBoundExceeded = errors.New("iteration bound exceeded")

// State is a position in the loop's state machine.
type State string

const (
	StateAwaitingModel  State = "AWAITING_MODEL"
	StateExecutingTools State = "EXECUTING_TOOLS"
	StateDone           State = "DONE"
	StateAborted        State = "ABORTED"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// Agent is a statically configured specialist. Description is what the
// supervisor reads when deciding whether the agent fits a question.
type Agent struct {
	Name         string
	Description  string
	SystemPrompt string
	Capabilities *capability.Registry
}

// Outcome is the result of one run.
type Outcome struct {
	Agent string `json:"agent"`
	State State  `json:"state"`
	// Answer is the final answer on DONE, or a best-effort partial answer
	// that says the investigation was inconclusive on ABORTED.
	Answer string `json:"answer"`
	// Turns are the turns this run produced, starting with the routed
	// request, in order.
	Turns      []memory.Turn `json:"turns"`
	Iterations int           `json:"iterations"`
	TokensUsed int           `json:"tokensUsed"`
	// Invocations lists every capability result observed by the model.
	Invocations []capability.Result `json:"invocations,omitempty"`
	// Trace is the sequence of states visited.
	Trace []State `json:"trace"`
	// Err is set on ABORTED.
	Err error `json:"-"`
}

// Inconclusive reports whether the run ended without a final answer.
func (o Outcome) Inconclusive() bool {
	return o.State != StateDone
}

// FailedInvocations counts capability calls that returned a failure.
func (o Outcome) FailedInvocations() int {
	n := 0
	for _, r := range o.Invocations {
		if !r.OK() {
			n++
		}
	}
	return n
}
