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

package supervisor

import (
	"fmt"
	"strings"

	"github.com/tranductrinh/kube-medic/internal/agent"
)

// routeToolPrefix names the routing tools, one per specialist.
const routeToolPrefix = "ask_"

const routerPromptHeader = `You are a Kubernetes troubleshooting supervisor. Your job is to find the ROOT CAUSE efficiently.

You delegate to specialist experts by calling their tools. Each call runs one expert with the request you pass.
Rules:
- Make ONE comprehensive request per expert; ask for everything you need at once.
- Call several experts in one response when the question spans their areas. They run in the order you call them, and later experts see what earlier ones found.
- "Running" status does NOT mean healthy; ask for logs and events too.
- If the conversation already contains the answer, or the question needs no cluster data, answer directly without calling any tool.

Available experts:
`

const composePrompt = `You are a Kubernetes troubleshooting supervisor. Several specialists investigated the user's question.
Combine their findings into one answer using this format:
- Summary: concise overview of the issue
- Root cause: concise explanation
- Evidence: what was checked and found
- Fix: specific kubectl commands (never auto-execute) or other steps
Say clearly when a specialist's investigation was inconclusive.`

const directPrompt = `You are a Kubernetes troubleshooting supervisor. Answer the user's question from the conversation so far.
If the conversation does not contain enough information, say what should be checked next.`

func routeToolName(agentName string) string {
	return routeToolPrefix + agentName
}

func routerPrompt(agents []agent.Agent) string {
	var b strings.Builder
	b.WriteString(routerPromptHeader)
	for _, a := range agents {
		fmt.Fprintf(&b, "- %s: %s\n", routeToolName(a.Name), a.Description)
	}
	return b.String()
}

func composeRequest(question string, outcomes []agent.Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	for i, o := range outcomes {
		status := "completed"
		if o.Inconclusive() {
			status = "inconclusive"
		}
		fmt.Fprintf(&b, "Specialist %d (%s, %s):\n%s\n\n", i+1, o.Agent, status, o.Answer)
	}
	return b.String()
}

// findingsSection lists each specialist's answer in run order. It is
// appended to composed answers so no finding is lost in the summary.
func findingsSection(outcomes []agent.Outcome) string {
	var b strings.Builder
	b.WriteString("Findings by specialist:")
	for _, o := range outcomes {
		fmt.Fprintf(&b, "\n\n[%s]", o.Agent)
		if o.Inconclusive() {
			b.WriteString(" (inconclusive)")
		}
		fmt.Fprintf(&b, "\n%s", strings.TrimSpace(o.Answer))
	}
	return b.String()
}
