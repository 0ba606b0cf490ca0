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

// Package specialists holds the static configuration of the specialist
// agents: their names, routing descriptions, prompts and capabilities.
package specialists

import (
	"errors"
	"fmt"

	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/tranductrinh/kube-medic/internal/agent"
	"github.com/tranductrinh/kube-medic/internal/capability"
	"github.com/tranductrinh/kube-medic/internal/tools/email"
)

var log = logf.Log.WithName("specialists")

// Agent names. They also form the supervisor routing tool names.
const (
	Kubernetes = "kubernetes"
	Prometheus = "prometheus"
	Network    = "network"
	Email      = "email"
)

// CapabilitySource is a backend that exposes capability descriptors.
type CapabilitySource interface {
	Capabilities() []capability.Descriptor
}

// Backends are the collaborators behind each specialist. A nil backend
// leaves its specialist out.
type Backends struct {
	Kubernetes CapabilitySource
	Prometheus CapabilitySource
	Network    CapabilitySource
	Email      email.ReportSender
}

type definition struct {
	name        string
	description string
	prompt      string
	descriptors func(Backends) []capability.Descriptor
}

var definitions = []definition{
	{
		name:        Kubernetes,
		description: "Kubernetes resources: pods, deployments, services, ingresses, nodes, events, logs, configmaps and secret names.",
		prompt:      kubernetesPrompt,
		descriptors: func(b Backends) []capability.Descriptor {
			if b.Kubernetes == nil {
				return nil
			}
			return b.Kubernetes.Capabilities()
		},
	},
	{
		name:        Prometheus,
		description: "Metrics from Prometheus: CPU and memory usage, error rates, latency, restarts over time, custom PromQL.",
		prompt:      prometheusPrompt,
		descriptors: func(b Backends) []capability.Descriptor {
			if b.Prometheus == nil {
				return nil
			}
			return b.Prometheus.Capabilities()
		},
	},
	{
		name:        Network,
		description: "HTTP reachability of endpoints: status codes, TLS certificates, redirects and response times.",
		prompt:      networkPrompt,
		descriptors: func(b Backends) []capability.Descriptor {
			if b.Network == nil {
				return nil
			}
			return b.Network.Capabilities()
		},
	},
	{
		name:        Email,
		description: "Sends a formatted investigation report by email. Use only when the user or alert explicitly asks for an email.",
		prompt:      emailPrompt,
		descriptors: func(b Backends) []capability.Descriptor {
			if b.Email == nil {
				return nil
			}
			return email.Capabilities(b.Email)
		},
	},
}

// Build returns the configured specialists in routing order. Specialists
// without a backend are skipped; at least one must remain.
func Build(b Backends) ([]agent.Agent, error) {
	var agents []agent.Agent
	for _, d := range definitions {
		descriptors := d.descriptors(b)
		if len(descriptors) == 0 {
			log.Info("Specialist disabled", "agent", d.name)
			continue
		}
		reg, err := capability.NewRegistry(descriptors...)
		if err != nil {
			return nil, fmt.Errorf("specialist %s: %w", d.name, err)
		}
		agents = append(agents, agent.Agent{
			Name:         d.name,
			Description:  d.description,
			SystemPrompt: d.prompt,
			Capabilities: reg,
		})
		log.Info("Specialist configured", "agent", d.name, "capabilities", reg.Len())
	}
	if len(agents) == 0 {
		return nil, errors.New("no specialist has a configured backend")
	}
	return agents, nil
}

// Loops wraps each agent with newLoop, keeping order.
func Loops(agents []agent.Agent, newLoop func(agent.Agent) *agent.Loop) []*agent.Loop {
	loops := make([]*agent.Loop, 0, len(agents))
	for _, a := range agents {
		loops = append(loops, newLoop(a))
	}
	return loops
}
