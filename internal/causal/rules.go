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

package causal

import (
	"fmt"
	"strings"
)

// Rule pairs alert kinds that together point at one cause. Match tags an
// event; the rule fires in a namespace once every required tag is seen.
type Rule struct {
	Name         string
	Match        func(Event) (tag string, ok bool)
	RequiredTags []string

	// RootCause is a format string taking the namespace.
	RootCause  string
	Confidence float64
}

// DefaultRules returns the built-in alert pairings.
func DefaultRules() []Rule {
	return []Rule{
		oomQuotaRule(),
		crashImagePullRule(),
		pvcPendingRule(),
		nodePressureRule(),
	}
}

// signal is the upper-cased alertname plus reason, for substring checks.
func signal(e Event) string {
	return strings.ToUpper(e.Alert + " " + e.Reason)
}

func oomQuotaRule() Rule {
	return Rule{
		Name:         "oom-quota",
		RequiredTags: []string{"oom", "quota"},
		RootCause:    "OOM kills in namespace %s are likely caused by resource quota pressure",
		Confidence:   0.85,
		Match: func(e Event) (string, bool) {
			s := signal(e)
			switch {
			case strings.Contains(s, "OOM"):
				return "oom", true
			case strings.Contains(s, "QUOTA"):
				return "quota", true
			}
			return "", false
		},
	}
}

func crashImagePullRule() Rule {
	return Rule{
		Name:         "crash-imagepull",
		RequiredTags: []string{"crash", "imagepull"},
		RootCause:    "Crash loops in namespace %s may come from image pull failures after a bad image reference",
		Confidence:   0.8,
		Match: func(e Event) (string, bool) {
			s := signal(e)
			switch {
			case strings.Contains(s, "IMAGEPULL"), strings.Contains(s, "ERRIMAGE"):
				return "imagepull", true
			case strings.Contains(s, "CRASHLOOP"):
				return "crash", true
			}
			return "", false
		},
	}
}

func pvcPendingRule() Rule {
	return Rule{
		Name:         "pvc-pending",
		RequiredTags: []string{"pvc", "pending"},
		RootCause:    "Pods in namespace %s may be stuck until their persistent volume claims bind",
		Confidence:   0.75,
		Match: func(e Event) (string, bool) {
			s := signal(e)
			switch {
			case strings.Contains(s, "PERSISTENTVOLUME"), strings.Contains(s, "PVC"):
				return "pvc", true
			case strings.Contains(s, "PENDING"), strings.Contains(s, "UNSCHEDULABLE"), strings.Contains(s, "NOTREADY") && e.Kind != "":
				return "pending", true
			}
			return "", false
		},
	}
}

// nodePressureRule pairs cluster-scoped node alerts with evictions in a
// namespace.
func nodePressureRule() Rule {
	return Rule{
		Name:         "node-pressure",
		RequiredTags: []string{"node", "evicted"},
		RootCause:    "Evictions in namespace %s likely follow node resource pressure",
		Confidence:   0.7,
		Match: func(e Event) (string, bool) {
			s := signal(e)
			switch {
			case strings.Contains(s, "EVICT"):
				return "evicted", true
			case strings.HasPrefix(s, "KUBENODE"), strings.Contains(s, "PRESSURE"):
				return "node", true
			}
			return "", false
		},
	}
}

// applyRules evaluates each rule per namespace. Cluster-scoped alerts
// such as node conditions take part in every namespace's evaluation.
func applyRules(rules []Rule, events []indexed) []Group {
	cluster := inNamespace(events, clusterScope)
	var groups []Group
	for _, ns := range sortedNamespaces(events) {
		nsEvents := inNamespace(events, ns)
		if ns != clusterScope {
			nsEvents = append(nsEvents, cluster...)
		}
		for _, rule := range rules {
			var matched []indexed
			tags := make(map[string]bool)
			for _, e := range nsEvents {
				if tag, ok := rule.Match(e.Event); ok {
					matched = append(matched, e)
					tags[tag] = true
				}
			}
			if !hasAll(tags, rule.RequiredTags) {
				continue
			}
			first, last := timeSpan(matched)
			groups = append(groups, Group{
				Rule:       rule.Name,
				Title:      fmt.Sprintf("%s: %d alerts in %s", rule.Name, len(matched), ns),
				RootCause:  fmt.Sprintf(rule.RootCause, ns),
				Severity:   highestSeverity(matched),
				Confidence: rule.Confidence,
				Events:     plain(matched),
				members:    indices(matched),
				FirstSeen:  first,
				LastSeen:   last,
			})
		}
	}
	return groups
}

func hasAll(tags map[string]bool, required []string) bool {
	for _, r := range required {
		if !tags[r] {
			return false
		}
	}
	return true
}
