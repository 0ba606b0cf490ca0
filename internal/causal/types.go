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

// Package causal groups firing alerts that likely share a root cause. It
// looks at start-time proximity, workload ownership and known alert
// pairings, so the question sent to the specialists names the suspected
// cause instead of a flat list of symptoms.
package causal

import (
	"sort"
	"strings"
	"time"
)

// Event is one firing alert reduced to what correlation needs.
type Event struct {
	// Alert is the alertname.
	Alert string `json:"alert"`

	// Namespace is empty for cluster-scoped alerts.
	Namespace string `json:"namespace,omitempty"`

	// Kind is the lowercased owner kind taken from the alert labels,
	// such as deployment or pod. Empty when the alert names no workload.
	Kind string `json:"kind,omitempty"`

	// Object is the name of the workload of kind Kind.
	Object string `json:"object,omitempty"`

	// Reason is the reason label, when present.
	Reason string `json:"reason,omitempty"`

	Severity string `json:"severity,omitempty"`

	// StartsAt is when the alert began firing.
	StartsAt time.Time `json:"startsAt"`
}

// resourceLabels are the workload labels checked in owner-first order.
var resourceLabels = []string{"deployment", "statefulset", "daemonset", "replicaset", "pod"}

// EventFromLabels builds an Event from Alertmanager labels.
func EventFromLabels(labels map[string]string, startsAt time.Time) Event {
	e := Event{
		Alert:     labels["alertname"],
		Namespace: labels["namespace"],
		Reason:    labels["reason"],
		Severity:  strings.ToLower(labels["severity"]),
		StartsAt:  startsAt,
	}
	for _, kind := range resourceLabels {
		if name := labels[kind]; name != "" {
			e.Kind, e.Object = kind, name
			break
		}
	}
	return e
}

// Resource renders the event's workload as kind/name.
func (e Event) Resource() string {
	if e.Kind == "" {
		return ""
	}
	return e.Kind + "/" + e.Object
}

// Group is a set of alerts that likely share a root cause.
type Group struct {
	// Rule is the strategy that formed the group: a rule name,
	// "ownership" or "temporal".
	Rule string `json:"rule"`

	Title string `json:"title"`

	// RootCause is set by the rule strategy only.
	RootCause string `json:"rootCause,omitempty"`

	Severity string `json:"severity"`

	// Confidence is 0-1.
	Confidence float64 `json:"confidence"`

	Events []Event `json:"events"`

	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`

	// members are the input positions of Events.
	members []int
}

// Alerts lists the group's alert names in event order.
func (g Group) Alerts() []string {
	names := make([]string, 0, len(g.Events))
	for _, e := range g.Events {
		names = append(names, e.Alert)
	}
	return names
}

// Result is the correlation of one alert batch.
type Result struct {
	Groups []Group `json:"groups"`

	// Uncorrelated counts events that joined no group.
	Uncorrelated int `json:"uncorrelated"`

	Total int `json:"total"`
}

// indexed keeps an event's position in the input so duplicate alerts stay
// distinct during deduplication.
type indexed struct {
	idx int
	Event
}

func namespaceOf(e Event) string {
	if e.Namespace == "" {
		return clusterScope
	}
	return e.Namespace
}

var severityRank = map[string]int{
	"critical": 3,
	"warning":  2,
	"info":     1,
}

func highestSeverity(events []indexed) string {
	best, bestRank := "", 0
	for _, e := range events {
		if r := severityRank[e.Severity]; r > bestRank {
			best, bestRank = e.Severity, r
		}
	}
	return best
}

func plain(events []indexed) []Event {
	out := make([]Event, len(events))
	for i, e := range events {
		out[i] = e.Event
	}
	return out
}

func indices(events []indexed) []int {
	out := make([]int, len(events))
	for i, e := range events {
		out[i] = e.idx
	}
	return out
}

func sortedNamespaces(events []indexed) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range events {
		if ns := namespaceOf(e.Event); !seen[ns] {
			seen[ns] = true
			out = append(out, ns)
		}
	}
	sort.Strings(out)
	return out
}

// inNamespace returns a new slice of the events in ns.
func inNamespace(events []indexed, ns string) []indexed {
	var out []indexed
	for _, e := range events {
		if namespaceOf(e.Event) == ns {
			out = append(out, e)
		}
	}
	return out
}

func timeSpan(events []indexed) (time.Time, time.Time) {
	var first, last time.Time
	for _, e := range events {
		if first.IsZero() || e.StartsAt.Before(first) {
			first = e.StartsAt
		}
		if e.StartsAt.After(last) {
			last = e.StartsAt
		}
	}
	return first, last
}
