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
	"sort"
	"strings"
)

// resourceHierarchy ranks owner kinds above the kinds they own.
var resourceHierarchy = map[string]int{
	"deployment":  3,
	"statefulset": 3,
	"daemonset":   3,
	"replicaset":  2,
	"pod":         1,
}

// correlateOwnership groups alerts on a workload with alerts on the
// objects it owns, matched through the generated name prefix.
func correlateOwnership(events []indexed) []Group {
	var groups []Group
	for _, ns := range sortedNamespaces(events) {
		nsEvents := inNamespace(events, ns)
		if len(nsEvents) < 2 {
			continue
		}
		// Owners first, so a chain starts at the top of the hierarchy.
		sort.SliceStable(nsEvents, func(i, j int) bool {
			return resourceHierarchy[nsEvents[i].Kind] > resourceHierarchy[nsEvents[j].Kind]
		})
		used := make([]bool, len(nsEvents))
		for i, a := range nsEvents {
			if used[i] {
				continue
			}
			chain := []indexed{a}
			for j, b := range nsEvents {
				if i == j || used[j] {
					continue
				}
				if relatedByOwnership(a.Kind, a.Object, b.Kind, b.Object) {
					chain = append(chain, b)
					used[j] = true
				}
			}
			if len(chain) < 2 {
				continue
			}
			used[i] = true
			groups = append(groups, ownershipGroup(ns, chain))
		}
	}
	return groups
}

// relatedByOwnership reports whether one object plausibly owns the other:
// deployment/api owns replicaset/api-7d9f and pod/api-7d9f-x2k4.
func relatedByOwnership(kindA, nameA, kindB, nameB string) bool {
	levelA, levelB := resourceHierarchy[kindA], resourceHierarchy[kindB]
	if levelA == 0 || levelB == 0 || levelA == levelB {
		return false
	}
	if levelA > levelB {
		return strings.HasPrefix(nameB, nameA+"-") || nameB == nameA
	}
	return strings.HasPrefix(nameA, nameB+"-") || nameA == nameB
}

func ownershipGroup(namespace string, events []indexed) Group {
	root, rootLevel := "", 0
	for _, e := range events {
		if l := resourceHierarchy[e.Kind]; l > rootLevel {
			root, rootLevel = e.Resource(), l
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Resource() < events[j].Resource()
	})
	first, last := timeSpan(events)
	return Group{
		Rule:       "ownership",
		Title:      fmt.Sprintf("ownership chain under %s in %s", root, namespace),
		Severity:   highestSeverity(events),
		Confidence: ownershipConfidence(len(events)),
		Events:     plain(events),
		members:    indices(events),
		FirstSeen:  first,
		LastSeen:   last,
	}
}

func ownershipConfidence(n int) float64 {
	if n >= 3 {
		return 0.9
	}
	return 0.7
}
