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
	"time"
)

const (
	// DefaultTimeWindow is how close alert start times must be to count
	// as one burst.
	DefaultTimeWindow = 2 * time.Minute

	clusterScope = "_cluster"
)

// correlateTemporal groups alerts in one namespace whose start times fall
// within window of the earliest alert of the group.
func correlateTemporal(events []indexed, window time.Duration) []Group {
	var groups []Group
	for _, ns := range sortedNamespaces(events) {
		nsEvents := inNamespace(events, ns)
		if len(nsEvents) < 2 {
			continue
		}
		sort.SliceStable(nsEvents, func(i, j int) bool {
			return nsEvents[i].StartsAt.Before(nsEvents[j].StartsAt)
		})

		used := make([]bool, len(nsEvents))
		for i := range nsEvents {
			if used[i] {
				continue
			}
			group := []indexed{nsEvents[i]}
			used[i] = true
			for j := i + 1; j < len(nsEvents); j++ {
				if nsEvents[j].StartsAt.Sub(nsEvents[i].StartsAt) > window {
					break
				}
				group = append(group, nsEvents[j])
				used[j] = true
			}
			if len(group) < 2 {
				continue
			}
			groups = append(groups, temporalGroup(ns, group, window))
		}
	}
	return groups
}

func temporalGroup(namespace string, events []indexed, window time.Duration) Group {
	first, last := timeSpan(events)
	return Group{
		Rule:       "temporal",
		Title:      fmt.Sprintf("%d alerts started within %s in %s", len(events), window, namespace),
		Severity:   highestSeverity(events),
		Confidence: temporalConfidence(events),
		Events:     plain(events),
		members:    indices(events),
		FirstSeen:  first,
		LastSeen:   last,
	}
}

// temporalConfidence rises when distinct alert names fire together and
// when the burst is large.
func temporalConfidence(events []indexed) float64 {
	names := make(map[string]struct{})
	for _, e := range events {
		names[e.Alert] = struct{}{}
	}
	confidence := 0.5
	if len(names) > 1 {
		confidence += 0.2
	}
	if len(events) >= 4 {
		confidence += 0.1
	}
	return confidence
}
