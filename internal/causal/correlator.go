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
	"sort"
	"time"
)

// Correlator runs the rule, ownership and temporal strategies over a batch
// of alerts.
type Correlator struct {
	window time.Duration
	rules  []Rule
}

// NewCorrelator returns a Correlator with DefaultTimeWindow and
// DefaultRules.
func NewCorrelator() *Correlator {
	return NewCorrelatorWithWindow(DefaultTimeWindow)
}

// NewCorrelatorWithWindow returns a Correlator with a custom temporal
// window. A non-positive window means DefaultTimeWindow.
func NewCorrelatorWithWindow(window time.Duration) *Correlator {
	if window <= 0 {
		window = DefaultTimeWindow
	}
	return &Correlator{window: window, rules: DefaultRules()}
}

// Analyze correlates events. Each event ends up in at most one group, the
// highest-confidence one that claimed it. Groups are ordered by severity,
// then confidence.
func (c *Correlator) Analyze(events []Event) *Result {
	if len(events) == 0 {
		return &Result{}
	}
	in := make([]indexed, len(events))
	for i, e := range events {
		in[i] = indexed{idx: i, Event: e}
	}

	var all []Group
	all = append(all, applyRules(c.rules, in)...)
	all = append(all, correlateOwnership(in)...)
	all = append(all, correlateTemporal(in, c.window)...)

	groups := deduplicate(all)
	sortGroups(groups)

	correlated := 0
	for _, g := range groups {
		correlated += len(g.members)
	}
	return &Result{
		Groups:       groups,
		Uncorrelated: len(events) - correlated,
		Total:        len(events),
	}
}

// deduplicate lets higher-confidence groups claim events first. Groups
// left with fewer than two events are dropped and release their claims.
func deduplicate(groups []Group) []Group {
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Confidence > groups[j].Confidence
	})

	claimed := make(map[int]bool)
	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		var events []Event
		var members []int
		for i, idx := range g.members {
			if !claimed[idx] {
				events = append(events, g.Events[i])
				members = append(members, idx)
			}
		}
		if len(members) < 2 {
			continue
		}
		for _, idx := range members {
			claimed[idx] = true
		}
		g.Events, g.members = events, members
		out = append(out, g)
	}
	return out
}

func sortGroups(groups []Group) {
	sort.SliceStable(groups, func(i, j int) bool {
		si, sj := severityRank[groups[i].Severity], severityRank[groups[j].Severity]
		if si != sj {
			return si > sj
		}
		return groups[i].Confidence > groups[j].Confidence
	})
}
