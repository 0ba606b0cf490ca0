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

package investigation

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tranductrinh/kube-medic/internal/causal"
)

const (
	alertStatusFiring   = "firing"
	alertStatusResolved = "resolved"
)

// Alert is one Alertmanager alert.
type Alert struct {
	Status      string
	Labels      map[string]string
	Annotations map[string]string

	// StartsAt is zero when the payload carries no parsable startsAt.
	StartsAt time.Time
}

// Name returns the alertname label.
func (a Alert) Name(fallback string) string {
	if n := a.Labels["alertname"]; n != "" {
		return n
	}
	return fallback
}

func (a Alert) resolved() bool {
	return strings.EqualFold(a.Status, alertStatusResolved)
}

// description prefers the description annotation, then the summary.
func (a Alert) description(fallback string) string {
	if d := a.Annotations["description"]; d != "" {
		return d
	}
	if s := a.Annotations["summary"]; s != "" {
		return s
	}
	return fallback
}

// decodePayload parses raw into a generic value. Numbers keep their text so
// canonical re-encoding does not change them. Bytes that are not JSON are
// kept as a string so normalization never fails.
func decodePayload(raw []byte) any {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return string(raw)
	}
	return v
}

// ThreadIDFor derives a stable thread id from the payload's canonical JSON,
// so repeated deliveries of the same alert share conversation memory.
func ThreadIDFor(payload any) string {
	// encoding/json writes map keys in sorted order.
	canonical, err := json.Marshal(payload)
	if err != nil {
		canonical = fmt.Appendf(nil, "%v", payload)
	}
	sum := sha256.Sum256(canonical)
	return "webhook-" + hex.EncodeToString(sum[:])[:12]
}

// extractAlerts recognizes the Alertmanager shape: an object with an
// "alerts" array, or a single bare alert object carrying labels. Alerts
// without a status inherit the group status and default to firing.
func extractAlerts(payload any) ([]Alert, bool) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, false
	}
	groupStatus := stringValue(obj["status"])

	if raw, has := obj["alerts"]; has {
		list, ok := raw.([]any)
		if !ok {
			return nil, false
		}
		alerts := make([]Alert, 0, len(list))
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			alerts = append(alerts, toAlert(m, groupStatus))
		}
		return alerts, true
	}

	if _, hasLabels := obj["labels"].(map[string]any); hasLabels {
		return []Alert{toAlert(obj, "")}, true
	}
	return nil, false
}

func toAlert(m map[string]any, groupStatus string) Alert {
	status := stringValue(m["status"])
	if status == "" {
		status = groupStatus
	}
	if status == "" {
		status = alertStatusFiring
	}
	startsAt, _ := time.Parse(time.RFC3339Nano, stringValue(m["startsAt"]))
	return Alert{
		Status:      status,
		Labels:      stringMap(m["labels"]),
		Annotations: stringMap(m["annotations"]),
		StartsAt:    startsAt,
	}
}

func stringMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = stringValue(val)
	}
	return out
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// renderAlerts builds the question for a non-empty alert list.
func renderAlerts(alerts []Alert) string {
	var firing, resolved []Alert
	for _, a := range alerts {
		if a.resolved() {
			resolved = append(resolved, a)
		} else {
			firing = append(firing, a)
		}
	}

	switch {
	case len(firing) == 1:
		return renderSingleAlert(firing[0])
	case len(firing) > 1:
		return renderMultipleAlerts(firing)
	default:
		return renderResolved(resolved)
	}
}

func renderSingleAlert(a Alert) string {
	var context []string
	for _, key := range []string{"namespace", "pod", "service"} {
		if v := a.Labels[key]; v != "" {
			context = append(context, key+"="+v)
		}
	}
	scope := "cluster-wide"
	if len(context) > 0 {
		scope = strings.Join(context, ", ")
	}
	severity := a.Labels["severity"]
	if severity == "" {
		severity = "unknown"
	}

	return fmt.Sprintf(`An alert has fired and needs investigation:

Alert: %s
Severity: %s
Context: %s
Description: %s

Please investigate this alert. Find the root cause and suggest remediation steps.`,
		a.Name("Unknown Alert"), severity, scope, a.description("No description provided"))
}

func renderMultipleAlerts(alerts []Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Multiple alerts have fired and need investigation:\n\nTotal firing alerts: %d\n\nAlerts:\n", len(alerts))
	for _, a := range alerts {
		severity := a.Labels["severity"]
		if severity == "" {
			severity = "unknown"
		}
		namespace := a.Labels["namespace"]
		if namespace == "" {
			namespace = "default"
		}
		fmt.Fprintf(&b, "- %s (severity=%s, namespace=%s", a.Name("Unknown"), severity, namespace)
		if pod := a.Labels["pod"]; pod != "" {
			fmt.Fprintf(&b, ", pod=%s", pod)
		}
		fmt.Fprintf(&b, "): %s\n", a.description(""))
	}
	writeCorrelation(&b, alerts)
	b.WriteString("\nPlease investigate these alerts together. They may be related. Find the root cause and suggest remediation steps.")
	return b.String()
}

var correlator = causal.NewCorrelator()

// writeCorrelation lists alert groups that likely share a cause.
func writeCorrelation(b *strings.Builder, alerts []Alert) {
	events := make([]causal.Event, len(alerts))
	for i, a := range alerts {
		events[i] = causal.EventFromLabels(a.Labels, a.StartsAt)
	}
	res := correlator.Analyze(events)
	if len(res.Groups) == 0 {
		return
	}
	b.WriteString("\nCorrelated groups:\n")
	for _, g := range res.Groups {
		summary := g.RootCause
		if summary == "" {
			summary = g.Title
		}
		fmt.Fprintf(b, "- %s (confidence %.2f): %s. Alerts: %s\n",
			g.Rule, g.Confidence, summary, strings.Join(g.Alerts(), ", "))
	}
	if res.Uncorrelated > 0 {
		fmt.Fprintf(b, "Alerts not in any group: %d\n", res.Uncorrelated)
	}
}

func renderResolved(alerts []Alert) string {
	names := make([]string, 0, len(alerts))
	for _, a := range alerts {
		name := a.Name("Unknown")
		if ns := a.Labels["namespace"]; ns != "" {
			name += " (namespace=" + ns + ")"
		}
		names = append(names, name)
	}
	return fmt.Sprintf(`The following alerts have resolved: %s

Please confirm that the affected resources have recovered and report anything that still looks unhealthy.`,
		strings.Join(names, ", "))
}

// renderGeneric embeds any payload as indented JSON.
func renderGeneric(payload any) string {
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		body = fmt.Appendf(nil, "%v", payload)
	}
	return fmt.Sprintf("A webhook has been received that requires investigation:\n\n```json\n%s\n```\n\n"+
		"Please analyze this data and investigate any issues indicated. Find the root cause and suggest remediation steps.", body)
}

// Normalize renders any payload as a question. It never fails.
func Normalize(raw []byte) string {
	payload := decodePayload(raw)
	if alerts, ok := extractAlerts(payload); ok && len(alerts) > 0 {
		return renderAlerts(alerts)
	}
	return renderGeneric(payload)
}
