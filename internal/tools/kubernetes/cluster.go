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

package kubernetes

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const nodeRolePrefix = "node-role.kubernetes.io/"

// ListNamespaces lists namespaces and their phase.
func (t *Toolset) ListNamespaces(ctx context.Context) (string, error) {
	namespaces := &corev1.NamespaceList{}
	if err := t.reader.List(ctx, namespaces); err != nil {
		return "", fmt.Errorf("listing namespaces: %w", err)
	}
	if len(namespaces.Items) == 0 {
		return "No namespaces found.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d namespaces:\n", len(namespaces.Items))
	for _, ns := range namespaces.Items {
		fmt.Fprintf(&b, "  - %s: %s\n", ns.Name, ns.Status.Phase)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// eventTime returns the best available timestamp for an event.
func eventTime(ev *corev1.Event) time.Time {
	if !ev.LastTimestamp.IsZero() {
		return ev.LastTimestamp.Time
	}
	if !ev.EventTime.Time.IsZero() {
		return ev.EventTime.Time
	}
	return ev.CreationTimestamp.Time
}

// GetEvents returns up to maxEvents events, newest first, optionally limited
// to one involved object.
func (t *Toolset) GetEvents(ctx context.Context, namespace, resourceName string) (string, error) {
	events := &corev1.EventList{}
	if err := t.reader.List(ctx, events, listOptions(namespace)...); err != nil {
		return "", fmt.Errorf("listing events in %s: %w", scopeLabel(namespace), err)
	}

	items := events.Items
	if resourceName != "" {
		items = slices.DeleteFunc(items, func(e corev1.Event) bool {
			return e.InvolvedObject.Name != resourceName
		})
	}
	if len(items) == 0 {
		return "No events found.", nil
	}
	sort.SliceStable(items, func(i, j int) bool {
		return eventTime(&items[i]).After(eventTime(&items[j]))
	})
	items = items[:min(len(items), maxEvents)]

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d events (most recent first):\n", len(items))
	for i := range items {
		ev := &items[i]
		fmt.Fprintf(&b, "  %s %s %s/%s: %s", ev.Type, ev.Reason, ev.InvolvedObject.Kind, ev.InvolvedObject.Name, strings.TrimSpace(ev.Message))
		if ev.Count > 1 {
			fmt.Fprintf(&b, " (x%d)", ev.Count)
		}
		if ts := eventTime(ev); !ts.IsZero() {
			fmt.Fprintf(&b, " [%s]", ts.UTC().Format(time.RFC3339))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// ListNodes lists nodes with readiness, roles and kubelet version.
func (t *Toolset) ListNodes(ctx context.Context) (string, error) {
	nodes := &corev1.NodeList{}
	if err := t.reader.List(ctx, nodes); err != nil {
		return "", fmt.Errorf("listing nodes: %w", err)
	}
	if len(nodes.Items) == 0 {
		return "No nodes found.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d nodes:\n", len(nodes.Items))
	for i := range nodes.Items {
		node := &nodes.Items[i]
		fmt.Fprintf(&b, "  - %s: %s, roles: [%s], kubelet: %s", node.Name, nodeReady(node), strings.Join(nodeRoles(node), ","), node.Status.NodeInfo.KubeletVersion)
		if node.Spec.Unschedulable {
			b.WriteString(", SchedulingDisabled")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func nodeReady(node *corev1.Node) string {
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			if cond.Status == corev1.ConditionTrue {
				return "Ready"
			}
			return "NotReady"
		}
	}
	return "Unknown"
}

func nodeRoles(node *corev1.Node) []string {
	var roles []string
	for k := range node.Labels {
		if role, ok := strings.CutPrefix(k, nodeRolePrefix); ok && role != "" {
			roles = append(roles, role)
		}
	}
	if len(roles) == 0 {
		return []string{"worker"}
	}
	slices.Sort(roles)
	return roles
}

// GetNodeDetails describes one node's conditions, resources and taints.
func (t *Toolset) GetNodeDetails(ctx context.Context, name string) (string, error) {
	node := &corev1.Node{}
	if err := t.reader.Get(ctx, client.ObjectKey{Name: name}, node); err != nil {
		return "", notFound(err, "node", name, "")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Node: %s\n", name)
	fmt.Fprintf(&b, "Kubelet: %s, OS: %s, Runtime: %s\n",
		node.Status.NodeInfo.KubeletVersion, node.Status.NodeInfo.OSImage, node.Status.NodeInfo.ContainerRuntimeVersion)

	b.WriteString("\nConditions:\n")
	for _, cond := range node.Status.Conditions {
		fmt.Fprintf(&b, "  - %s: %s", cond.Type, cond.Status)
		if cond.Message != "" {
			fmt.Fprintf(&b, " (%s)", cond.Message)
		}
		b.WriteString("\n")
	}

	writeResources(&b, "Capacity", node.Status.Capacity)
	writeResources(&b, "Allocatable", node.Status.Allocatable)

	if len(node.Spec.Taints) > 0 {
		b.WriteString("\nTaints:\n")
		for _, taint := range node.Spec.Taints {
			fmt.Fprintf(&b, "  - %s=%s:%s\n", taint.Key, taint.Value, taint.Effect)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func writeResources(b *strings.Builder, title string, rl corev1.ResourceList) {
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, name := range slices.Sorted(maps.Keys(rl)) {
		q := rl[name]
		fmt.Fprintf(b, "  - %s: %s\n", name, q.String())
	}
}
