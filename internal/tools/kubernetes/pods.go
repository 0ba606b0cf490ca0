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
	"io"
	"maps"
	"slices"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const truncatedMarker = "[...truncated...]"

// ListPods lists pods in namespace (all when empty), optionally filtered by
// a label selector.
func (t *Toolset) ListPods(ctx context.Context, namespace, selector string) (string, error) {
	opts := listOptions(namespace)
	if selector != "" {
		sel, err := parseSelector(selector)
		if err != nil {
			return "", err
		}
		opts = append(opts, client.MatchingLabelsSelector{Selector: sel})
	}

	pods := &corev1.PodList{}
	if err := t.reader.List(ctx, pods, opts...); err != nil {
		return "", fmt.Errorf("listing pods in %s: %w", scopeLabel(namespace), err)
	}
	log.V(1).Info("Listed pods", "namespace", namespace, "selector", selector, "count", len(pods.Items))
	if len(pods.Items) == 0 {
		return "No pods found.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d pods:\n", len(pods.Items))
	for i := range pods.Items {
		pod := &pods.Items[i]
		fmt.Fprintf(&b, "  - %s/%s: %s (restarts: %d)\n", pod.Namespace, pod.Name, podStatus(pod), restartCount(pod))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// podStatus is the last container waiting or terminated reason, falling back
// to the pod phase. It matches what kubectl shows in the STATUS column for
// the common failure cases.
func podStatus(pod *corev1.Pod) string {
	status := string(pod.Status.Phase)
	for _, cs := range pod.Status.ContainerStatuses {
		switch {
		case cs.State.Waiting != nil && cs.State.Waiting.Reason != "":
			status = cs.State.Waiting.Reason
		case cs.State.Terminated != nil && cs.State.Terminated.Reason != "":
			status = cs.State.Terminated.Reason
		}
	}
	if status == "" {
		return "Unknown"
	}
	return status
}

func restartCount(pod *corev1.Pod) int32 {
	var n int32
	for _, cs := range pod.Status.ContainerStatuses {
		n += cs.RestartCount
	}
	return n
}

// GetPodDetails describes one pod, including hints for failing containers.
func (t *Toolset) GetPodDetails(ctx context.Context, name, namespace string) (string, error) {
	pod := &corev1.Pod{}
	if err := t.reader.Get(ctx, client.ObjectKey{Namespace: namespace, Name: name}, pod); err != nil {
		return "", notFound(err, "pod", name, namespace)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Pod: %s/%s\n", namespace, name)
	fmt.Fprintf(&b, "Status: %s\n", pod.Status.Phase)
	fmt.Fprintf(&b, "Node: %s\n", orNone(pod.Spec.NodeName))
	fmt.Fprintf(&b, "IP: %s\n", orNone(pod.Status.PodIP))
	if pod.Status.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s: %s\n", pod.Status.Reason, pod.Status.Message)
	}

	specs := make(map[string]corev1.Container, len(pod.Spec.Containers))
	for _, c := range pod.Spec.Containers {
		specs[c.Name] = c
	}

	b.WriteString("\nContainers:\n")
	var hints []string
	for _, cs := range pod.Status.ContainerStatuses {
		fmt.Fprintf(&b, "  - %s: %s, Ready: %t, Restarts: %d\n", cs.Name, containerState(cs.State), cs.Ready, cs.RestartCount)
		if spec, ok := specs[cs.Name]; ok {
			fmt.Fprintf(&b, "      Image: %s\n", spec.Image)
			fmt.Fprintf(&b, "      Requests: %s, Limits: %s\n", resourceList(spec.Resources.Requests), resourceList(spec.Resources.Limits))
		}
		if term := cs.LastTerminationState.Terminated; term != nil {
			fmt.Fprintf(&b, "      Last termination: %s (exit code %d)\n", term.Reason, term.ExitCode)
		}
		if h := containerHint(cs); h != "" {
			hints = append(hints, fmt.Sprintf("%s: %s", cs.Name, h))
		}
	}

	b.WriteString("\nConditions:\n")
	for _, cond := range pod.Status.Conditions {
		fmt.Fprintf(&b, "  - %s: %s", cond.Type, cond.Status)
		if cond.Reason != "" {
			fmt.Fprintf(&b, " (%s)", cond.Reason)
		}
		b.WriteString("\n")
	}

	if len(pod.Labels) > 0 {
		b.WriteString("\nLabels: ")
		for i, k := range slices.Sorted(maps.Keys(pod.Labels)) {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", k, pod.Labels[k])
		}
		b.WriteString("\n")
	}

	if len(hints) > 0 {
		b.WriteString("\nHints:\n")
		for _, h := range hints {
			fmt.Fprintf(&b, "  - %s\n", h)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func containerState(s corev1.ContainerState) string {
	switch {
	case s.Running != nil:
		return "Running"
	case s.Waiting != nil:
		return fmt.Sprintf("Waiting (%s)", s.Waiting.Reason)
	case s.Terminated != nil:
		return fmt.Sprintf("Terminated (%s, exit code %d)", s.Terminated.Reason, s.Terminated.ExitCode)
	default:
		return "Unknown"
	}
}

func resourceList(rl corev1.ResourceList) string {
	if len(rl) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(rl))
	for _, name := range slices.Sorted(maps.Keys(rl)) {
		q := rl[name]
		parts = append(parts, fmt.Sprintf("%s=%s", name, q.String()))
	}
	return strings.Join(parts, ", ")
}

func orNone(s string) string {
	if s == "" {
		return "<none>"
	}
	return s
}

// GetPodLogs returns the tail of a container's log, keeping only the last
// LogMaxChars characters.
func (t *Toolset) GetPodLogs(ctx context.Context, name, namespace, container string, tailLines int, previous bool) (string, error) {
	if t.clientset == nil {
		return "", fmt.Errorf("pod logs are unavailable: no Kubernetes clientset configured")
	}
	if tailLines <= 0 {
		tailLines = t.cfg.LogTailLines
	}
	lines := int64(tailLines)
	opts := &corev1.PodLogOptions{Container: container, TailLines: &lines, Previous: previous}

	stream, err := t.clientset.CoreV1().Pods(namespace).GetLogs(name, opts).Stream(ctx)
	if err != nil {
		return "", notFound(err, "pod", name, namespace)
	}
	defer func() { _ = stream.Close() }()

	raw, err := io.ReadAll(stream)
	if err != nil {
		return "", fmt.Errorf("reading logs of %s/%s: %w", namespace, name, err)
	}
	logs := string(raw)
	if strings.TrimSpace(logs) == "" {
		return fmt.Sprintf("No logs found for pod %s", name), nil
	}
	log.V(1).Info("Fetched pod logs", "pod", name, "namespace", namespace, "chars", len(logs))

	if len(logs) > t.cfg.LogMaxChars {
		logs = truncatedMarker + "\n" + logs[len(logs)-t.cfg.LogMaxChars:]
	}
	return fmt.Sprintf("Logs from %s/%s (last %d lines):\n\n%s", namespace, name, tailLines, logs), nil
}

// ListDeployments shows replica health for each deployment.
func (t *Toolset) ListDeployments(ctx context.Context, namespace string) (string, error) {
	deployments := &appsv1.DeploymentList{}
	if err := t.reader.List(ctx, deployments, listOptions(namespace)...); err != nil {
		return "", fmt.Errorf("listing deployments in %s: %w", scopeLabel(namespace), err)
	}
	if len(deployments.Items) == 0 {
		return "No deployments found.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d deployments:\n", len(deployments.Items))
	for _, d := range deployments.Items {
		desired := int32(1)
		if d.Spec.Replicas != nil {
			desired = *d.Spec.Replicas
		}
		state := "OK"
		if d.Status.ReadyReplicas != desired {
			state = "DEGRADED"
		}
		fmt.Fprintf(&b, "  [%s] %s/%s: %d/%d ready, %d available\n",
			state, d.Namespace, d.Name, d.Status.ReadyReplicas, desired, d.Status.AvailableReplicas)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
