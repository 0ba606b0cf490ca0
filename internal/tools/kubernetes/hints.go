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
	"fmt"

	corev1 "k8s.io/api/core/v1"
)

var waitingHints = map[string]string{
	"ImagePullBackOff": "image cannot be pulled; check the image name and tag and any imagePullSecrets",
	"ErrImagePull":     "image pull failed; verify the image exists and registry credentials are configured",
	"CrashLoopBackOff": "container keeps crashing; read get_pod_logs with previous=true and check the last termination reason",
	"CreateContainerConfigError": "container config is invalid, usually a missing ConfigMap or Secret; " +
		"compare referenced names with list_configmaps and list_secrets",
	"ContainerCreating": "still being created; if this persists check events for volume mount or image pull problems",
	"PodInitializing":   "init containers are running; read their logs if this persists",
}

// containerHint suggests a next diagnostic step for a failing container, or
// returns "" when the container looks healthy.
func containerHint(cs corev1.ContainerStatus) string {
	if w := cs.State.Waiting; w != nil {
		if h, ok := waitingHints[w.Reason]; ok {
			return h
		}
		return fmt.Sprintf("waiting with reason %s; check events for this pod", w.Reason)
	}
	term := cs.State.Terminated
	if term == nil {
		term = cs.LastTerminationState.Terminated
	}
	if term == nil || term.ExitCode == 0 {
		return ""
	}
	return terminatedHint(term.Reason, term.ExitCode)
}

func terminatedHint(reason string, exitCode int32) string {
	if reason == "OOMKilled" {
		return "OOM-killed after exceeding its memory limit; compare the limit with actual usage"
	}
	switch exitCode {
	case 137:
		return "killed by SIGKILL (exit 137), typically an OOM kill or node memory pressure"
	case 143:
		return "received SIGTERM (exit 143), normal during rollouts and evictions"
	case 126:
		return "entrypoint is not executable (exit 126); check permissions and image architecture"
	case 127:
		return "entrypoint not found (exit 127); check the command and args in the pod spec"
	case 1:
		return "application exited with an error (exit 1); read the previous container logs"
	}
	return fmt.Sprintf("exited with code %d; read the previous container logs", exitCode)
}
