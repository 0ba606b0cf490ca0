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

// Package kubernetes exposes read-only cluster capabilities. No operation
// creates, updates or deletes anything.
package kubernetes

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/controller-runtime/pkg/client"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/tranductrinh/kube-medic/internal/capability"
)

var log = logf.Log.WithName("kubernetes-tools")

// Reader is the read-only subset of a controller-runtime client. A manager's
// cached client, a direct client and client/fake all satisfy it.
type Reader interface {
	Get(ctx context.Context, key client.ObjectKey, obj client.Object, opts ...client.GetOption) error
	List(ctx context.Context, list client.ObjectList, opts ...client.ListOption) error
}

// Config bounds how much log text is returned to the model.
type Config struct {
	LogTailLines int `json:"logTailLines" yaml:"logTailLines"`
	LogMaxChars  int `json:"logMaxChars" yaml:"logMaxChars"`
}

// DefaultConfig returns the defaults used when fields are unset.
func DefaultConfig() Config {
	return Config{LogTailLines: 300, LogMaxChars: 40000}
}

const maxEvents = 50

// Toolset implements the cluster capabilities.
type Toolset struct {
	reader    Reader
	clientset kubernetes.Interface // nil disables get_pod_logs
	cfg       Config
}

// New creates a Toolset. Object reads go through reader; pod logs need the
// clientset because the log subresource is not reachable through a Reader.
func New(reader Reader, clientset kubernetes.Interface, cfg Config) *Toolset {
	def := DefaultConfig()
	if cfg.LogTailLines <= 0 {
		cfg.LogTailLines = def.LogTailLines
	}
	if cfg.LogMaxChars <= 0 {
		cfg.LogMaxChars = def.LogMaxChars
	}
	return &Toolset{reader: reader, clientset: clientset, cfg: cfg}
}

// listOptions scopes a list to namespace when it is non-empty.
func listOptions(namespace string) []client.ListOption {
	if namespace == "" {
		return nil
	}
	return []client.ListOption{client.InNamespace(namespace)}
}

func scopeLabel(namespace string) string {
	if namespace == "" {
		return "all namespaces"
	}
	return "namespace " + namespace
}

// notFound turns a 404 into a readable error naming the object.
func notFound(err error, kind, name, namespace string) error {
	if !apierrors.IsNotFound(err) {
		return err
	}
	if namespace == "" {
		return fmt.Errorf("%s %q not found", kind, name)
	}
	return fmt.Errorf("%s %q not found in namespace %q", kind, name, namespace)
}

func parseSelector(s string) (labels.Selector, error) {
	sel, err := labels.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: label_selector: %v", capability.ErrInvalidArguments, err)
	}
	return sel, nil
}

var namespaceParam = capability.Param{
	Name:        "namespace",
	Type:        capability.String,
	Description: "Kubernetes namespace. Leave empty for all namespaces.",
}

// Capabilities returns every cluster capability.
func (t *Toolset) Capabilities() []capability.Descriptor {
	return []capability.Descriptor{
		{
			Name:        "list_namespaces",
			Description: "List all namespaces in the cluster with their phase.",
			Invoke: func(ctx context.Context, _ capability.Args) (string, error) {
				return t.ListNamespaces(ctx)
			},
		},
		{
			Name:        "list_pods",
			Description: "List pods with status and restart count. Use this to see what is running and what is failing.",
			Params: []capability.Param{
				namespaceParam,
				{Name: "label_selector", Type: capability.String, Description: "Label selector such as app=nginx"},
			},
			Invoke: func(ctx context.Context, args capability.Args) (string, error) {
				return t.ListPods(ctx, args.String("namespace"), args.String("label_selector"))
			},
		},
		{
			Name:        "get_pod_details",
			Description: "Get phase, node, conditions, container states, images and resources of one pod.",
			Params: []capability.Param{
				{Name: "pod_name", Type: capability.String, Required: true, Description: "Pod name"},
				{Name: "namespace", Type: capability.String, Default: "default", Description: "Pod namespace"},
			},
			Invoke: func(ctx context.Context, args capability.Args) (string, error) {
				return t.GetPodDetails(ctx, args.String("pod_name"), args.String("namespace"))
			},
		},
		{
			Name:        "get_pod_logs",
			Description: "Get the last lines of a pod's logs to investigate errors and crashes.",
			Params: []capability.Param{
				{Name: "pod_name", Type: capability.String, Required: true, Description: "Pod name"},
				{Name: "namespace", Type: capability.String, Default: "default", Description: "Pod namespace"},
				{Name: "container", Type: capability.String, Description: "Container name, required for multi-container pods"},
				{Name: "tail_lines", Type: capability.Integer, Default: t.cfg.LogTailLines, Description: "Number of lines from the end"},
				{Name: "previous", Type: capability.Boolean, Default: false, Description: "Read the previous (crashed) container instance"},
			},
			Invoke: func(ctx context.Context, args capability.Args) (string, error) {
				return t.GetPodLogs(ctx, args.String("pod_name"), args.String("namespace"),
					args.String("container"), args.Int("tail_lines"), args.Bool("previous"))
			},
		},
		{
			Name:        "get_events",
			Description: "Get recent cluster events, newest first. Shows scheduling failures, image pulls, crashes and probe failures.",
			Params: []capability.Param{
				namespaceParam,
				{Name: "resource_name", Type: capability.String, Description: "Only events about this object, such as a pod name"},
			},
			Invoke: func(ctx context.Context, args capability.Args) (string, error) {
				return t.GetEvents(ctx, args.String("namespace"), args.String("resource_name"))
			},
		},
		{
			Name:        "list_deployments",
			Description: "List deployments with ready, desired and available replica counts.",
			Params:      []capability.Param{namespaceParam},
			Invoke: func(ctx context.Context, args capability.Args) (string, error) {
				return t.ListDeployments(ctx, args.String("namespace"))
			},
		},
		{
			Name:        "list_services",
			Description: "List services with type, cluster IP and ports.",
			Params:      []capability.Param{namespaceParam},
			Invoke: func(ctx context.Context, args capability.Args) (string, error) {
				return t.ListServices(ctx, args.String("namespace"))
			},
		},
		{
			Name:        "list_ingresses",
			Description: "List ingresses with hosts, paths, backends and TLS hosts.",
			Params:      []capability.Param{namespaceParam},
			Invoke: func(ctx context.Context, args capability.Args) (string, error) {
				return t.ListIngresses(ctx, args.String("namespace"))
			},
		},
		{
			Name:        "list_configmaps",
			Description: "List ConfigMaps with their keys.",
			Params:      []capability.Param{namespaceParam},
			Invoke: func(ctx context.Context, args capability.Args) (string, error) {
				return t.ListConfigMaps(ctx, args.String("namespace"))
			},
		},
		{
			Name:        "list_secrets",
			Description: "List Secret names and types. Secret values are never returned.",
			Params:      []capability.Param{namespaceParam},
			Invoke: func(ctx context.Context, args capability.Args) (string, error) {
				return t.ListSecrets(ctx, args.String("namespace"))
			},
		},
		{
			Name:        "list_nodes",
			Description: "List nodes with ready status, roles and kubelet version.",
			Invoke: func(ctx context.Context, _ capability.Args) (string, error) {
				return t.ListNodes(ctx)
			},
		},
		{
			Name:        "get_node_details",
			Description: "Get conditions, capacity, allocatable resources and taints of one node.",
			Params: []capability.Param{
				{Name: "node_name", Type: capability.String, Required: true, Description: "Node name"},
			},
			Invoke: func(ctx context.Context, args capability.Args) (string, error) {
				return t.GetNodeDetails(ctx, args.String("node_name"))
			},
		},
	}
}
