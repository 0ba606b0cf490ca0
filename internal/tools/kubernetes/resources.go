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
	"strings"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
)

const keyPreview = 3

// ListServices shows type, cluster IP and ports of each service.
func (t *Toolset) ListServices(ctx context.Context, namespace string) (string, error) {
	services := &corev1.ServiceList{}
	if err := t.reader.List(ctx, services, listOptions(namespace)...); err != nil {
		return "", fmt.Errorf("listing services in %s: %w", scopeLabel(namespace), err)
	}
	if len(services.Items) == 0 {
		return "No services found.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d services:\n", len(services.Items))
	for _, svc := range services.Items {
		ports := make([]string, 0, len(svc.Spec.Ports))
		for _, p := range svc.Spec.Ports {
			ports = append(ports, fmt.Sprintf("%d/%s", p.Port, p.Protocol))
		}
		fmt.Fprintf(&b, "  - %s/%s: %s, IP: %s, Ports: [%s]",
			svc.Namespace, svc.Name, svc.Spec.Type, orNone(svc.Spec.ClusterIP), strings.Join(ports, ", "))
		if len(svc.Spec.Selector) == 0 && svc.Spec.Type != corev1.ServiceTypeExternalName {
			b.WriteString(", no selector")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// ListIngresses shows routing rules and TLS hosts of each ingress.
func (t *Toolset) ListIngresses(ctx context.Context, namespace string) (string, error) {
	ingresses := &networkingv1.IngressList{}
	if err := t.reader.List(ctx, ingresses, listOptions(namespace)...); err != nil {
		return "", fmt.Errorf("listing ingresses in %s: %w", scopeLabel(namespace), err)
	}
	if len(ingresses.Items) == 0 {
		return "No ingresses found.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d ingresses:\n", len(ingresses.Items))
	for _, ing := range ingresses.Items {
		class := "default"
		if ing.Spec.IngressClassName != nil {
			class = *ing.Spec.IngressClassName
		}
		fmt.Fprintf(&b, "  - %s/%s (class: %s)\n", ing.Namespace, ing.Name, class)
		for _, rule := range ing.Spec.Rules {
			host := rule.Host
			if host == "" {
				host = "*"
			}
			if rule.HTTP == nil {
				continue
			}
			for _, p := range rule.HTTP.Paths {
				path := p.Path
				if path == "" {
					path = "/"
				}
				pathType := "Prefix"
				if p.PathType != nil {
					pathType = string(*p.PathType)
				}
				fmt.Fprintf(&b, "      %s%s (%s) -> %s\n", host, path, pathType, ingressBackend(p.Backend))
			}
		}
		var tlsHosts []string
		for _, tls := range ing.Spec.TLS {
			tlsHosts = append(tlsHosts, tls.Hosts...)
		}
		if len(tlsHosts) > 0 {
			fmt.Fprintf(&b, "      TLS: %s\n", strings.Join(tlsHosts, ", "))
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func ingressBackend(be networkingv1.IngressBackend) string {
	if be.Service == nil {
		return "N/A"
	}
	port := be.Service.Port.Name
	if be.Service.Port.Number != 0 {
		port = fmt.Sprintf("%d", be.Service.Port.Number)
	}
	return be.Service.Name + ":" + port
}

// ListConfigMaps shows each ConfigMap with a preview of its keys.
func (t *Toolset) ListConfigMaps(ctx context.Context, namespace string) (string, error) {
	configMaps := &corev1.ConfigMapList{}
	if err := t.reader.List(ctx, configMaps, listOptions(namespace)...); err != nil {
		return "", fmt.Errorf("listing configmaps in %s: %w", scopeLabel(namespace), err)
	}
	if len(configMaps.Items) == 0 {
		return "No ConfigMaps found.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d ConfigMaps:\n", len(configMaps.Items))
	for _, cm := range configMaps.Items {
		keys := slices.Sorted(maps.Keys(cm.Data))
		preview := strings.Join(keys[:min(len(keys), keyPreview)], ", ")
		if len(keys) > keyPreview {
			preview += fmt.Sprintf(", ... (+%d more)", len(keys)-keyPreview)
		}
		fmt.Fprintf(&b, "  - %s/%s: %d keys [%s]\n", cm.Namespace, cm.Name, len(keys), preview)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// ListSecrets shows names, types and key counts. Values never leave this
// function.
func (t *Toolset) ListSecrets(ctx context.Context, namespace string) (string, error) {
	secrets := &corev1.SecretList{}
	if err := t.reader.List(ctx, secrets, listOptions(namespace)...); err != nil {
		return "", fmt.Errorf("listing secrets in %s: %w", scopeLabel(namespace), err)
	}
	if len(secrets.Items) == 0 {
		return "No Secrets found.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d Secrets:\n", len(secrets.Items))
	for _, s := range secrets.Items {
		secretType := s.Type
		if secretType == "" {
			secretType = corev1.SecretTypeOpaque
		}
		fmt.Fprintf(&b, "  - %s/%s: type=%s, %d keys\n", s.Namespace, s.Name, secretType, len(s.Data)+len(s.StringData))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
