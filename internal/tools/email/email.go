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

// Package email exposes the send_email capability that delivers a
// structured investigation report.
package email

import (
	"context"
	"fmt"
	"strings"

	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/tranductrinh/kube-medic/internal/capability"
	"github.com/tranductrinh/kube-medic/internal/notifier"
)

var log = logf.Log.WithName("email-tools")

// ReportSender delivers a report to a fixed set of recipients.
// *notifier.EmailNotifier satisfies it.
type ReportSender interface {
	SendReport(ctx context.Context, r notifier.Report) error
	Recipients() []string
}

// Capabilities returns the send_email capability backed by sender.
func Capabilities(sender ReportSender) []capability.Descriptor {
	return []capability.Descriptor{{
		Name: "send_email",
		Description: "Send a structured investigation report by email to the configured recipients. " +
			"Use it once, after the investigation is complete.",
		Params: []capability.Param{
			{Name: "summary", Type: capability.String, Required: true, Description: "One-line description of the issue, used as the subject"},
			{Name: "root_cause", Type: capability.String, Required: true, Description: "The identified root cause"},
			{Name: "evidence", Type: capability.String, Required: true, Description: "Logs, events or metrics supporting the root cause"},
			{Name: "recommended_fix", Type: capability.String, Required: true, Description: "Concrete steps or commands to resolve the issue"},
		},
		Invoke: func(ctx context.Context, args capability.Args) (string, error) {
			report := notifier.Report{
				Summary:        strings.TrimSpace(args.String("summary")),
				RootCause:      args.String("root_cause"),
				Evidence:       args.String("evidence"),
				RecommendedFix: args.String("recommended_fix"),
			}
			if report.Summary == "" {
				return "", fmt.Errorf("%w: summary must not be empty", capability.ErrInvalidArguments)
			}

			to := strings.Join(sender.Recipients(), ", ")
			logf.FromContext(ctx).Info("Sending investigation report", "to", to, "summary", report.Summary)
			if err := sender.SendReport(ctx, report); err != nil {
				return "", err
			}
			log.V(1).Info("Investigation report sent", "to", to)
			return "Email sent to " + to, nil
		},
	}}
}
