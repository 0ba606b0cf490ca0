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

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/tranductrinh/kube-medic/internal/config"
	"github.com/tranductrinh/kube-medic/internal/investigation"
	"github.com/tranductrinh/kube-medic/internal/server"
)

// drainTimeout bounds how long queued investigations may run after a
// shutdown signal. It matches the supervisor request timeout so a started
// investigation can finish.
const drainTimeout = 5 * time.Minute

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the investigation workers",
		Long: `Serves /health, /webhook, /webhook/sync, /query, /admin/* and /metrics.
Asynchronous webhook investigations are queued for background workers and
every one of them ends in exactly one notification.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return serve(ctrl.SetupSignalHandler(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	eng, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			setupLog.Error(err, "Failed to close engine")
		}
	}()

	notifiers := eng.notifiers(cfg)
	if notifiers.Len() == 0 {
		setupLog.Info("WARNING: no notifier configured; async investigation results are only logged")
	} else {
		setupLog.Info("Notifiers configured", "notifiers", notifiers.Names())
	}

	pipeline, err := investigation.New(eng.supervisor, notifiers, cfg.Webhook)
	if err != nil {
		return fmt.Errorf("investigation pipeline: %w", err)
	}
	pipeline.Start(ctx)

	var srvOpts []server.Option
	if eng.memStats != nil {
		srvOpts = append(srvOpts, server.WithMemoryStats(eng.memStats))
	}
	srv := server.New(pipeline, cfg.Server, srvOpts...)

	runErr := srv.Run(ctx)

	// Stop intake first, then let accepted investigations finish.
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	setupLog.Info("Draining investigation queue", "stats", pipeline.Stats())
	if err := pipeline.Shutdown(drainCtx); err != nil {
		setupLog.Error(err, "Investigation queue did not drain before the deadline")
	}
	if runErr != nil {
		return fmt.Errorf("http server: %w", runErr)
	}
	setupLog.Info("Shutdown complete")
	return nil
}
