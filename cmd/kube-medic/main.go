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

/*
kube-medic - multi-agent Kubernetes troubleshooting

Usage:

	kube-medic serve                       # HTTP API: webhooks, queries, admin
	kube-medic chat                        # Interactive session on stdin
	kube-medic chat -q "why is api down?"  # Ask once and exit
*/
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	// Import all Kubernetes client auth plugins (e.g. Azure, GCP, OIDC, etc.)
	_ "k8s.io/client-go/plugin/pkg/client/auth"

	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/tranductrinh/kube-medic/internal/config"
)

var setupLog = ctrl.Log.WithName("setup")

// overrides are command flags that win over every other config source.
type overrides struct {
	addr          string
	provider      string
	model         string
	maxIterations int
	memoryBackend string
	prometheusURL string
}

func (o *overrides) bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.addr, "addr", "", "HTTP listen address (overrides server.addr)")
	fs.StringVar(&o.provider, "ai-provider", "", "AI provider: openai, azure, anthropic, gemini or noop")
	fs.StringVar(&o.model, "ai-model", "", "AI model (provider default if empty)")
	fs.IntVar(&o.maxIterations, "max-iterations", 0, "Think steps per specialist run")
	fs.StringVar(&o.memoryBackend, "memory-backend", "", "Conversation memory: memory or redis")
	fs.StringVar(&o.prometheusURL, "prometheus-url", "", "Prometheus base URL; enables the metrics specialist")
}

// apply copies the flags the user actually set.
func (o *overrides) apply(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("addr") {
		cfg.Server.Addr = o.addr
	}
	if fs.Changed("ai-provider") {
		cfg.AI.Provider = o.provider
	}
	if fs.Changed("ai-model") {
		cfg.AI.Model = o.model
	}
	if fs.Changed("max-iterations") {
		cfg.Agent.MaxIterations = o.maxIterations
	}
	if fs.Changed("memory-backend") {
		cfg.Memory.Backend = o.memoryBackend
	}
	if fs.Changed("prometheus-url") {
		cfg.Prometheus.URL = o.prometheusURL
	}
}

type rootOptions struct {
	configFile string
	envFile    string
	overrides  overrides
	zap        zap.Options
}

// load resolves the configuration for a subcommand.
func (r *rootOptions) load(cmd *cobra.Command) (config.Config, error) {
	return config.Load(config.Options{
		File:     r.configFile,
		EnvFile:  r.envFile,
		Override: func(c *config.Config) { r.overrides.apply(cmd.Flags(), c) },
	})
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{zap: zap.Options{Development: true}}

	root := &cobra.Command{
		Use:   "kube-medic",
		Short: "Multi-agent Kubernetes troubleshooting",
		Long: `kube-medic answers questions about a Kubernetes cluster and investigates
Alertmanager webhooks. A supervisor routes each question to specialists
(kubernetes, prometheus, network, email) that call read-only tools until
they can answer.

Configuration comes from built-in defaults, an optional YAML file, a .env
file, KUBE_MEDIC_* environment variables and finally command flags.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts.zap)))
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configFile, "config", "c", "", "YAML configuration file")
	pf.StringVar(&opts.envFile, "env-file", "", "dotenv file (default: .env when present)")
	opts.overrides.bind(pf)

	zapFlags := flag.NewFlagSet("zap", flag.ContinueOnError)
	opts.zap.BindFlags(zapFlags)
	pf.AddGoFlagSet(zapFlags)
	// --kubeconfig is registered on the standard flag set.
	pf.AddGoFlagSet(flag.CommandLine)

	root.AddCommand(newServeCommand(opts), newChatCommand(opts))
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
