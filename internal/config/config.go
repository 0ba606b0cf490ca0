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

// Package config loads kube-medic settings. Sources apply in order:
// built-in defaults, an optional YAML file, a .env file, then KUBE_MEDIC_*
// environment variables, then caller overrides such as command flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/tranductrinh/kube-medic/internal/agent"
	"github.com/tranductrinh/kube-medic/internal/ai"
	"github.com/tranductrinh/kube-medic/internal/investigation"
	"github.com/tranductrinh/kube-medic/internal/memory"
	"github.com/tranductrinh/kube-medic/internal/notifier"
	"github.com/tranductrinh/kube-medic/internal/server"
	"github.com/tranductrinh/kube-medic/internal/supervisor"
	"github.com/tranductrinh/kube-medic/internal/tools/kubernetes"
	"github.com/tranductrinh/kube-medic/internal/tools/prometheus"
)

var log = logf.Log.WithName("config")

// ErrInvalid wraps every validation problem.
var ErrInvalid = errors.New("invalid configuration")

// Memory backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the complete runtime configuration.
type Config struct {
	AI         ai.Config            `yaml:"ai"`
	Agent      AgentConfig          `yaml:"agent"`
	Supervisor SupervisorConfig     `yaml:"supervisor"`
	Memory     MemoryConfig         `yaml:"memory"`
	Kubernetes kubernetes.Config    `yaml:"kubernetes"`
	Prometheus prometheus.Config    `yaml:"prometheus"`
	SMTP       notifier.SMTPConfig  `yaml:"smtp"`
	Email      EmailConfig          `yaml:"email"`
	Notify     NotifyConfig         `yaml:"notify"`
	Webhook    investigation.Config `yaml:"webhook"`
	Server     server.Config        `yaml:"server"`
}

type AgentConfig struct {
	MaxIterations int `yaml:"maxIterations"`
}

type SupervisorConfig struct {
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// MemoryConfig selects and bounds the conversation store.
type MemoryConfig struct {
	Backend       string        `yaml:"backend"`
	MaxTurns      int           `yaml:"maxTurns"`
	MaxAge        time.Duration `yaml:"maxAge"`
	RedisAddr     string        `yaml:"redisAddr"`
	RedisPassword string        `yaml:"redisPassword"`
	RedisDB       int           `yaml:"redisDB"`
}

func (m MemoryConfig) Retention() memory.Retention {
	return memory.Retention{MaxTurns: m.MaxTurns, MaxAge: m.MaxAge}
}

func (m MemoryConfig) Redis() memory.RedisConfig {
	return memory.RedisConfig{Addr: m.RedisAddr, Password: m.RedisPassword, DB: m.RedisDB}
}

// EmailConfig enables the email specialist when both fields are set.
type EmailConfig struct {
	From string   `yaml:"from"`
	To   []string `yaml:"to"`
}

// Enabled reports whether email delivery is configured.
func (e EmailConfig) Enabled() bool {
	return e.From != "" && len(e.To) > 0
}

// NotifyConfig lists the async notification targets. Empty values are
// skipped.
type NotifyConfig struct {
	WebhookURL          string `yaml:"webhookURL"`
	SlackWebhookURL     string `yaml:"slackWebhookURL"`
	TeamsWebhookURL     string `yaml:"teamsWebhookURL"`
	PagerDutyRoutingKey string `yaml:"pagerDutyRoutingKey"`
}

// Default returns the built-in defaults.
func Default() Config {
	retention := memory.DefaultRetention()
	return Config{
		AI:         ai.DefaultConfig(),
		Agent:      AgentConfig{MaxIterations: agent.DefaultMaxIterations},
		Supervisor: SupervisorConfig{RequestTimeout: supervisor.DefaultRequestTimeout},
		Memory: MemoryConfig{
			Backend:   BackendMemory,
			MaxTurns:  retention.MaxTurns,
			MaxAge:    retention.MaxAge,
			RedisAddr: "localhost:6379",
		},
		Kubernetes: kubernetes.DefaultConfig(),
		Prometheus: prometheus.DefaultConfig(),
		SMTP:       notifier.SMTPConfig{Port: 587, UseTLS: true},
		Webhook:    investigation.DefaultConfig(),
		Server:     server.DefaultConfig(),
	}
}

// Options locate the file sources.
type Options struct {
	// File is an optional YAML file.
	File string
	// EnvFile is a dotenv file. When empty, ".env" is read if present.
	EnvFile string
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
	// Override runs last, before validation. Command flags use it.
	Override func(*Config)
}

// Load builds the configuration from every source and validates it.
func Load(opts Options) (Config, error) {
	cfg := Default()

	if opts.File != "" {
		raw, err := os.ReadFile(opts.File)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := decodeYAML(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file %s: %w", opts.File, err)
		}
		log.V(1).Info("Loaded config file", "path", opts.File)
	}

	if err := loadDotEnv(opts.EnvFile); err != nil {
		return cfg, err
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return cfg, err
	}
	if opts.Override != nil {
		opts.Override(&cfg)
	}
	return cfg, cfg.Validate()
}

// decodeYAML rejects unknown keys so typos do not pass silently.
func decodeYAML(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// loadDotEnv reads a dotenv file into the process environment. Variables
// already set win.
func loadDotEnv(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	log.V(1).Info("Loaded env file", "path", path)
	return nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	providers := []string{ai.ProviderNameOpenAI, ai.ProviderNameAzure, ai.ProviderNameAnthropic, ai.ProviderNameGemini, ai.ProviderNameNoop}
	switch provider := strings.ToLower(c.AI.Provider); {
	case !slices.Contains(providers, provider):
		add("ai.provider %q is not one of %s", c.AI.Provider, strings.Join(providers, ", "))
	case provider == ai.ProviderNameNoop:
	case c.AI.APIKey == "":
		add("ai.apiKey is required for provider %s", provider)
	case provider == ai.ProviderNameAzure && (c.AI.Endpoint == "" || c.AI.Model == ""):
		add("ai.endpoint and ai.model are required for provider azure")
	}
	if c.AI.MaxTokens <= 0 {
		add("ai.maxTokens must be positive")
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		add("ai.temperature must be between 0 and 2")
	}
	if c.AI.DailyTokenLimit < 0 {
		add("ai.dailyTokenLimit must not be negative")
	}

	if c.Agent.MaxIterations < 1 {
		add("agent.maxIterations must be at least 1")
	}
	if c.Supervisor.RequestTimeout <= 0 {
		add("supervisor.requestTimeout must be positive")
	}

	switch c.Memory.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Memory.RedisAddr == "" {
			add("memory.redisAddr is required for the redis backend")
		}
	default:
		add("memory.backend %q is not one of memory, redis", c.Memory.Backend)
	}
	if c.Memory.MaxTurns <= 0 {
		add("memory.maxTurns must be positive")
	}

	if c.Prometheus.URL != "" {
		if err := validateHTTPURL(c.Prometheus.URL); err != nil {
			add("prometheus.url: %v", err)
		}
	}

	if c.Email.From != "" || len(c.Email.To) > 0 {
		if !c.Email.Enabled() {
			add("email.from and email.to must be set together")
		}
		if c.SMTP.Host == "" {
			add("smtp.host is required when email is configured")
		}
	}
	if c.SMTP.Port < 0 || c.SMTP.Port > 65535 {
		add("smtp.port %d is out of range", c.SMTP.Port)
	}

	for key, raw := range map[string]string{
		"notify.webhookURL":      c.Notify.WebhookURL,
		"notify.slackWebhookURL": c.Notify.SlackWebhookURL,
		"notify.teamsWebhookURL": c.Notify.TeamsWebhookURL,
	} {
		if raw == "" {
			continue
		}
		if err := validateHTTPURL(raw); err != nil {
			add("%s: %v", key, err)
		}
	}

	w := c.Webhook
	if w.QueueSize <= 0 || w.Workers <= 0 {
		add("webhook.queueSize and webhook.workers must be positive")
	}
	if w.RetryMax < 1 {
		add("webhook.retryMax must be at least 1")
	}
	if w.RetryMinWait <= 0 || w.RetryMaxWait < w.RetryMinWait {
		add("webhook.retryMinWait must be positive and not above webhook.retryMaxWait")
	}
	if w.DeadLetterSize <= 0 {
		add("webhook.deadLetterSize must be positive")
	}
	if w.AlertFilter != "" {
		if _, err := investigation.NewAlertFilter(w.AlertFilter); err != nil {
			add("webhook.alertFilter: %v", err)
		}
	}

	if c.Server.Addr == "" {
		add("server.addr must not be empty")
	}
	if c.Server.RateLimit <= 0 || c.Server.RateBurst <= 0 {
		add("server.rateLimit and server.rateBurst must be positive")
	}

	if len(problems) == 0 {
		return nil
	}
	slices.SortFunc(problems, func(a, b error) int { return strings.Compare(a.Error(), b.Error()) })
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(problems...))
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is empty")
	}
	return nil
}
