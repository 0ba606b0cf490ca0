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

package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "KUBE_MEDIC_"

type binding struct {
	name string
	set  func(c *Config, v string) error
}

func str(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func integer(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func duration(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

func boolean(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func float(bits int, set func(*Config, float64)) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), bits)
		if err != nil {
			return err
		}
		set(c, f)
		return nil
	}
}

// list splits a comma separated value, dropping blanks.
func list(field func(*Config) *[]string) func(*Config, string) error {
	return func(c *Config, v string) error {
		var out []string
		for part := range strings.SplitSeq(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*field(c) = out
		return nil
	}
}

var bindings = []binding{
	{"AI_PROVIDER", str(func(c *Config) *string { return &c.AI.Provider })},
	{"AI_API_KEY", str(func(c *Config) *string { return &c.AI.APIKey })},
	{"AI_ENDPOINT", str(func(c *Config) *string { return &c.AI.Endpoint })},
	{"AI_MODEL", str(func(c *Config) *string { return &c.AI.Model })},
	{"AI_AZURE_API_VERSION", str(func(c *Config) *string { return &c.AI.AzureAPIVersion })},
	{"AI_MAX_TOKENS", integer(func(c *Config) *int { return &c.AI.MaxTokens })},
	{"AI_TEMPERATURE", float(32, func(c *Config, f float64) { c.AI.Temperature = float32(f) })},
	{"AI_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.AI.Timeout })},
	{"AI_DAILY_TOKEN_LIMIT", integer(func(c *Config) *int { return &c.AI.DailyTokenLimit })},

	{"AGENT_MAX_ITERATIONS", integer(func(c *Config) *int { return &c.Agent.MaxIterations })},
	{"REQUEST_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.Supervisor.RequestTimeout })},

	{"MEMORY_BACKEND", str(func(c *Config) *string { return &c.Memory.Backend })},
	{"MEMORY_MAX_TURNS", integer(func(c *Config) *int { return &c.Memory.MaxTurns })},
	{"MEMORY_MAX_AGE", duration(func(c *Config) *time.Duration { return &c.Memory.MaxAge })},
	{"REDIS_ADDR", str(func(c *Config) *string { return &c.Memory.RedisAddr })},
	{"REDIS_PASSWORD", str(func(c *Config) *string { return &c.Memory.RedisPassword })},
	{"REDIS_DB", integer(func(c *Config) *int { return &c.Memory.RedisDB })},

	{"K8S_LOG_TAIL_LINES", integer(func(c *Config) *int { return &c.Kubernetes.LogTailLines })},
	{"K8S_LOG_MAX_CHARS", integer(func(c *Config) *int { return &c.Kubernetes.LogMaxChars })},

	{"PROMETHEUS_URL", str(func(c *Config) *string { return &c.Prometheus.URL })},
	{"PROMETHEUS_USERNAME", str(func(c *Config) *string { return &c.Prometheus.Username })},
	{"PROMETHEUS_PASSWORD", str(func(c *Config) *string { return &c.Prometheus.Password })},
	{"PROMETHEUS_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.Prometheus.Timeout })},
	{"PROMETHEUS_CACHE_SIZE", integer(func(c *Config) *int { return &c.Prometheus.CacheSize })},
	{"PROMETHEUS_CACHE_TTL", duration(func(c *Config) *time.Duration { return &c.Prometheus.CacheTTL })},
	{"PROMETHEUS_MAX_SERIES", integer(func(c *Config) *int { return &c.Prometheus.MaxSeries })},

	{"SMTP_HOST", str(func(c *Config) *string { return &c.SMTP.Host })},
	{"SMTP_PORT", integer(func(c *Config) *int { return &c.SMTP.Port })},
	{"SMTP_USERNAME", str(func(c *Config) *string { return &c.SMTP.Username })},
	{"SMTP_PASSWORD", str(func(c *Config) *string { return &c.SMTP.Password })},
	{"SMTP_USE_TLS", boolean(func(c *Config) *bool { return &c.SMTP.UseTLS })},
	{"EMAIL_FROM", str(func(c *Config) *string { return &c.Email.From })},
	{"EMAIL_TO", list(func(c *Config) *[]string { return &c.Email.To })},

	{"NOTIFY_WEBHOOK_URL", str(func(c *Config) *string { return &c.Notify.WebhookURL })},
	{"NOTIFY_SLACK_WEBHOOK_URL", str(func(c *Config) *string { return &c.Notify.SlackWebhookURL })},
	{"NOTIFY_TEAMS_WEBHOOK_URL", str(func(c *Config) *string { return &c.Notify.TeamsWebhookURL })},
	{"NOTIFY_PAGERDUTY_ROUTING_KEY", str(func(c *Config) *string { return &c.Notify.PagerDutyRoutingKey })},

	{"WEBHOOK_QUEUE_SIZE", integer(func(c *Config) *int { return &c.Webhook.QueueSize })},
	{"WEBHOOK_WORKERS", integer(func(c *Config) *int { return &c.Webhook.Workers })},
	{"WEBHOOK_RETRY_MAX", integer(func(c *Config) *int { return &c.Webhook.RetryMax })},
	{"WEBHOOK_RETRY_MIN_WAIT", duration(func(c *Config) *time.Duration { return &c.Webhook.RetryMinWait })},
	{"WEBHOOK_RETRY_MAX_WAIT", duration(func(c *Config) *time.Duration { return &c.Webhook.RetryMaxWait })},
	{"WEBHOOK_DEAD_LETTER_SIZE", integer(func(c *Config) *int { return &c.Webhook.DeadLetterSize })},
	{"WEBHOOK_ALERT_FILTER", str(func(c *Config) *string { return &c.Webhook.AlertFilter })},

	{"ADDR", str(func(c *Config) *string { return &c.Server.Addr })},
	{"AUTH_TOKEN", str(func(c *Config) *string { return &c.Server.AuthToken })},
	{"RATE_LIMIT", float(64, func(c *Config, f float64) { c.Server.RateLimit = f })},
	{"RATE_BURST", integer(func(c *Config) *int { return &c.Server.RateBurst })},
}

// EnvNames lists every recognised variable.
func EnvNames() []string {
	names := make([]string, 0, len(bindings))
	for _, b := range bindings {
		names = append(names, EnvPrefix+b.name)
	}
	return names
}

// applyEnv overlays set variables. Empty values count as unset.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	for _, b := range bindings {
		name := EnvPrefix + b.name
		v, ok := lookup(name)
		if !ok || v == "" {
			continue
		}
		if err := b.set(cfg, v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
