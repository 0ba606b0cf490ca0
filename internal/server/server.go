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

// Package server exposes the investigation pipeline over HTTP.
package server

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/tranductrinh/kube-medic/internal/investigation"
	"github.com/tranductrinh/kube-medic/internal/memory"
)

var log = logf.Log.WithName("server")

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 30 * time.Second
)

// Pipeline is the investigation surface the server drives.
// *investigation.Pipeline satisfies it.
type Pipeline interface {
	Submit(ctx context.Context, req investigation.Request) (investigation.Result, error)
	Ask(ctx context.Context, question, threadID string) investigation.Result
	Ready() bool
	Stats() investigation.Stats
	DeadLetters() []investigation.DeadLetter
	ClearDeadLetters() int
	RetryDeadLetter(ctx context.Context, index int) (investigation.Result, error)
}

// MemoryStats reports conversation memory usage.
type MemoryStats interface {
	Stats() memory.Stats
}

// Config holds the listener settings.
type Config struct {
	Addr string `yaml:"addr"`
	// AuthToken protects the admin endpoints when set.
	AuthToken   string        `yaml:"authToken"`
	RateLimit   float64       `yaml:"rateLimit"`
	RateBurst   int           `yaml:"rateBurst"`
	ReadTimeout time.Duration `yaml:"readTimeout"`
	// WriteTimeout must outlast a synchronous investigation.
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// DefaultConfig returns the listener defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8000",
		RateLimit:    10,
		RateBurst:    20,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 6 * time.Minute,
	}
}

// Server is the HTTP front end.
type Server struct {
	cfg      Config
	pipeline Pipeline
	memory   MemoryStats
	limiter  *clientLimiter
	handler  http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithMemoryStats adds memory usage to /admin/stats.
func WithMemoryStats(m MemoryStats) Option {
	return func(s *Server) { s.memory = m }
}

// New builds the server and its routes.
func New(p Pipeline, cfg Config, opts ...Option) *Server {
	d := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = d.Addr
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = d.RateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = d.RateBurst
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = d.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = d.WriteTimeout
	}

	s := &Server{
		cfg:      cfg,
		pipeline: p,
		limiter:  newClientLimiter(cfg.RateLimit, cfg.RateBurst),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /webhook", s.rateLimit(s.handleWebhook))
	mux.HandleFunc("POST /webhook/sync", s.rateLimit(s.handleWebhookSync))
	mux.HandleFunc("POST /query", s.rateLimit(s.handleQuery))
	mux.HandleFunc("GET /admin/stats", s.auth(s.handleStats))
	mux.HandleFunc("GET /admin/failed-webhooks", s.auth(s.handleListDeadLetters))
	mux.HandleFunc("DELETE /admin/failed-webhooks", s.auth(s.handleClearDeadLetters))
	mux.HandleFunc("POST /admin/retry-webhook/{index}", s.auth(s.rateLimit(s.handleRetryDeadLetter)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	s.handler = securityHeaders(mux)
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	if s.cfg.AuthToken == "" {
		log.Info("WARNING: admin authentication not configured. Set KUBE_MEDIC_AUTH_TOKEN to protect /admin endpoints.")
	}
	log.Info("Starting HTTP server", "addr", s.cfg.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// auth requires the bearer token on admin routes when one is configured.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			next(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		gotHash := sha256.Sum256([]byte(token))
		wantHash := sha256.Sum256([]byte(s.cfg.AuthToken))
		if subtle.ConstantTimeCompare(gotHash[:], wantHash[:]) != 1 {
			writeError(w, http.StatusForbidden, "invalid token")
			return
		}
		next(w, r)
	}
}

// rateLimit applies the per-client token bucket.
func (s *Server) rateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next(w, r)
	}
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
