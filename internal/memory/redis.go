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

package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "kubemedic:thread:"

// RedisConfig selects the Redis instance that backs a RedisStore.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password,omitempty" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// RedisStore keeps each thread as a Redis list of JSON turns. Appends run
// in one MULTI/EXEC so concurrent writers never interleave inside a batch.
type RedisStore struct {
	client    *redis.Client
	retention Retention
	nowFunc   func() time.Time
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig, r Retention) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	if r.MaxTurns <= 0 {
		r.MaxTurns = DefaultRetention().MaxTurns
	}
	return &RedisStore{client: client, retention: r, nowFunc: time.Now}, nil
}

func redisKey(threadID string) string {
	return redisKeyPrefix + threadID
}

// Turns implements Store.
func (s *RedisStore) Turns(ctx context.Context, threadID string) ([]Turn, error) {
	if threadID == "" {
		return nil, nil
	}
	raw, err := s.client.LRange(ctx, redisKey(threadID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read thread %q: %w", threadID, err)
	}

	var cutoff time.Time
	if s.retention.MaxAge > 0 {
		cutoff = s.nowFunc().Add(-s.retention.MaxAge)
	}
	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			log.Error(err, "Skipping undecodable turn", "thread", threadID)
			continue
		}
		// The list is append-ordered, so once one turn is fresh the rest are too.
		if len(turns) == 0 && !cutoff.IsZero() && t.CreatedAt.Before(cutoff) {
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, threadID string, turns ...Turn) error {
	if threadID == "" || len(turns) == 0 {
		return nil
	}
	now := s.nowFunc()
	values := make([]any, len(turns))
	for i, t := range turns {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to encode turn: %w", err)
		}
		values[i] = b
	}

	key := redisKey(threadID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, int64(-s.retention.MaxTurns), -1)
	if s.retention.MaxAge > 0 {
		pipe.Expire(ctx, key, s.retention.MaxAge)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append to thread %q: %w", threadID, err)
	}
	return nil
}

// Delete forgets a thread.
func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	return s.client.Del(ctx, redisKey(threadID)).Err()
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
