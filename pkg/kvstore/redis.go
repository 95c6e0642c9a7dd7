/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
)

const (
	defaultRedisNamespace = "thermorelay:"
	redisScanCount        = 200
)

var errRedisPing = errors.New("redis ping failed")

// RedisConfig selects the Redis server holding the state.
type RedisConfig struct {
	Addr      string `json:"addr"`
	Password  string `json:"password,omitempty"`
	DB        int    `json:"db"`
	Namespace string `json:"namespace,omitempty"`
}

// RedisBackend stores each key as a Redis string. Commits run inside
// MULTI/EXEC so a batch is applied as a unit.
type RedisBackend struct {
	client    *redis.Client
	namespace string
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("%w: %w", errRedisPing, err)
	}

	return NewRedisBackendFromClient(client, cfg.Namespace), nil
}

// NewRedisBackendFromClient wraps an existing client.
func NewRedisBackendFromClient(client *redis.Client, namespace string) *RedisBackend {
	if namespace == "" {
		namespace = defaultRedisNamespace
	}

	return &RedisBackend{
		client:    client,
		namespace: namespace,
	}
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, r.namespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, err
	}

	return value, true, nil
}

func (r *RedisBackend) Commit(ctx context.Context, batch []Mutation) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, mut := range batch {
			if mut.Value == nil {
				pipe.Del(ctx, r.namespace+mut.Key)
				continue
			}

			pipe.Set(ctx, r.namespace+mut.Key, mut.Value, 0)
		}

		return nil
	})

	return err
}

func (r *RedisBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)

	iter := r.client.Scan(ctx, 0, r.scanPattern(prefix), redisScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), r.namespace))
	}

	if err := iter.Err(); err != nil {
		return nil, err
	}

	// SCAN may return a key more than once.
	return uniqueSorted(keys), nil
}

// scanPattern matches every key under prefix. Both the namespace and the
// prefix are literal.
func (r *RedisBackend) scanPattern(prefix string) string {
	return escapeGlob(r.namespace+prefix) + "*"
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}

// escapeGlob quotes the characters SCAN MATCH treats as wildcards.
func escapeGlob(s string) string {
	var b strings.Builder

	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}

		b.WriteRune(r)
	}

	return b.String()
}
