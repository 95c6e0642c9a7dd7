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
	"os"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, "device:", escapeGlob("device:"))
	assert.Equal(t, `a\*b\?c\[d\]\\`, escapeGlob(`a*b?c[d]\`))
}

func TestRedisBackend_ScanPatternIsLiteral(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	assert.Equal(t, `thermorelay:device:*`, NewRedisBackendFromClient(client, "").scanPattern("device:"))
	assert.Equal(t, `team\*\[1\]:inbox:a\?*`, NewRedisBackendFromClient(client, "team*[1]:").scanPattern("inbox:a?"))
}

// TestRedisBackend_Integration runs against a live server when
// THERMORELAY_TEST_REDIS is set, e.g. "localhost:6379".
func TestRedisBackend_Integration(t *testing.T) {
	addr := os.Getenv("THERMORELAY_TEST_REDIS")
	if addr == "" {
		t.Skip("THERMORELAY_TEST_REDIS not set")
	}

	ctx := context.Background()

	backend, err := NewRedisBackend(ctx, RedisConfig{
		Addr:      addr,
		Namespace: "thermorelay-test-" + uuid.NewString() + ":",
	})
	require.NoError(t, err)

	defer backend.Close()

	s := New(backend)

	require.NoError(t, increment(ctx, s, "device:a"))
	require.NoError(t, increment(ctx, s, "device:a"))
	require.NoError(t, increment(ctx, s, "device:b"))

	keys, err := s.Keys(ctx, "device:")
	require.NoError(t, err)
	assert.Equal(t, []string{"device:a", "device:b"}, keys)

	got, ok, err := Load[counter](ctx, s, "device:a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, got.N)

	require.NoError(t, backend.Commit(ctx, []Mutation{{Key: "device:a"}, {Key: "device:b"}}))

	keys, err = s.Keys(ctx, "device:")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
