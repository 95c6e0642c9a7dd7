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

package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mfreeman451/thermorelay/pkg/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T, path string) *DB {
	t.Helper()

	d, err := New(path)
	require.NoError(t, err)

	return d
}

func TestDB_CommitAndGet(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t, filepath.Join(t.TempDir(), "state.db"))

	defer d.Close()

	err := d.Commit(ctx, []kvstore.Mutation{
		{Key: "device:a", Value: []byte(`{"n":1}`)},
		{Key: "device:b", Value: []byte(`{"n":2}`)},
		{Key: "inbox:a", Value: []byte(`[]`)},
	})
	require.NoError(t, err)

	value, ok, err := d.Get(ctx, "device:a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"n":1}`, string(value))

	_, ok, err = d.Get(ctx, "device:missing")
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := d.Keys(ctx, "device:")
	require.NoError(t, err)
	assert.Equal(t, []string{"device:a", "device:b"}, keys)

	require.NoError(t, d.Commit(ctx, []kvstore.Mutation{
		{Key: "device:a"},
		{Key: "device:b", Value: []byte(`{"n":3}`)},
	}))

	keys, err = d.Keys(ctx, "device:")
	require.NoError(t, err)
	assert.Equal(t, []string{"device:b"}, keys)

	value, _, err = d.Get(ctx, "device:b")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":3}`, string(value))
}

func TestDB_SynchronousNormalOnEveryConnection(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t, filepath.Join(t.TempDir(), "state.db"))

	defer d.Close()

	first, err := d.Conn(ctx)
	require.NoError(t, err)

	defer first.Close()

	second, err := d.Conn(ctx)
	require.NoError(t, err)

	defer second.Close()

	for _, conn := range []*sql.Conn{first, second} {
		var mode int

		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA synchronous").Scan(&mode))
		assert.Equal(t, 1, mode, "synchronous should be NORMAL")
	}
}

func TestDB_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	first := openTestDB(t, path)
	require.NoError(t, first.Commit(ctx, []kvstore.Mutation{{Key: "command:d1", Value: []byte(`{"command":"turn_on"}`)}}))
	require.NoError(t, first.Close())

	second := openTestDB(t, path)
	defer second.Close()

	value, ok, err := second.Get(ctx, "command:d1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"command":"turn_on"}`, string(value))
}

func TestDB_StoreTransactions(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t, filepath.Join(t.TempDir(), "state.db"))

	defer d.Close()

	s := kvstore.New(d)

	type counter struct {
		N int `json:"n"`
	}

	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := 0; j < 10; j++ {
				assert.NoError(t, kvstore.Update(ctx, s, "hits", func(cur counter, _ bool) (counter, bool, error) {
					cur.N++

					return cur, true, nil
				}))
			}
		}()
	}

	wg.Wait()

	got, ok, err := kvstore.Load[counter](ctx, s, "hits")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 80, got.N)
}

func TestDB_PrefixIsLiteral(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t, filepath.Join(t.TempDir(), "state.db"))

	defer d.Close()

	require.NoError(t, d.Commit(ctx, []kvstore.Mutation{
		{Key: "presence:client:a", Value: []byte(`1`)},
		{Key: "presence:device:a", Value: []byte(`1`)},
		{Key: "presence_x", Value: []byte(`1`)},
	}))

	keys, err := d.Keys(ctx, "presence:client:")
	require.NoError(t, err)
	assert.Equal(t, []string{"presence:client:a"}, keys)
}
