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

// Package kvstore pkg/kvstore/store.go provides per-key atomic
// load-mutate-store transactions over a pluggable Backend. Transactions on
// the same key are serialized; transactions on different keys never wait
// for each other.
package kvstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Store serializes read-modify-write transactions per key.
type Store struct {
	backend Backend
	locks   *keyLocks
}

// New creates a Store on top of backend.
func New(backend Backend) *Store {
	return &Store{
		backend: backend,
		locks:   newKeyLocks(),
	}
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// WithKey runs fn with the value currently stored at key (nil when absent)
// and replaces it with fn's result. Returning nil deletes the key. If fn
// fails nothing is written and its error is returned unchanged.
func (s *Store) WithKey(ctx context.Context, key string, fn func(cur []byte) ([]byte, error)) error {
	unlock := s.locks.lock(key)
	defer unlock()

	cur, _, err := s.backend.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: read %q: %w", ErrStorage, key, err)
	}

	next, err := fn(cur)
	if err != nil {
		return err
	}

	if unchanged(cur, next) {
		return nil
	}

	if err := s.backend.Commit(ctx, []Mutation{{Key: key, Value: next}}); err != nil {
		return fmt.Errorf("%w: write %q: %w", ErrStorage, key, err)
	}

	return nil
}

// WithKeys is WithKey over several keys at once. fn receives the current
// value of every key that exists; each entry of the returned map is written
// (nil deletes), keys missing from it are left alone. The batch is
// committed atomically.
func (s *Store) WithKeys(
	ctx context.Context, keys []string, fn func(cur map[string][]byte) (map[string][]byte, error)) error {
	if len(keys) == 0 {
		return errNoKeys
	}

	unlock := s.locks.lockAll(keys)
	defer unlock()

	cur := make(map[string][]byte, len(keys))

	for _, key := range keys {
		value, ok, err := s.backend.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("%w: read %q: %w", ErrStorage, key, err)
		}

		if ok {
			cur[key] = value
		}
	}

	next, err := fn(cur)
	if err != nil {
		return err
	}

	batch := make([]Mutation, 0, len(next))

	for _, key := range uniqueSorted(keys) {
		value, ok := next[key]
		if !ok || unchanged(cur[key], value) {
			continue
		}

		batch = append(batch, Mutation{Key: key, Value: value})
	}

	if len(batch) == 0 {
		return nil
	}

	if err := s.backend.Commit(ctx, batch); err != nil {
		return fmt.Errorf("%w: write batch: %w", ErrStorage, err)
	}

	return nil
}

// Get returns the raw value at key. Backend commits are atomic, so a read
// never observes a half-applied transaction.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("%w: read %q: %w", ErrStorage, key, err)
	}

	return value, ok, nil
}

// Keys lists stored keys with the given prefix.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.backend.Keys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: list %q: %w", ErrStorage, prefix, err)
	}

	return keys, nil
}

func unchanged(cur, next []byte) bool {
	if cur == nil || next == nil {
		return cur == nil && next == nil
	}

	return bytes.Equal(cur, next)
}

// Update is the typed form of WithKey. The stored JSON is decoded into a T
// (the zero value with exists=false when absent) and fn's result is
// encoded back. Returning keep=false deletes the key.
func Update[T any](
	ctx context.Context, s *Store, key string, fn func(cur T, exists bool) (next T, keep bool, err error)) error {
	return s.WithKey(ctx, key, func(raw []byte) ([]byte, error) {
		cur, exists, err := decode[T](key, raw)
		if err != nil {
			return nil, err
		}

		next, keep, err := fn(cur, exists)
		if err != nil {
			return nil, err
		}

		if !keep {
			return nil, nil
		}

		return encode(key, next)
	})
}

// Load decodes the value stored at key.
func Load[T any](ctx context.Context, s *Store, key string) (T, bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		var zero T

		return zero, false, err
	}

	return decode[T](key, raw)
}

// LoadPrefix decodes every value whose key starts with prefix. Keys deleted
// between listing and loading are skipped.
func LoadPrefix[T any](ctx context.Context, s *Store, prefix string) (map[string]T, error) {
	keys, err := s.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}

	out := make(map[string]T, len(keys))

	for _, key := range keys {
		value, ok, err := Load[T](ctx, s, key)
		if err != nil {
			return nil, err
		}

		if ok {
			out[key] = value
		}
	}

	return out, nil
}

func decode[T any](key string, raw []byte) (T, bool, error) {
	var value T

	if raw == nil {
		return value, false, nil
	}

	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("%w: %w %q: %w", ErrStorage, errCorruptValue, key, err)
	}

	return value, true, nil
}

func encode[T any](key string, value T) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", errEncodeValue, key, err)
	}

	return raw, nil
}
