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

// Package kvstore pkg/kvstore/interfaces.go

//go:generate mockgen -destination=mock_backend.go -package=kvstore github.com/mfreeman451/thermorelay/pkg/kvstore Backend

package kvstore

import (
	"context"
)

// Mutation is one write of a commit batch. A nil Value deletes the key.
type Mutation struct {
	Key   string
	Value []byte
}

// Backend persists raw values. Implementations must apply a Commit batch
// atomically: after a crash either every mutation of the batch is visible
// or none is.
type Backend interface {
	// Get returns the value stored at key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Commit applies the batch atomically.
	Commit(ctx context.Context, batch []Mutation) error

	// Keys lists the keys starting with prefix, in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	Close() error
}
