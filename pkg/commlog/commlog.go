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

// Package commlog keeps a short global trail of device exchanges for
// diagnostics.
package commlog

import (
	"context"

	"github.com/mfreeman451/thermorelay/pkg/bounded"
	"github.com/mfreeman451/thermorelay/pkg/kvstore"
	"github.com/mfreeman451/thermorelay/pkg/models"
)

// Key is the single store key holding the log.
const Key = "commlog"

type Log struct {
	store    *kvstore.Store
	capacity int
}

func New(store *kvstore.Store, capacity int) *Log {
	return &Log{
		store:    store,
		capacity: capacity,
	}
}

// Append adds an entry, dropping the oldest beyond capacity.
func (l *Log) Append(ctx context.Context, entry *models.LogEntry) error {
	return kvstore.Update(ctx, l.store, Key,
		func(cur []models.LogEntry, _ bool) ([]models.LogEntry, bool, error) {
			return bounded.Append(cur, l.capacity, *entry), true, nil
		})
}

// Recent returns the retained entries, oldest first.
func (l *Log) Recent(ctx context.Context) ([]models.LogEntry, error) {
	entries, _, err := kvstore.Load[[]models.LogEntry](ctx, l.store, Key)
	if err != nil {
		return nil, err
	}

	if entries == nil {
		entries = []models.LogEntry{}
	}

	return entries, nil
}
