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

// Package presence tracks when relay clients and devices were last heard
// from. Records are never deleted; stale ones simply evaluate offline.
package presence

import (
	"context"
	"strings"
	"time"

	"github.com/mfreeman451/thermorelay/pkg/kvstore"
	"github.com/mfreeman451/thermorelay/pkg/models"
)

const keyPrefix = "presence:"

// Key returns the store key of a presence record.
func Key(kind models.PresenceKind, id string) string {
	return keyPrefix + string(kind) + ":" + id
}

// Within reports whether lastSeen is younger than window at now. A record
// exactly window old is offline.
func Within(lastSeen, now time.Time, window time.Duration) bool {
	return now.Sub(lastSeen) < window
}

// Tracker records liveness signals.
type Tracker struct {
	store *kvstore.Store
	now   func() time.Time
}

// NewTracker creates a Tracker. A nil now uses time.Now.
func NewTracker(store *kvstore.Store, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}

	return &Tracker{
		store: store,
		now:   now,
	}
}

// TouchClient records a relay client heartbeat and returns its timestamp.
func (t *Tracker) TouchClient(ctx context.Context, clientID, address string) (time.Time, error) {
	return t.touch(ctx, models.PresenceClient, clientID, address)
}

// TouchDevice records that a device just reported telemetry.
func (t *Tracker) TouchDevice(ctx context.Context, deviceID, address string) error {
	_, err := t.touch(ctx, models.PresenceDevice, deviceID, address)

	return err
}

func (t *Tracker) touch(ctx context.Context, kind models.PresenceKind, id, address string) (time.Time, error) {
	seen := t.now()

	if address == "" {
		address = models.UnknownAddress
	}

	err := kvstore.Update(ctx, t.store, Key(kind, id),
		func(models.PresenceRecord, bool) (models.PresenceRecord, bool, error) {
			return models.PresenceRecord{
				Key:           id,
				Kind:          kind,
				LastSeen:      seen,
				SourceAddress: address,
			}, true, nil
		})
	if err != nil {
		return time.Time{}, err
	}

	return seen, nil
}

// Get returns the presence record for a key.
func (t *Tracker) Get(ctx context.Context, kind models.PresenceKind, id string) (models.PresenceRecord, bool, error) {
	return kvstore.Load[models.PresenceRecord](ctx, t.store, Key(kind, id))
}

// IsOnline reports whether id was seen within window.
func (t *Tracker) IsOnline(ctx context.Context, kind models.PresenceKind, id string, window time.Duration) (bool, error) {
	rec, ok, err := t.Get(ctx, kind, id)
	if err != nil || !ok {
		return false, err
	}

	return Within(rec.LastSeen, t.now(), window), nil
}

// SnapshotAll returns the online records of one kind, keyed by id.
func (t *Tracker) SnapshotAll(
	ctx context.Context, kind models.PresenceKind, window time.Duration) (map[string]models.PresenceRecord, error) {
	prefix := Key(kind, "")

	records, err := kvstore.LoadPrefix[models.PresenceRecord](ctx, t.store, prefix)
	if err != nil {
		return nil, err
	}

	now := t.now()
	online := make(map[string]models.PresenceRecord, len(records))

	for key, rec := range records {
		if !Within(rec.LastSeen, now, window) {
			continue
		}

		online[strings.TrimPrefix(key, prefix)] = rec
	}

	return online, nil
}
