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

// Package mailbox holds at most one pending command per device. Issuing a
// command overwrites the slot; taking it clears the slot, so every command
// is delivered at most once.
package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mfreeman451/thermorelay/pkg/kvstore"
	"github.com/mfreeman451/thermorelay/pkg/models"
)

const keyPrefix = "command:"

// ErrInvalidCommand is returned for commands outside the fixed set.
var ErrInvalidCommand = errors.New("invalid command")

// Key returns the store key of a device's mailbox.
func Key(deviceID string) string {
	return keyPrefix + deviceID
}

// Mailbox is the per-device command slot.
type Mailbox struct {
	store *kvstore.Store
	now   func() time.Time
	newID func() string
}

// New creates a Mailbox. A nil now uses time.Now.
func New(store *kvstore.Store, now func() time.Time) *Mailbox {
	if now == nil {
		now = time.Now
	}

	return &Mailbox{
		store: store,
		now:   now,
		newID: uuid.NewString,
	}
}

// Set replaces any pending command for deviceID and returns the new
// command's id. Invalid commands leave the mailbox untouched.
func (m *Mailbox) Set(ctx context.Context, deviceID string, command models.Command, value json.RawMessage) (string, error) {
	if !command.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCommand, command)
	}

	pending := models.PendingCommand{
		CommandID: m.newID(),
		Command:   command,
		Value:     value,
		IssuedAt:  m.now(),
	}

	err := kvstore.Update(ctx, m.store, Key(deviceID),
		func(models.PendingCommand, bool) (models.PendingCommand, bool, error) {
			return pending, true, nil
		})
	if err != nil {
		return "", err
	}

	return pending.CommandID, nil
}

// Take returns the pending command and clears the slot. ok is false when
// nothing was pending.
func (m *Mailbox) Take(ctx context.Context, deviceID string) (cmd models.PendingCommand, ok bool, err error) {
	err = kvstore.Update(ctx, m.store, Key(deviceID),
		func(cur models.PendingCommand, exists bool) (models.PendingCommand, bool, error) {
			cmd, ok = cur, exists

			return models.PendingCommand{}, false, nil
		})
	if err != nil {
		return models.PendingCommand{}, false, err
	}

	return cmd, ok, nil
}

// Peek returns the pending command without consuming it.
func (m *Mailbox) Peek(ctx context.Context, deviceID string) (models.PendingCommand, bool, error) {
	return kvstore.Load[models.PendingCommand](ctx, m.store, Key(deviceID))
}
