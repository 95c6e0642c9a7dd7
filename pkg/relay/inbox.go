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

// Package relay implements bounded per-recipient message inboxes for relay
// clients.
package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mfreeman451/thermorelay/pkg/bounded"
	"github.com/mfreeman451/thermorelay/pkg/kvstore"
	"github.com/mfreeman451/thermorelay/pkg/models"
)

const keyPrefix = "inbox:"

// Key returns the store key of an inbox.
func Key(recipient string) string {
	return keyPrefix + recipient
}

// Inbox stores relay messages until their recipient drains them. When an
// inbox is full the oldest message is dropped.
type Inbox struct {
	store    *kvstore.Store
	capacity int
	now      func() time.Time
	newID    func() string
}

// NewInbox creates an Inbox. A nil now uses time.Now.
func NewInbox(store *kvstore.Store, capacity int, now func() time.Time) *Inbox {
	if now == nil {
		now = time.Now
	}

	return &Inbox{
		store:    store,
		capacity: capacity,
		now:      now,
		newID:    uuid.NewString,
	}
}

// Send appends a message to target's inbox and returns its id.
func (i *Inbox) Send(ctx context.Context, target, from string, payload json.RawMessage) (string, error) {
	if payload == nil {
		payload = json.RawMessage("null")
	}

	msg := models.RelayMessage{
		MessageID: i.newID(),
		FromKey:   from,
		ToKey:     target,
		Payload:   payload,
		SentAt:    i.now(),
	}

	err := kvstore.Update(ctx, i.store, Key(target),
		func(cur []models.RelayMessage, _ bool) ([]models.RelayMessage, bool, error) {
			return bounded.Append(cur, i.capacity, msg), true, nil
		})
	if err != nil {
		return "", err
	}

	return msg.MessageID, nil
}

// Receive returns key's messages oldest first. With clear set the inbox is
// emptied in the same transaction, so no message is returned twice.
func (i *Inbox) Receive(ctx context.Context, key string, clear bool) ([]models.RelayMessage, error) {
	var (
		messages []models.RelayMessage
		err      error
	)

	if clear {
		err = kvstore.Update(ctx, i.store, Key(key),
			func(cur []models.RelayMessage, _ bool) ([]models.RelayMessage, bool, error) {
				messages = cur

				return nil, false, nil
			})
	} else {
		messages, _, err = kvstore.Load[[]models.RelayMessage](ctx, i.store, Key(key))
	}

	if err != nil {
		return nil, err
	}

	if messages == nil {
		messages = []models.RelayMessage{}
	}

	return messages, nil
}
