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

// Package events fans engine events out to live subscribers such as
// websocket dashboards.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

type Type string

const (
	DeviceReported   Type = "device_reported"
	DeviceRemoved    Type = "device_removed"
	DeviceOffline    Type = "device_offline"
	DeviceRecovered  Type = "device_recovered"
	CommandIssued    Type = "command_issued"
	CommandDelivered Type = "command_delivered"
	RelayMessageSent Type = "relay_message"
	ClientHeartbeat  Type = "client_heartbeat"
)

const defaultBuffer = 64

// Event is one notification pushed to subscribers.
type Event struct {
	Type      Type      `json:"type"`
	DeviceID  string    `json:"device_id,omitempty"`
	ClientID  string    `json:"client_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// Hub broadcasts events. Publishing never blocks: a subscriber whose
// buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscription receives events on C until Close is called.
type Subscription struct {
	C <-chan Event

	ch      chan Event
	hub     *Hub
	once    sync.Once
	dropped atomic.Int64
}

func (h *Hub) Subscribe() *Subscription {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

// Close unregisters the subscription and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()

		close(s.ch)
	})
}

func (h *Hub) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		select {
		case sub.ch <- e:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs)
}

// Dropped returns how many events this subscriber missed because its
// buffer was full.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}
