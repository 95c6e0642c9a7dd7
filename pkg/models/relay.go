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

package models

import (
	"encoding/json"
	"time"
)

// RelayMessage is one entry of a relay inbox.
type RelayMessage struct {
	MessageID string          `json:"id"`
	FromKey   string          `json:"from"`
	ToKey     string          `json:"to"`
	Payload   json.RawMessage `json:"data"`
	SentAt    time.Time       `json:"timestamp"`
}

// PresenceKind separates relay clients from devices; each kind has its own
// liveness window.
type PresenceKind string

const (
	PresenceClient PresenceKind = "client"
	PresenceDevice PresenceKind = "device"
)

// PresenceRecord is the last liveness signal seen for a key.
type PresenceRecord struct {
	Key           string       `json:"key"`
	Kind          PresenceKind `json:"kind"`
	LastSeen      time.Time    `json:"last_seen"`
	SourceAddress string       `json:"ip"`
}

// LogEntry is one device status exchange kept for diagnostics.
type LogEntry struct {
	Timestamp time.Time       `json:"timestamp"`
	DeviceID  string          `json:"device_id"`
	Action    string          `json:"action"`
	Snapshot  DeviceSnapshot  `json:"data"`
	Response  CommandResponse `json:"response"`
}

const ActionStatusReceived = "status_received"
