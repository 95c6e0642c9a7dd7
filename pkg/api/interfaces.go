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

// Package api exposes the relay engine over HTTP: the device status
// endpoint, the relay action endpoint and the dashboard API.
package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mfreeman451/thermorelay/pkg/events"
	"github.com/mfreeman451/thermorelay/pkg/models"
)

// Engine is the operation surface the HTTP layer drives.
type Engine interface {
	IngestTelemetry(ctx context.Context, apiKey string, report *models.TelemetryReport) (models.CommandResponse, error)
	IssueCommand(ctx context.Context, deviceID string, command models.Command, value json.RawMessage) (string, error)
	SendRelayMessage(ctx context.Context, apiKey, fromKey, toKey string, payload json.RawMessage) (string, error)
	ReceiveRelayMessages(ctx context.Context, apiKey, key string, clear bool) ([]models.RelayMessage, error)
	Heartbeat(ctx context.Context, apiKey, clientID, address string) (time.Time, error)
	OnlineClients(ctx context.Context, apiKey string) (map[string]models.PresenceRecord, error)
	AuthorizeRelay(apiKey string) error
	ListDevices(ctx context.Context) ([]models.DeviceStatus, error)
	Device(ctx context.Context, deviceID string) (models.DeviceStatus, error)
	DeviceHistory(ctx context.Context, deviceID string) ([]models.DeviceSnapshot, error)
	PendingCommand(ctx context.Context, deviceID string) (models.PendingCommand, bool, error)
	CommunicationLog(ctx context.Context) ([]models.LogEntry, error)
	RemoveDevice(ctx context.Context, deviceID string) error
	Subscribe() *events.Subscription
}
