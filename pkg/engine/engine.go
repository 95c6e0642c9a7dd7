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

// Package engine is the operation surface of ThermoRelay. It authenticates
// callers, validates input and composes the telemetry registry, command
// mailbox, relay inboxes, presence tracker and communication log.
package engine

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mfreeman451/thermorelay/pkg/commlog"
	"github.com/mfreeman451/thermorelay/pkg/events"
	"github.com/mfreeman451/thermorelay/pkg/kvstore"
	"github.com/mfreeman451/thermorelay/pkg/mailbox"
	"github.com/mfreeman451/thermorelay/pkg/models"
	"github.com/mfreeman451/thermorelay/pkg/presence"
	"github.com/mfreeman451/thermorelay/pkg/relay"
	"github.com/mfreeman451/thermorelay/pkg/telemetry"
	"github.com/sirupsen/logrus"
)

type Engine struct {
	config    Config
	store     *kvstore.Store
	telemetry *telemetry.Registry
	mailbox   *mailbox.Mailbox
	inbox     *relay.Inbox
	presence  *presence.Tracker
	commlog   *commlog.Log
	hub       *events.Hub
	logger    logrus.FieldLogger
	now       func() time.Time
}

type Option func(*Engine)

// WithClock replaces the wall clock used for timestamps and liveness.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithEventHub publishes engine events to hub instead of a private one.
func WithEventHub(hub *events.Hub) Option {
	return func(e *Engine) {
		e.hub = hub
	}
}

// New builds an Engine over store.
func New(store *kvstore.Store, cfg Config, opts ...Option) (*Engine, error) {
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		config: cfg,
		store:  store,
		logger: logrus.StandardLogger(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.hub == nil {
		e.hub = events.NewHub(0)
	}

	e.presence = presence.NewTracker(store, e.now)
	e.telemetry = telemetry.NewRegistry(store, e.presence, telemetry.Config{
		HistoryCapacity: cfg.HistoryCapacity,
		OnlineWindow:    cfg.DeviceOnlineWindow,
		Logger:          e.logger,
	}, e.now)
	e.mailbox = mailbox.New(store, e.now)
	e.inbox = relay.NewInbox(store, cfg.InboxCapacity, e.now)
	e.commlog = commlog.New(store, cfg.LogCapacity)

	return e, nil
}

// Config returns the effective configuration, defaults applied.
func (e *Engine) Config() Config {
	return e.config
}

func secretMatches(given, want string) bool {
	return subtle.ConstantTimeCompare([]byte(given), []byte(want)) == 1
}

func (e *Engine) authorizeDevice(apiKey string) error {
	if !secretMatches(apiKey, e.config.DeviceSecret) {
		return fmt.Errorf("%w: invalid device API key", ErrUnauthorized)
	}

	return nil
}

// AuthorizeRelay checks a relay client secret.
func (e *Engine) AuthorizeRelay(apiKey string) error {
	if !secretMatches(apiKey, e.config.RelaySecret) {
		return fmt.Errorf("%w: invalid relay API key", ErrUnauthorized)
	}

	return nil
}

// IngestTelemetry records a device report and hands back the device's
// pending command, consuming it. An empty response means nothing was
// pending, whether or not a command was ever issued.
func (e *Engine) IngestTelemetry(
	ctx context.Context, apiKey string, report *models.TelemetryReport) (models.CommandResponse, error) {
	if err := e.authorizeDevice(apiKey); err != nil {
		return models.CommandResponse{}, err
	}

	if err := telemetry.Validate(report); err != nil {
		return models.CommandResponse{}, err
	}

	snapshot, err := e.telemetry.Record(ctx, report)
	if err != nil {
		return models.CommandResponse{}, err
	}

	e.publish(events.Event{Type: events.DeviceReported, DeviceID: snapshot.DeviceID, Data: snapshot})

	pending, ok, err := e.mailbox.Take(ctx, snapshot.DeviceID)
	if err != nil {
		return models.CommandResponse{}, err
	}

	var response models.CommandResponse

	if ok {
		response = models.ResponseFor(&pending)

		e.publish(events.Event{Type: events.CommandDelivered, DeviceID: snapshot.DeviceID, Data: pending})
	}

	// The command is already consumed, so a failed log write must not
	// withhold it from the device.
	if err := e.commlog.Append(ctx, &models.LogEntry{
		Timestamp: snapshot.ReceivedAt,
		DeviceID:  snapshot.DeviceID,
		Action:    models.ActionStatusReceived,
		Snapshot:  snapshot,
		Response:  response,
	}); err != nil {
		e.logger.WithError(err).WithField("device_id", snapshot.DeviceID).Warn("failed to append communication log")
	}

	return response, nil
}

// IssueCommand queues a command for a device, replacing any unconsumed one.
func (e *Engine) IssueCommand(
	ctx context.Context, deviceID string, command models.Command, value json.RawMessage) (string, error) {
	if deviceID == "" {
		return "", models.MissingField("device_id")
	}

	if command == "" {
		return "", models.MissingField("command")
	}

	switch {
	case len(value) == 0:
		value = nil
	case !json.Valid(value):
		return "", &models.FieldError{Field: "value", Reason: "invalid JSON"}
	}

	id, err := e.mailbox.Set(ctx, deviceID, command, value)
	if err != nil {
		return "", err
	}

	e.logger.WithFields(logrus.Fields{
		"device_id":  deviceID,
		"command":    command,
		"command_id": id,
	}).Info("command issued")

	e.publish(events.Event{Type: events.CommandIssued, DeviceID: deviceID, Data: map[string]any{
		"id":      id,
		"command": command,
		"value":   value,
	}})

	return id, nil
}

// SendRelayMessage appends payload to toKey's inbox.
func (e *Engine) SendRelayMessage(
	ctx context.Context, apiKey, fromKey, toKey string, payload json.RawMessage) (string, error) {
	if err := e.AuthorizeRelay(apiKey); err != nil {
		return "", err
	}

	if fromKey == "" {
		return "", models.MissingField("client_id")
	}

	if toKey == "" {
		return "", models.MissingField("target")
	}

	switch {
	case len(payload) == 0:
		payload = nil
	case !json.Valid(payload):
		return "", &models.FieldError{Field: "data", Reason: "invalid JSON"}
	}

	id, err := e.inbox.Send(ctx, toKey, fromKey, payload)
	if err != nil {
		return "", err
	}

	e.publish(events.Event{Type: events.RelayMessageSent, ClientID: fromKey, Data: map[string]string{
		"id": id,
		"to": toKey,
	}})

	return id, nil
}

// ReceiveRelayMessages returns key's inbox, draining it when clear is set.
func (e *Engine) ReceiveRelayMessages(
	ctx context.Context, apiKey, key string, clear bool) ([]models.RelayMessage, error) {
	if err := e.AuthorizeRelay(apiKey); err != nil {
		return nil, err
	}

	if key == "" {
		return nil, models.MissingField("client_id")
	}

	return e.inbox.Receive(ctx, key, clear)
}

// Heartbeat marks a relay client as alive and returns the recorded time.
func (e *Engine) Heartbeat(ctx context.Context, apiKey, clientID, address string) (time.Time, error) {
	if err := e.AuthorizeRelay(apiKey); err != nil {
		return time.Time{}, err
	}

	if clientID == "" {
		return time.Time{}, models.MissingField("client_id")
	}

	seen, err := e.presence.TouchClient(ctx, clientID, address)
	if err != nil {
		return time.Time{}, err
	}

	e.publish(events.Event{Type: events.ClientHeartbeat, ClientID: clientID, Timestamp: seen})

	return seen, nil
}

// OnlineClients returns the relay clients seen within the client window.
func (e *Engine) OnlineClients(ctx context.Context, apiKey string) (map[string]models.PresenceRecord, error) {
	if err := e.AuthorizeRelay(apiKey); err != nil {
		return nil, err
	}

	return e.presence.SnapshotAll(ctx, models.PresenceClient, e.config.ClientOnlineWindow)
}

func (e *Engine) ListDevices(ctx context.Context) ([]models.DeviceStatus, error) {
	return e.telemetry.List(ctx)
}

func (e *Engine) Device(ctx context.Context, deviceID string) (models.DeviceStatus, error) {
	return e.telemetry.Get(ctx, deviceID)
}

func (e *Engine) DeviceHistory(ctx context.Context, deviceID string) ([]models.DeviceSnapshot, error) {
	return e.telemetry.History(ctx, deviceID)
}

// PendingCommand shows the queued command without consuming it.
func (e *Engine) PendingCommand(ctx context.Context, deviceID string) (models.PendingCommand, bool, error) {
	if deviceID == "" {
		return models.PendingCommand{}, false, models.MissingField("device_id")
	}

	return e.mailbox.Peek(ctx, deviceID)
}

func (e *Engine) CommunicationLog(ctx context.Context) ([]models.LogEntry, error) {
	return e.commlog.Recent(ctx)
}

// RemoveDevice deletes a device's telemetry and pending command.
func (e *Engine) RemoveDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return models.MissingField("device_id")
	}

	if err := e.telemetry.Remove(ctx, deviceID); err != nil {
		return err
	}

	e.logger.WithField("device_id", deviceID).Info("device removed")
	e.publish(events.Event{Type: events.DeviceRemoved, DeviceID: deviceID})

	return nil
}

// Subscribe returns a live feed of engine events.
func (e *Engine) Subscribe() *events.Subscription {
	return e.hub.Subscribe()
}

func (e *Engine) publish(event events.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}

	e.hub.Publish(event)
}
