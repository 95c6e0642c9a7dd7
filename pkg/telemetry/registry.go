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

// Package telemetry keeps the latest snapshot and a bounded history for
// every reporting device.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mfreeman451/thermorelay/pkg/bounded"
	"github.com/mfreeman451/thermorelay/pkg/kvstore"
	"github.com/mfreeman451/thermorelay/pkg/mailbox"
	"github.com/mfreeman451/thermorelay/pkg/models"
	"github.com/mfreeman451/thermorelay/pkg/presence"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "device:"

// ErrDeviceNotFound is returned for devices that never reported or were
// removed.
var ErrDeviceNotFound = errors.New("device not found")

// Key returns the store key of a device record.
func Key(deviceID string) string {
	return keyPrefix + deviceID
}

type Config struct {
	HistoryCapacity int
	OnlineWindow    time.Duration
	Logger          logrus.FieldLogger
}

// Registry records device telemetry.
type Registry struct {
	store    *kvstore.Store
	presence *presence.Tracker
	config   Config
	now      func() time.Time
}

// NewRegistry creates a Registry. A nil now uses time.Now.
func NewRegistry(store *kvstore.Store, tracker *presence.Tracker, cfg Config, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}

	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	return &Registry{
		store:    store,
		presence: tracker,
		config:   cfg,
		now:      now,
	}
}

// Record validates a report, replaces the device's current snapshot and
// appends it to the history in a single transaction. Presence is touched
// afterwards; once the snapshot is stored a presence failure is only logged.
func (r *Registry) Record(ctx context.Context, report *models.TelemetryReport) (models.DeviceSnapshot, error) {
	if err := Validate(report); err != nil {
		return models.DeviceSnapshot{}, err
	}

	snapshot := BuildSnapshot(report, r.now())

	err := kvstore.Update(ctx, r.store, Key(snapshot.DeviceID),
		func(cur models.DeviceRecord, _ bool) (models.DeviceRecord, bool, error) {
			return models.DeviceRecord{
				Current: snapshot,
				History: bounded.Append(cur.History, r.config.HistoryCapacity, snapshot),
			}, true, nil
		})
	if err != nil {
		return models.DeviceSnapshot{}, err
	}

	if r.presence != nil {
		if err := r.presence.TouchDevice(ctx, snapshot.DeviceID, snapshot.ClientIP); err != nil {
			r.config.Logger.WithError(err).WithField("device_id", snapshot.DeviceID).
				Warn("failed to update device presence")
		}
	}

	return snapshot, nil
}

// Validate checks the required telemetry fields.
func Validate(report *models.TelemetryReport) error {
	switch {
	case report == nil || report.DeviceID == "":
		return models.MissingField("device_id")
	case report.DeviceName == "":
		return models.MissingField("device_name")
	case report.Timestamp == nil:
		return models.MissingField("timestamp")
	}

	numeric := []struct {
		field string
		value *models.Number
	}{
		{"timestamp", report.Timestamp},
		{"uptime", report.Uptime},
		{"fsm_state", report.FSMState},
		{"wifi_rssi", report.WifiRSSI},
	}

	for _, n := range numeric {
		if n.value == nil {
			continue
		}

		if _, err := n.value.Int64(); err != nil {
			return &models.FieldError{Field: n.field, Reason: err.Error()}
		}
	}

	return nil
}

// intValue reads a field that Validate already accepted.
func intValue(n *models.Number) int64 {
	if n == nil {
		return 0
	}

	v, _ := n.Int64()

	return v
}

// BuildSnapshot fills optional fields with their defaults.
func BuildSnapshot(report *models.TelemetryReport, receivedAt time.Time) models.DeviceSnapshot {
	snapshot := models.DeviceSnapshot{
		DeviceID:          report.DeviceID,
		DeviceName:        report.DeviceName,
		ReceivedAt:        receivedAt,
		ReportedTimestamp: intValue(report.Timestamp),
		DeviceState:       models.DefaultDeviceState,
		Mode:              models.DefaultMode,
		CurrentTemp:       report.CurrentTemp,
		DesiredTemp:       report.DesiredTemp,
		LocalIP:           models.UnknownAddress,
		ServerIP:          models.UnknownAddress,
		ClientIP:          report.ClientIP,
		TimerIntervals:    report.TimerIntervals,
	}

	snapshot.UptimeMillis = intValue(report.Uptime)
	snapshot.FSMState = int(intValue(report.FSMState))

	if report.WifiRSSI != nil {
		rssi := int(intValue(report.WifiRSSI))
		snapshot.WifiRSSI = &rssi
	}

	if report.DeviceState != nil {
		snapshot.DeviceState = *report.DeviceState
	}

	if report.Mode != nil {
		snapshot.Mode = *report.Mode
	}

	if report.LocalIP != nil {
		snapshot.LocalIP = *report.LocalIP
	}

	if report.ServerIP != nil {
		snapshot.ServerIP = *report.ServerIP
	}

	if snapshot.ClientIP == "" {
		snapshot.ClientIP = models.UnknownAddress
	}

	if snapshot.TimerIntervals == nil {
		snapshot.TimerIntervals = []json.RawMessage{}
	}

	return snapshot
}

func (r *Registry) load(ctx context.Context, deviceID string) (models.DeviceRecord, error) {
	rec, ok, err := kvstore.Load[models.DeviceRecord](ctx, r.store, Key(deviceID))
	if err != nil {
		return models.DeviceRecord{}, err
	}

	if !ok {
		return models.DeviceRecord{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	return rec, nil
}

// Get returns the device's current status.
func (r *Registry) Get(ctx context.Context, deviceID string) (models.DeviceStatus, error) {
	rec, err := r.load(ctx, deviceID)
	if err != nil {
		return models.DeviceStatus{}, err
	}

	return r.status(rec.Current, r.now()), nil
}

// History returns the retained snapshots, oldest first.
func (r *Registry) History(ctx context.Context, deviceID string) ([]models.DeviceSnapshot, error) {
	rec, err := r.load(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	if rec.History == nil {
		return []models.DeviceSnapshot{}, nil
	}

	return rec.History, nil
}

// List returns every known device ordered by id.
func (r *Registry) List(ctx context.Context) ([]models.DeviceStatus, error) {
	records, err := kvstore.LoadPrefix[models.DeviceRecord](ctx, r.store, keyPrefix)
	if err != nil {
		return nil, err
	}

	now := r.now()
	statuses := make([]models.DeviceStatus, 0, len(records))

	for key, rec := range records {
		if rec.Current.DeviceID == "" {
			rec.Current.DeviceID = strings.TrimPrefix(key, keyPrefix)
		}

		statuses = append(statuses, r.status(rec.Current, now))
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].DeviceID < statuses[j].DeviceID
	})

	return statuses, nil
}

func (r *Registry) status(snapshot models.DeviceSnapshot, now time.Time) models.DeviceStatus {
	return models.DeviceStatus{
		DeviceSnapshot: snapshot,
		Online:         presence.Within(snapshot.ReceivedAt, now, r.config.OnlineWindow),
		LastSeen:       snapshot.ReceivedAt,
	}
}

// Remove deletes the device record and any pending command atomically.
func (r *Registry) Remove(ctx context.Context, deviceID string) error {
	deviceKey := Key(deviceID)
	commandKey := mailbox.Key(deviceID)

	return r.store.WithKeys(ctx, []string{deviceKey, commandKey},
		func(cur map[string][]byte) (map[string][]byte, error) {
			if cur[deviceKey] == nil && cur[commandKey] == nil {
				return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
			}

			return map[string][]byte{
				deviceKey:  nil,
				commandKey: nil,
			}, nil
		})
}
