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

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mfreeman451/thermorelay/pkg/alerts"
	"github.com/mfreeman451/thermorelay/pkg/events"
	"github.com/mfreeman451/thermorelay/pkg/models"
	"github.com/sirupsen/logrus"
)

const DefaultMonitorInterval = 30 * time.Second

// Monitor periodically compares every device's liveness with the previous
// pass and raises alerts on offline and recovery transitions. The first
// pass only records a baseline.
type Monitor struct {
	engine      *Engine
	alerters    []alerts.AlertService
	interval    time.Duration
	getHostname func() string

	mu    sync.Mutex
	state map[string]bool
}

func NewMonitor(e *Engine, interval time.Duration, alerters ...alerts.AlertService) *Monitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}

	return &Monitor{
		engine:   e,
		alerters: alerters,
		interval: interval,
		getHostname: func() string {
			hostname, err := os.Hostname()
			if err != nil {
				return "unknown"
			}

			return hostname
		},
	}
}

// Run checks devices every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Check(ctx); err != nil {
				m.engine.logger.WithError(err).Error("device check failed")
			}
		}
	}
}

// Start runs the monitor as a lifecycle service; it returns once ctx ends.
func (m *Monitor) Start(ctx context.Context) error {
	m.Run(ctx)

	return nil
}

func (*Monitor) Stop(context.Context) error {
	return nil
}

// Check runs one monitoring pass.
func (m *Monitor) Check(ctx context.Context) error {
	devices, err := m.engine.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	first := m.state == nil
	next := make(map[string]bool, len(devices))

	for i := range devices {
		device := &devices[i]
		next[device.DeviceID] = device.Online

		previous, known := m.state[device.DeviceID]
		if first || !known || previous == device.Online {
			continue
		}

		if device.Online {
			m.transition(ctx, device, events.DeviceRecovered, alerts.Info, "Device Recovered",
				fmt.Sprintf("Device '%s' is back online", device.DeviceName))
		} else {
			m.transition(ctx, device, events.DeviceOffline, alerts.Warning, "Device Offline",
				fmt.Sprintf("Device '%s' stopped reporting", device.DeviceName))
		}
	}

	m.state = next

	return nil
}

func (m *Monitor) transition(
	ctx context.Context, device *models.DeviceStatus, kind events.Type, level alerts.AlertLevel, title, message string) {
	m.engine.logger.WithFields(logrus.Fields{
		"device_id": device.DeviceID,
		"last_seen": device.LastSeen,
	}).Info(title)

	m.engine.publish(events.Event{Type: kind, DeviceID: device.DeviceID, Data: device})

	for _, alerter := range m.alerters {
		if !alerter.IsEnabled() {
			continue
		}

		alert := &alerts.WebhookAlert{
			Level:    level,
			Title:    title,
			Message:  message,
			DeviceID: device.DeviceID,
			Details: map[string]any{
				"hostname":  m.getHostname(),
				"last_seen": device.LastSeen.UTC().Format(time.RFC3339),
				"client_ip": device.ClientIP,
			},
		}

		if err := alerter.Alert(ctx, alert); err != nil && !errors.Is(err, alerts.ErrWebhookCooldown) {
			m.engine.logger.WithError(err).WithField("device_id", device.DeviceID).Error("failed to send alert")
		}
	}
}
