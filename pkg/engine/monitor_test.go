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
	"testing"
	"time"

	"github.com/mfreeman451/thermorelay/pkg/alerts"
	"github.com/mfreeman451/thermorelay/pkg/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestMonitor_AlertsOnTransitions(t *testing.T) {
	ctrl := gomock.NewController(t)
	alerter := alerts.NewMockAlertService(ctrl)

	ctx := context.Background()
	e, clock := newTestEngine(t, kvstore.NewMemoryBackend())
	monitor := NewMonitor(e, time.Minute, alerter)
	monitor.getHostname = func() string { return "relay-host" }

	_, err := e.IngestTelemetry(ctx, deviceSecret, telemetryReport("D1", 1))
	require.NoError(t, err)

	// baseline pass raises nothing
	require.NoError(t, monitor.Check(ctx))

	clock.Advance(3 * time.Minute)

	alerter.EXPECT().IsEnabled().Return(true)
	alerter.EXPECT().Alert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, alert *alerts.WebhookAlert) error {
			assert.Equal(t, alerts.Warning, alert.Level)
			assert.Equal(t, "Device Offline", alert.Title)
			assert.Equal(t, "D1", alert.DeviceID)
			assert.Equal(t, "relay-host", alert.Details["hostname"])

			return nil
		})

	require.NoError(t, monitor.Check(ctx))

	// still offline, no repeat
	require.NoError(t, monitor.Check(ctx))

	_, err = e.IngestTelemetry(ctx, deviceSecret, telemetryReport("D1", 2))
	require.NoError(t, err)

	alerter.EXPECT().IsEnabled().Return(true)
	alerter.EXPECT().Alert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, alert *alerts.WebhookAlert) error {
			assert.Equal(t, alerts.Info, alert.Level)
			assert.Equal(t, "Device Recovered", alert.Title)

			return alerts.ErrWebhookCooldown
		})

	require.NoError(t, monitor.Check(ctx))
}

func TestMonitor_SkipsDisabledAlerters(t *testing.T) {
	ctrl := gomock.NewController(t)
	alerter := alerts.NewMockAlertService(ctrl)

	ctx := context.Background()
	e, clock := newTestEngine(t, kvstore.NewMemoryBackend())
	monitor := NewMonitor(e, 0, alerter)

	_, err := e.IngestTelemetry(ctx, deviceSecret, telemetryReport("D1", 1))
	require.NoError(t, err)
	require.NoError(t, monitor.Check(ctx))

	clock.Advance(5 * time.Minute)

	alerter.EXPECT().IsEnabled().Return(false)

	require.NoError(t, monitor.Check(ctx))
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	e, _ := newTestEngine(t, kvstore.NewMemoryBackend())
	monitor := NewMonitor(e, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		monitor.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
