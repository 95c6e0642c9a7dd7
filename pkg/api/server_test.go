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

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mfreeman451/thermorelay/pkg/engine"
	"github.com/mfreeman451/thermorelay/pkg/events"
	"github.com/mfreeman451/thermorelay/pkg/kvstore"
	"github.com/mfreeman451/thermorelay/pkg/metrics"
	"github.com/mfreeman451/thermorelay/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	deviceSecret = "device-secret"
	relaySecret  = "relay-secret"
)

type fixture struct {
	server  *APIServer
	engine  *engine.Engine
	hub     *events.Hub
	metrics metrics.MetricCollector
	logs    *test.Hook
}

func newFixture(t *testing.T, backend kvstore.Backend, opts Options) *fixture {
	t.Helper()

	logger, logs := test.NewNullLogger()
	hub := events.NewHub(16)

	e, err := engine.New(kvstore.New(backend), engine.Config{
		DeviceSecret: deviceSecret,
		RelaySecret:  relaySecret,
	}, engine.WithLogger(logger), engine.WithEventHub(hub))
	require.NoError(t, err)

	if opts.Metrics == nil {
		opts.Metrics = metrics.NewManager(models.MetricsConfig{Enabled: true, Retention: 10, MaxRoutes: 20})
	}

	opts.Logger = logger

	return &fixture{
		server:  NewAPIServer(e, opts),
		engine:  e,
		hub:     hub,
		metrics: opts.Metrics,
		logs:    logs,
	}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()

	f.server.Handler().ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())

	return out
}

func statusBody(deviceID string) string {
	return `{"api_key":"` + deviceSecret + `","device_id":"` + deviceID +
		`","device_name":"Kitchen","timestamp":1700000000,"current_temp":21.5}`
}

func TestStatus_DeliversCommandOnce(t *testing.T) {
	f := newFixture(t, kvstore.NewMemoryBackend(), Options{})

	rec := f.do(t, http.MethodPost, "/api/devices/D1/command", `{"command":"turn_on"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	issued := decode[issueCommandResponse](t, rec)
	assert.True(t, issued.Success)
	assert.NotEmpty(t, issued.CommandID)

	rec = f.do(t, http.MethodPost, "/api/status", statusBody("D1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"command":"turn_on"}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/status", statusBody("D1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())

	device, err := f.engine.Device(context.Background(), "D1")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", device.ClientIP)
	assert.True(t, device.Online)
}

func TestStatus_Errors(t *testing.T) {
	f := newFixture(t, kvstore.NewMemoryBackend(), Options{})

	tests := []struct {
		name    string
		method  string
		body    string
		status  int
		message string
	}{
		{"invalid json", http.MethodPost, `{nope`, http.StatusBadRequest, "Invalid JSON"},
		{"bad key", http.MethodPost, `{"api_key":"wrong","device_id":"D1"}`, http.StatusUnauthorized, "Invalid API key"},
		{
			"missing name", http.MethodPost,
			`{"api_key":"` + deviceSecret + `","device_id":"D1","timestamp":1}`,
			http.StatusBadRequest, "Missing required field: device_name",
		},
		{
			"non-numeric timestamp", http.MethodPost,
			`{"api_key":"` + deviceSecret + `","device_id":"D1","device_name":"Kitchen","timestamp":"noon"}`,
			http.StatusBadRequest, "invalid field timestamp: must be a number",
		},
		{
			"non-numeric uptime", http.MethodPost,
			`{"api_key":"` + deviceSecret + `","device_id":"D1","device_name":"Kitchen","timestamp":1,"uptime":[1]}`,
			http.StatusBadRequest, "invalid field uptime: must be a number",
		},
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed, "Method not allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, "/api/status", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decode[errorResponse](t, rec).Error)
		})
	}

	devices, err := f.engine.ListDevices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestStatus_AcceptsLooseNumbers(t *testing.T) {
	f := newFixture(t, kvstore.NewMemoryBackend(), Options{})

	tests := []struct {
		name      string
		timestamp string
		uptime    string
		want      int64
	}{
		{"integer", `1000`, `12`, 1000},
		{"fraction", `1000.5`, `12.0`, 1000},
		{"string", `"1000"`, `"12"`, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"api_key":"` + deviceSecret + `","device_id":"D1","device_name":"Kitchen",` +
				`"timestamp":` + tt.timestamp + `,"uptime":` + tt.uptime + `}`

			rec := f.do(t, http.MethodPost, "/api/status", body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.JSONEq(t, `{}`, rec.Body.String())

			device, err := f.engine.Device(context.Background(), "D1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, device.ReportedTimestamp)
			assert.Equal(t, int64(12), device.UptimeMillis)
		})
	}
}

func TestStorageFailureIsUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := kvstore.NewMockBackend(ctrl)
	f := newFixture(t, backend, Options{})

	backend.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, false, errors.New("disk gone")).AnyTimes()

	rec := f.do(t, http.MethodPost, "/api/status", statusBody("D1"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Storage unavailable", decode[errorResponse](t, rec).Error)
}

func relayURL(action, clientID string, extra ...string) string {
	u := "/api/relay?api_key=" + relaySecret + "&action=" + action
	if clientID != "" {
		u += "&client_id=" + clientID
	}

	for _, e := range extra {
		u += "&" + e
	}

	return u
}

func TestRelay_SendReceiveClear(t *testing.T) {
	f := newFixture(t, kvstore.NewMemoryBackend(), Options{})

	rec := f.do(t, http.MethodPost, relayURL("send", "A", "target=B"), `{"hello":"world"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sent := decode[sendResponse](t, rec)
	assert.True(t, sent.Success)
	assert.NotEmpty(t, sent.MessageID)

	rec = f.do(t, http.MethodGet, relayURL("receive", "B"), "")
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[receiveResponse](t, rec)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "A", got.Messages[0].FromKey)
	assert.Equal(t, "B", got.Messages[0].ToKey)
	assert.JSONEq(t, `{"hello":"world"}`, string(got.Messages[0].Payload))

	rec = f.do(t, http.MethodGet, relayURL("receive", "B", "clear=true"), "")
	require.Len(t, decode[receiveResponse](t, rec).Messages, 1)

	rec = f.do(t, http.MethodGet, relayURL("receive", "B"), "")
	assert.JSONEq(t, `{"messages":[]}`, rec.Body.String())
}

func TestRelay_Errors(t *testing.T) {
	f := newFixture(t, kvstore.NewMemoryBackend(), Options{})

	tests := []struct {
		name    string
		method  string
		target  string
		body    string
		status  int
		message string
	}{
		{
			"bad key", http.MethodGet, "/api/relay?api_key=nope&client_id=A&action=receive", "",
			http.StatusUnauthorized, "Invalid API key",
		},
		{"no client", http.MethodGet, relayURL("receive", ""), "", http.StatusBadRequest, "client_id required"},
		{"no target", http.MethodPost, relayURL("send", "A"), `{}`, http.StatusBadRequest, "target client required"},
		{"send via get", http.MethodGet, relayURL("send", "A", "target=B"), "", http.StatusMethodNotAllowed, "Method not allowed"},
		{"receive via post", http.MethodPost, relayURL("receive", "A"), "", http.StatusMethodNotAllowed, "Method not allowed"},
		{"bad payload", http.MethodPost, relayURL("send", "A", "target=B"), `{oops`, http.StatusBadRequest, "Invalid JSON"},
		{"unknown action", http.MethodGet, relayURL("dance", "A"), "", http.StatusBadRequest, "Unknown action"},
		{
			"command without device", http.MethodGet, relayURL("esp_commands", "A", "command=turn_on"), "",
			http.StatusBadRequest, "device_id and command required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decode[errorResponse](t, rec).Error)
		})
	}
}

func TestRelay_HeartbeatAndStatus(t *testing.T) {
	f := newFixture(t, kvstore.NewMemoryBackend(), Options{})

	rec := f.do(t, http.MethodGet, relayURL("heartbeat", "A"), "")
	require.Equal(t, http.StatusOK, rec.Code)

	beat := decode[heartbeatResponse](t, rec)
	assert.True(t, beat.Success)
	assert.Positive(t, beat.Timestamp)

	rec = f.do(t, http.MethodGet, relayURL("status", "B"), "")
	require.Equal(t, http.StatusOK, rec.Code)

	status := decode[clientsResponse](t, rec)
	require.Contains(t, status.Clients, "A")
	assert.True(t, status.Clients["A"].Online)
	assert.Equal(t, "192.0.2.1", status.Clients["A"].IP)
	assert.Equal(t, beat.Timestamp, status.Clients["A"].LastSeen)
}

func TestRelay_ESPCommandsAndDevices(t *testing.T) {
	f := newFixture(t, kvstore.NewMemoryBackend(), Options{})

	rec := f.do(t, http.MethodGet, relayURL("esp_commands", "A", "device_id=D1", "command=set_temp", "value=22.5"), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[issueCommandResponse](t, rec).Success)

	rec = f.do(t, http.MethodPost, "/api/status", statusBody("D1"))
	assert.JSONEq(t, `{"command":"set_temp","value":"22.5"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, relayURL("esp_commands", "A", "device_id=D1", "command=explode"), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, relayURL("esp_devices", "A"), "")
	require.Equal(t, http.StatusOK, rec.Code)

	devices := decode[[]models.DeviceStatus](t, rec)
	require.Len(t, devices, 1)
	assert.Equal(t, "D1", devices[0].DeviceID)
}

func TestDashboardEndpoints(t *testing.T) {
	f := newFixture(t, kvstore.NewMemoryBackend(), Options{})

	rec := f.do(t, http.MethodGet, "/api/devices/D1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/status", statusBody("D1")).Code)
	}

	rec = f.do(t, http.MethodGet, "/api/devices/D1/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.DeviceSnapshot](t, rec), 3)

	rec = f.do(t, http.MethodGet, "/api/log", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.LogEntry](t, rec), 3)

	rec = f.do(t, http.MethodGet, "/api/devices/D1/command", "")
	assert.JSONEq(t, `{"pending":false}`, rec.Body.String())

	f.do(t, http.MethodPost, "/api/devices/D1/command", `{"command":"set_name","value":"Hall"}`)

	rec = f.do(t, http.MethodGet, "/api/devices/D1/command", "")
	pending := decode[pendingCommandResponse](t, rec)
	require.True(t, pending.Pending)
	assert.Equal(t, models.CommandSetName, pending.Command.Command)

	rec = f.do(t, http.MethodDelete, "/api/devices/D1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = f.do(t, http.MethodDelete, "/api/devices/D1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	points := decode[map[string][]models.MetricPoint](t, rec)
	assert.Len(t, points["/api/status"], 3)
	assert.Contains(t, points, "/api/devices/{id}")
}

func TestRouting(t *testing.T) {
	f := newFixture(t, kvstore.NewMemoryBackend(), Options{})

	rec := f.do(t, http.MethodGet, "/api/nothing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = f.do(t, http.MethodOptions, "/api/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = f.do(t, http.MethodPut, "/api/relay", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRateLimitPerClient(t *testing.T) {
	f := newFixture(t, kvstore.NewMemoryBackend(), Options{RateLimit: 0.001, RateBurst: 2})

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/log", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/log", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(t, http.MethodGet, "/api/log", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/log", nil)
	req.RemoteAddr = "198.51.100.7:4000"

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIPRateLimiterPrunesIdleClients(t *testing.T) {
	l := newIPRateLimiter(1, 1)
	start := time.Now()

	assert.True(t, l.allow("a", start))
	assert.False(t, l.allow("a", start))

	later := start.Add(limiterIdleTTL + time.Second)
	assert.True(t, l.allow("b", later))
	assert.NotContains(t, l.clients, "a")
}

func TestWebSocketStreamsEvents(t *testing.T) {
	f := newFixture(t, kvstore.NewMemoryBackend(), Options{})

	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws", nil)
	require.NoError(t, err)

	defer resp.Body.Close()
	defer conn.Close()

	require.Eventually(t, func() bool { return f.hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	_, err = f.engine.IssueCommand(context.Background(), "D1", models.CommandTurnOff, nil)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var event events.Event

	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, events.CommandIssued, event.Type)
	assert.Equal(t, "D1", event.DeviceID)

	require.NoError(t, f.server.Stop(context.Background()))

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	require.Eventually(t, func() bool { return f.hub.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWebSocketReportsMissedEvents(t *testing.T) {
	f := newFixture(t, kvstore.NewMemoryBackend(), Options{})
	hub := events.NewHub(1)
	f.logs.Reset()

	quiet := hub.Subscribe()
	f.server.closeSubscription(quiet)
	assert.Empty(t, f.logs.AllEntries())

	slow := hub.Subscribe()
	hub.Publish(events.Event{Type: events.CommandIssued})
	hub.Publish(events.Event{Type: events.CommandDelivered})
	hub.Publish(events.Event{Type: events.DeviceRemoved})

	f.server.closeSubscription(slow)

	entry := f.logs.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "websocket client missed events", entry.Message)
	assert.Equal(t, int64(2), entry.Data["dropped"])
	assert.Equal(t, 0, hub.Subscribers())
}
