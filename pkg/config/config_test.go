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

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mfreeman451/thermorelay/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{`"120s"`, 120 * time.Second, false},
		{`"5m"`, 5 * time.Minute, false},
		{`1000000000`, time.Second, false},
		{`"soon"`, 0, true},
		{`true`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var d Duration

			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, time.Duration(d))
		})
	}
}

func TestLoad_FileAndEnvOverlay(t *testing.T) {
	dir := t.TempDir()

	path := writeFile(t, dir, "thermorelay.json", `{
		"http": {"listen_addr": ":9090"},
		"storage": {"backend": "memory"},
		"engine": {
			"device_secret": "from-file",
			"relay_secret": "relay-from-file",
			"inbox_capacity": 50,
			"client_online_window": "10m"
		},
		"monitor": {
			"webhooks": [{"enabled": true, "url": "http://hook", "cooldown": "15m"}]
		}
	}`)
	envFile := writeFile(t, dir, ".env", "THERMORELAY_DEVICE_SECRET=from-dotenv\n")

	t.Setenv(EnvRelaySecret, "relay-from-env")

	cfg, err := Load(path, envFile)
	require.NoError(t, err)

	t.Cleanup(func() { _ = os.Unsetenv(EnvDeviceSecret) })

	assert.Equal(t, ":9090", cfg.HTTP.ListenAddr)
	assert.Equal(t, "from-dotenv", cfg.Engine.DeviceSecret)
	assert.Equal(t, "relay-from-env", cfg.Engine.RelaySecret)
	require.Len(t, cfg.Monitor.Webhooks, 1)
	assert.Equal(t, 15*time.Minute, cfg.Monitor.Webhooks[0].Cooldown)

	ec := cfg.EngineConfig()
	assert.Equal(t, 50, ec.InboxCapacity)
	assert.Equal(t, engine.DefaultHistoryCapacity, ec.HistoryCapacity)
	assert.Equal(t, 10*time.Minute, ec.ClientOnlineWindow)
	assert.Equal(t, engine.DefaultDeviceOnlineWindow, ec.DeviceOnlineWindow)
}

func TestLoad_MissingEnvFileIsFine(t *testing.T) {
	t.Setenv(EnvDeviceSecret, "d")
	t.Setenv(EnvRelaySecret, "r")
	t.Setenv(EnvDBPath, filepath.Join(t.TempDir(), "state.db"))

	cfg, err := Load("", filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
}

func TestLoad_RequiresSecrets(t *testing.T) {
	t.Setenv(EnvDeviceSecret, "")
	t.Setenv(EnvRelaySecret, "")

	_, err := Load("", "")
	require.ErrorIs(t, err, engine.ErrInvalidConfig)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Engine.DeviceSecret = "d"
		cfg.Engine.RelaySecret = "r"

		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "etcd" }},
		{"sqlite without path", func(c *Config) { c.Storage.Path = "" }},
		{"redis without addr", func(c *Config) {
			c.Storage.Backend = BackendRedis
			c.Storage.Redis.Addr = ""
		}},
		{"mqtt without broker", func(c *Config) {
			c.MQTT.Enabled = true
			c.MQTT.Broker = ""
		}},
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }},
		{"no listen addr", func(c *Config) { c.HTTP.ListenAddr = "" }},
		{"zero inbox", func(c *Config) { c.Engine.InboxCapacity = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestApplyEnv_BadNumber(t *testing.T) {
	cfg := Default()

	err := cfg.ApplyEnv(func(key string) (string, bool) {
		if key == EnvMaxConns {
			return "lots", true
		}

		return "", false
	})
	require.ErrorIs(t, err, errInvalidEnv)
}
