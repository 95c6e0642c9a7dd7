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
	"errors"
	"fmt"
	"time"

	"github.com/mfreeman451/thermorelay/pkg/alerts"
	"github.com/mfreeman451/thermorelay/pkg/engine"
	"github.com/mfreeman451/thermorelay/pkg/models"
)

var (
	errInvalidDuration = errors.New("invalid duration")
	errInvalidEnv      = errors.New("invalid environment value")
	errInvalidConfig   = errors.New("invalid configuration")
)

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		// numeric values are nanoseconds
		*d = Duration(time.Duration(value))

		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %w", errInvalidDuration, err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

type HTTPConfig struct {
	ListenAddr     string   `json:"listen_addr"`
	MaxConnections int      `json:"max_connections"`
	RateLimit      float64  `json:"rate_limit"` // requests per second per client IP, 0 disables
	RateBurst      int      `json:"rate_burst"`
	ReadTimeout    Duration `json:"read_timeout"`
	WriteTimeout   Duration `json:"write_timeout"`
}

type RedisConfig struct {
	Addr      string `json:"addr"`
	Password  string `json:"password,omitempty"`
	DB        int    `json:"db"`
	Namespace string `json:"namespace"`
}

type StorageConfig struct {
	Backend string      `json:"backend"`
	Path    string      `json:"path"`
	Redis   RedisConfig `json:"redis"`
}

type EngineConfig struct {
	DeviceSecret       string   `json:"device_secret,omitempty"`
	RelaySecret        string   `json:"relay_secret,omitempty"`
	HistoryCapacity    int      `json:"history_capacity"`
	LogCapacity        int      `json:"log_capacity"`
	InboxCapacity      int      `json:"inbox_capacity"`
	DeviceOnlineWindow Duration `json:"device_online_window"`
	ClientOnlineWindow Duration `json:"client_online_window"`
}

type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         byte   `json:"qos"`
}

type MonitorConfig struct {
	Enabled  bool                   `json:"enabled"`
	Interval Duration               `json:"interval"`
	Webhooks []alerts.WebhookConfig `json:"webhooks,omitempty"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Config represents the configuration for the relay service.
type Config struct {
	HTTP    HTTPConfig           `json:"http"`
	Storage StorageConfig        `json:"storage"`
	Engine  EngineConfig         `json:"engine"`
	MQTT    MQTTConfig           `json:"mqtt"`
	Monitor MonitorConfig        `json:"monitor"`
	Metrics models.MetricsConfig `json:"metrics"`
	Logging LoggingConfig        `json:"logging"`
}

// Default returns a configuration that runs a local SQLite-backed relay.
// Secrets have no default.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			ListenAddr:     ":8080",
			MaxConnections: 256,
			RateLimit:      20,
			RateBurst:      40,
			ReadTimeout:    Duration(10 * time.Second),
			WriteTimeout:   Duration(10 * time.Second),
		},
		Storage: StorageConfig{
			Backend: BackendSQLite,
			Path:    "/var/lib/thermorelay/state.db",
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				Namespace: "thermorelay:",
			},
		},
		Engine: EngineConfig{
			HistoryCapacity:    engine.DefaultHistoryCapacity,
			LogCapacity:        engine.DefaultLogCapacity,
			InboxCapacity:      engine.DefaultInboxCapacity,
			DeviceOnlineWindow: Duration(engine.DefaultDeviceOnlineWindow),
			ClientOnlineWindow: Duration(engine.DefaultClientOnlineWindow),
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "thermorelay",
			TopicPrefix: "thermorelay",
			QoS:         1,
		},
		Monitor: MonitorConfig{
			Enabled:  true,
			Interval: Duration(engine.DefaultMonitorInterval),
		},
		Metrics: models.MetricsConfig{
			Enabled:   true,
			Retention: 100,
			MaxRoutes: 32,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// EngineConfig converts the file form into the engine's configuration.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		DeviceSecret:       c.Engine.DeviceSecret,
		RelaySecret:        c.Engine.RelaySecret,
		HistoryCapacity:    c.Engine.HistoryCapacity,
		LogCapacity:        c.Engine.LogCapacity,
		InboxCapacity:      c.Engine.InboxCapacity,
		DeviceOnlineWindow: time.Duration(c.Engine.DeviceOnlineWindow),
		ClientOnlineWindow: time.Duration(c.Engine.ClientOnlineWindow),
	}
}

func (c *Config) Validate() error {
	engineCfg := c.EngineConfig()
	if err := engineCfg.Validate(); err != nil {
		return err
	}

	if c.HTTP.ListenAddr == "" {
		return fmt.Errorf("%w: http.listen_addr is required", errInvalidConfig)
	}

	switch c.Storage.Backend {
	case BackendSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required for sqlite", errInvalidConfig)
		}
	case BackendRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("%w: storage.redis.addr is required for redis", errInvalidConfig)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown storage backend %q", errInvalidConfig, c.Storage.Backend)
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("%w: mqtt.broker is required when mqtt is enabled", errInvalidConfig)
	}

	if c.MQTT.QoS > 2 {
		return fmt.Errorf("%w: mqtt.qos must be 0, 1 or 2", errInvalidConfig)
	}

	return nil
}
