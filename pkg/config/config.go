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

// Package config loads the ThermoRelay configuration from a JSON file and
// overlays secrets from the environment or a .env file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	EnvDeviceSecret  = "THERMORELAY_DEVICE_SECRET"
	EnvRelaySecret   = "THERMORELAY_RELAY_SECRET"
	EnvRedisPassword = "THERMORELAY_REDIS_PASSWORD"
	EnvMQTTPassword  = "THERMORELAY_MQTT_PASSWORD"
	EnvListenAddr    = "THERMORELAY_LISTEN_ADDR"
	EnvDBPath        = "THERMORELAY_DB_PATH"
	EnvLogLevel      = "THERMORELAY_LOG_LEVEL"
	EnvMaxConns      = "THERMORELAY_MAX_CONNECTIONS"
)

// Validator interface for configurations that need validation.
type Validator interface {
	Validate() error
}

// LoadFile loads a JSON file from path into the struct pointed to by dst.
func LoadFile(path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file '%s': %w", path, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to unmarshal JSON from '%s': %w", path, err)
	}

	return nil
}

// ValidateConfig validates a configuration if it implements Validator.
func ValidateConfig(cfg interface{}) error {
	if v, ok := cfg.(Validator); ok {
		return v.Validate()
	}

	return nil
}

// Load builds the effective configuration: defaults, then the JSON file at
// path (optional), then the env file (optional, missing is fine), then the
// process environment. The result is validated.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if envFile != "" {
		// godotenv never overrides variables already set in the process.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file '%s': %w", envFile, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overrides secrets and deployment settings from lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		EnvDeviceSecret:  &c.Engine.DeviceSecret,
		EnvRelaySecret:   &c.Engine.RelaySecret,
		EnvRedisPassword: &c.Storage.Redis.Password,
		EnvMQTTPassword:  &c.MQTT.Password,
		EnvListenAddr:    &c.HTTP.ListenAddr,
		EnvDBPath:        &c.Storage.Path,
		EnvLogLevel:      &c.Logging.Level,
	}

	for key, dst := range strs {
		if value, ok := lookup(key); ok && value != "" {
			*dst = value
		}
	}

	if value, ok := lookup(EnvMaxConns); ok && value != "" {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", errInvalidEnv, EnvMaxConns, value)
		}

		c.HTTP.MaxConnections = n
	}

	return nil
}
