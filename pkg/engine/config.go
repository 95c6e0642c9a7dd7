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
	"fmt"
	"time"
)

const (
	DefaultHistoryCapacity    = 5
	DefaultLogCapacity        = 5
	DefaultInboxCapacity      = 100
	DefaultDeviceOnlineWindow = 120 * time.Second
	DefaultClientOnlineWindow = 300 * time.Second
)

// Config holds the engine's secrets, retention capacities and liveness
// windows. Zero capacities and windows take their defaults.
type Config struct {
	DeviceSecret       string
	RelaySecret        string
	HistoryCapacity    int
	LogCapacity        int
	InboxCapacity      int
	DeviceOnlineWindow time.Duration
	ClientOnlineWindow time.Duration
}

func (c *Config) applyDefaults() {
	if c.HistoryCapacity == 0 {
		c.HistoryCapacity = DefaultHistoryCapacity
	}

	if c.LogCapacity == 0 {
		c.LogCapacity = DefaultLogCapacity
	}

	if c.InboxCapacity == 0 {
		c.InboxCapacity = DefaultInboxCapacity
	}

	if c.DeviceOnlineWindow == 0 {
		c.DeviceOnlineWindow = DefaultDeviceOnlineWindow
	}

	if c.ClientOnlineWindow == 0 {
		c.ClientOnlineWindow = DefaultClientOnlineWindow
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.DeviceSecret == "":
		return fmt.Errorf("%w: device secret is required", ErrInvalidConfig)
	case c.RelaySecret == "":
		return fmt.Errorf("%w: relay secret is required", ErrInvalidConfig)
	case c.HistoryCapacity < 1:
		return fmt.Errorf("%w: history capacity must be positive", ErrInvalidConfig)
	case c.LogCapacity < 1:
		return fmt.Errorf("%w: log capacity must be positive", ErrInvalidConfig)
	case c.InboxCapacity < 1:
		return fmt.Errorf("%w: inbox capacity must be positive", ErrInvalidConfig)
	case c.DeviceOnlineWindow <= 0:
		return fmt.Errorf("%w: device online window must be positive", ErrInvalidConfig)
	case c.ClientOnlineWindow <= 0:
		return fmt.Errorf("%w: client online window must be positive", ErrInvalidConfig)
	}

	return nil
}
