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

// Package models pkg/models/device.go
package models

import (
	"encoding/json"
	"time"
)

const (
	DefaultDeviceState = "UNKNOWN"
	DefaultMode        = "unknown"
	UnknownAddress     = "unknown"
)

// DeviceSnapshot is the latest telemetry reported by one device.
type DeviceSnapshot struct {
	DeviceID          string            `json:"device_id"`
	DeviceName        string            `json:"device_name"`
	ReceivedAt        time.Time         `json:"received_at"`
	ReportedTimestamp int64             `json:"timestamp"`
	UptimeMillis      int64             `json:"uptime"`
	DeviceState       string            `json:"device_state"`
	FSMState          int               `json:"fsm_state"`
	CurrentTemp       *float64          `json:"current_temp"`
	DesiredTemp       *float64          `json:"desired_temp"`
	Mode              string            `json:"mode"`
	WifiRSSI          *int              `json:"wifi_rssi"`
	LocalIP           string            `json:"local_ip"`
	ServerIP          string            `json:"server_ip"`
	ClientIP          string            `json:"client_ip"`
	TimerIntervals    []json.RawMessage `json:"timer_intervals"`
}

// DeviceRecord is the stored state of a device: the current snapshot plus
// its bounded history, newest last.
type DeviceRecord struct {
	Current DeviceSnapshot   `json:"current"`
	History []DeviceSnapshot `json:"history"`
}

// DeviceStatus is a snapshot decorated with derived liveness.
type DeviceStatus struct {
	DeviceSnapshot
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}

// TelemetryReport is the decoded body of a device status POST. Pointer
// fields distinguish "absent" from a zero value. Integer fields decode
// leniently and are checked by validation.
type TelemetryReport struct {
	APIKey         string            `json:"api_key"`
	DeviceID       string            `json:"device_id"`
	DeviceName     string            `json:"device_name"`
	Timestamp      *Number           `json:"timestamp"`
	Uptime         *Number           `json:"uptime"`
	DeviceState    *string           `json:"device_state"`
	FSMState       *Number           `json:"fsm_state"`
	CurrentTemp    *float64          `json:"current_temp"`
	DesiredTemp    *float64          `json:"desired_temp"`
	Mode           *string           `json:"mode"`
	WifiRSSI       *Number           `json:"wifi_rssi"`
	LocalIP        *string           `json:"local_ip"`
	ServerIP       *string           `json:"server_ip"`
	TimerIntervals []json.RawMessage `json:"timer_intervals"`

	// ClientIP is filled in by the transport, never by the device.
	ClientIP string `json:"-"`
}
