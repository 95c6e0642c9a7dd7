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

package models

import (
	"encoding/json"
	"time"
)

// Command is a control instruction a device understands.
type Command string

const (
	CommandTurnOn       Command = "turn_on"
	CommandTurnOff      Command = "turn_off"
	CommandSetAutoTemp  Command = "set_auto_temp"
	CommandSetAutoTimer Command = "set_auto_timer"
	CommandSetTemp      Command = "set_temp"
	CommandSetName      Command = "set_name"
)

// Commands lists every command accepted by the mailbox.
var Commands = []Command{
	CommandTurnOn,
	CommandTurnOff,
	CommandSetAutoTemp,
	CommandSetAutoTimer,
	CommandSetTemp,
	CommandSetName,
}

// Valid reports whether c belongs to the fixed command set.
func (c Command) Valid() bool {
	for _, known := range Commands {
		if c == known {
			return true
		}
	}

	return false
}

// PendingCommand is the single queued instruction for a device.
type PendingCommand struct {
	CommandID string          `json:"id"`
	Command   Command         `json:"command"`
	Value     json.RawMessage `json:"value,omitempty"`
	IssuedAt  time.Time       `json:"timestamp"`
}

// CommandResponse is what a device receives after posting telemetry.
// The zero value encodes as {}.
type CommandResponse struct {
	Command Command         `json:"command,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
}

// Empty reports whether no command is carried.
func (r CommandResponse) Empty() bool {
	return r.Command == ""
}

// ResponseFor converts a consumed command into the device response.
func ResponseFor(cmd *PendingCommand) CommandResponse {
	if cmd == nil {
		return CommandResponse{}
	}

	return CommandResponse{
		Command: cmd.Command,
		Value:   cmd.Value,
	}
}
