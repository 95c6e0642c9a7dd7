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
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mfreeman451/thermorelay/pkg/models"
)

// handleStatus is the device endpoint: record the report, answer with the
// pending command or {}.
func (s *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	var report models.TelemetryReport

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON"})

		return
	}

	report.ClientIP = clientIP(r)

	resp, err := s.engine.IngestTelemetry(r.Context(), report.APIKey, &report)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) getDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.engine.ListDevices(r.Context())
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, devices)
}

func (s *APIServer) getDevice(w http.ResponseWriter, r *http.Request) {
	device, err := s.engine.Device(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, device)
}

func (s *APIServer) deleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RemoveDevice(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *APIServer) getDeviceHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.engine.DeviceHistory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, history)
}

type pendingCommandResponse struct {
	Pending bool                   `json:"pending"`
	Command *models.PendingCommand `json:"command,omitempty"`
}

func (s *APIServer) getDeviceCommand(w http.ResponseWriter, r *http.Request) {
	cmd, ok, err := s.engine.PendingCommand(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	resp := pendingCommandResponse{Pending: ok}
	if ok {
		resp.Command = &cmd
	}

	writeJSON(w, http.StatusOK, resp)
}

type issueCommandRequest struct {
	Command models.Command  `json:"command"`
	Value   json.RawMessage `json:"value,omitempty"`
}

type issueCommandResponse struct {
	Success   bool   `json:"success"`
	CommandID string `json:"command_id"`
	Message   string `json:"message"`
}

func (s *APIServer) postDeviceCommand(w http.ResponseWriter, r *http.Request) {
	var req issueCommandRequest

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON"})

		return
	}

	s.issueCommand(w, r, mux.Vars(r)["id"], req.Command, req.Value)
}

func (s *APIServer) issueCommand(
	w http.ResponseWriter, r *http.Request, deviceID string, command models.Command, value json.RawMessage) {
	id, err := s.engine.IssueCommand(r.Context(), deviceID, command, value)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, issueCommandResponse{
		Success:   true,
		CommandID: id,
		Message:   "Command queued for device",
	})
}

func (s *APIServer) getCommunicationLog(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.CommunicationLog(r.Context())
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func (s *APIServer) getMetrics(w http.ResponseWriter, r *http.Request) {
	out := make(map[string][]models.MetricPoint)

	if s.metrics != nil {
		if route := r.URL.Query().Get("route"); route != "" {
			out[route] = s.metrics.GetMetrics(route)
		} else {
			for _, name := range s.metrics.Routes() {
				out[name] = s.metrics.GetMetrics(name)
			}
		}
	}

	writeJSON(w, http.StatusOK, out)
}
