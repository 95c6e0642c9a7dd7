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
	"errors"
	"io"
	"net/http"

	"github.com/mfreeman451/thermorelay/pkg/models"
)

const (
	actionSend        = "send"
	actionReceive     = "receive"
	actionHeartbeat   = "heartbeat"
	actionStatus      = "status"
	actionESPDevices  = "esp_devices"
	actionESPCommands = "esp_commands"
)

type sendResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id"`
}

type receiveResponse struct {
	Messages []models.RelayMessage `json:"messages"`
}

type heartbeatResponse struct {
	Success   bool  `json:"success"`
	Timestamp int64 `json:"timestamp"`
}

type clientStatus struct {
	Online   bool   `json:"online"`
	LastSeen int64  `json:"last_seen"`
	IP       string `json:"ip"`
}

type clientsResponse struct {
	Clients map[string]clientStatus `json:"clients"`
}

// handleRelay dispatches the query-driven relay actions. Authentication
// and client_id are checked before the action is looked at.
func (s *APIServer) handleRelay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	apiKey := q.Get("api_key")
	clientID := q.Get("client_id")

	if err := s.engine.AuthorizeRelay(apiKey); err != nil {
		s.writeError(w, r, err)

		return
	}

	if clientID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "client_id required"})

		return
	}

	action := q.Get("action")

	wantMethod := http.MethodGet
	if action == actionSend {
		wantMethod = http.MethodPost
	}

	if r.Method != wantMethod {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})

		return
	}

	switch action {
	case actionSend:
		s.relaySend(w, r, apiKey, clientID)
	case actionReceive:
		s.relayReceive(w, r, apiKey, clientID)
	case actionHeartbeat:
		s.relayHeartbeat(w, r, apiKey, clientID)
	case actionStatus:
		s.relayStatus(w, r, apiKey)
	case actionESPDevices:
		s.getDevices(w, r)
	case actionESPCommands:
		s.relayCommand(w, r)
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Unknown action"})
	}
}

func (s *APIServer) relaySend(w http.ResponseWriter, r *http.Request, apiKey, clientID string) {
	target := r.URL.Query().Get("target")
	if target == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "target client required"})

		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "Payload too large"})

			return
		}

		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid body"})

		return
	}

	var payload json.RawMessage

	if len(body) > 0 {
		if !json.Valid(body) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON"})

			return
		}

		payload = body
	}

	id, err := s.engine.SendRelayMessage(r.Context(), apiKey, clientID, target, payload)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, sendResponse{Success: true, MessageID: id})
}

func (s *APIServer) relayReceive(w http.ResponseWriter, r *http.Request, apiKey, clientID string) {
	drain := r.URL.Query().Get("clear") == "true"

	messages, err := s.engine.ReceiveRelayMessages(r.Context(), apiKey, clientID, drain)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, receiveResponse{Messages: messages})
}

func (s *APIServer) relayHeartbeat(w http.ResponseWriter, r *http.Request, apiKey, clientID string) {
	seen, err := s.engine.Heartbeat(r.Context(), apiKey, clientID, clientIP(r))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, heartbeatResponse{Success: true, Timestamp: seen.Unix()})
}

func (s *APIServer) relayStatus(w http.ResponseWriter, r *http.Request, apiKey string) {
	online, err := s.engine.OnlineClients(r.Context(), apiKey)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	clients := make(map[string]clientStatus, len(online))

	for id, rec := range online {
		clients[id] = clientStatus{
			Online:   true,
			LastSeen: rec.LastSeen.Unix(),
			IP:       rec.SourceAddress,
		}
	}

	writeJSON(w, http.StatusOK, clientsResponse{Clients: clients})
}

// relayCommand queues a device command from query parameters. A value,
// when given, is carried as a JSON string.
func (s *APIServer) relayCommand(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	deviceID := q.Get("device_id")
	command := q.Get("command")

	if deviceID == "" || command == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "device_id and command required"})

		return
	}

	var value json.RawMessage

	if q.Has("value") {
		encoded, err := json.Marshal(q.Get("value"))
		if err != nil {
			s.writeError(w, r, err)

			return
		}

		value = encoded
	}

	s.issueCommand(w, r, deviceID, models.Command(command), value)
}
