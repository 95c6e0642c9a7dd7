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
	"net/http"

	"github.com/mfreeman451/thermorelay/pkg/engine"
)

type errorResponse struct {
	Error string `json:"error"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an engine error to its HTTP status and client message.
func statusFor(err error) (int, string) {
	var fieldErr *engine.FieldError

	switch {
	case errors.Is(err, engine.ErrUnauthorized):
		return http.StatusUnauthorized, "Invalid API key"
	case errors.As(err, &fieldErr):
		return http.StatusBadRequest, fieldErr.Error()
	case errors.Is(err, engine.ErrInvalidCommand):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, engine.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, engine.ErrDeviceNotFound):
		return http.StatusNotFound, "Device not found"
	case errors.Is(err, engine.ErrStorage):
		return http.StatusServiceUnavailable, "Storage unavailable"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (s *APIServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)

	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}

	writeJSON(w, status, errorResponse{Error: msg})
}
