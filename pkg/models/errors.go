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
	"errors"
	"fmt"
)

// ErrValidation marks a missing or malformed required input.
var ErrValidation = errors.New("validation error")

// FieldError names the required field that was missing or malformed.
type FieldError struct {
	Field  string
	Reason string
}

// MissingField returns a FieldError for an absent required field.
func MissingField(field string) *FieldError {
	return &FieldError{Field: field}
}

func (e *FieldError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid field %s: %s", e.Field, e.Reason)
	}

	return "Missing required field: " + e.Field
}

func (*FieldError) Unwrap() error {
	return ErrValidation
}
