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
	"errors"

	"github.com/mfreeman451/thermorelay/pkg/kvstore"
	"github.com/mfreeman451/thermorelay/pkg/mailbox"
	"github.com/mfreeman451/thermorelay/pkg/models"
	"github.com/mfreeman451/thermorelay/pkg/telemetry"
)

var (
	ErrValidation     = models.ErrValidation
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidCommand = mailbox.ErrInvalidCommand
	ErrDeviceNotFound = telemetry.ErrDeviceNotFound
	ErrStorage        = kvstore.ErrStorage
	ErrInvalidConfig  = errors.New("invalid engine configuration")
)

// FieldError names the missing or malformed input; it matches ErrValidation.
type FieldError = models.FieldError
