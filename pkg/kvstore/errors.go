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

package kvstore

import "errors"

var (
	// ErrStorage marks failures of the underlying backend. The value stored
	// at the affected key is unchanged when it is returned.
	ErrStorage = errors.New("storage error")

	errCorruptValue = errors.New("corrupt stored value")
	errEncodeValue  = errors.New("failed to encode value")
	errNoKeys       = errors.New("no keys given")
)
