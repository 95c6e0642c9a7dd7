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

// Package bounded provides the FIFO retention policy shared by device
// history, relay inboxes and the communication log: append at the tail,
// evict from the head once the capacity is exceeded.
package bounded

// Append returns a new slice holding items followed by more, trimmed to the
// newest limit entries. The input slice is never modified. A limit <= 0
// keeps nothing.
func Append[T any](items []T, limit int, more ...T) []T {
	if limit <= 0 {
		return []T{}
	}

	total := len(items) + len(more)
	drop := 0

	if total > limit {
		drop = total - limit
	}

	out := make([]T, 0, total-drop)

	if drop < len(items) {
		out = append(out, items[drop:]...)
		drop = 0
	} else {
		drop -= len(items)
	}

	return append(out, more[drop:]...)
}
