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

package metrics

import (
	"sync"
	"time"

	"github.com/mfreeman451/thermorelay/pkg/models"
)

type metricPoint struct {
	timestamp    int64
	responseTime int64
	route        string
}

// RingBuffer keeps the most recent size points; older points are
// overwritten.
type RingBuffer struct {
	mu     sync.RWMutex
	points []metricPoint
	pos    int
	count  int
}

// NewBuffer creates a RingBuffer holding at most size points.
func NewBuffer(size int) MetricStore {
	if size < 1 {
		size = 1
	}

	return &RingBuffer{
		points: make([]metricPoint, size),
	}
}

func (b *RingBuffer) Add(timestamp time.Time, responseTime int64, route string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.points[b.pos] = metricPoint{
		timestamp:    timestamp.UnixNano(),
		responseTime: responseTime,
		route:        route,
	}

	b.pos = (b.pos + 1) % len(b.points)

	if b.count < len(b.points) {
		b.count++
	}
}

// GetPoints returns the stored points, oldest first.
func (b *RingBuffer) GetPoints() []models.MetricPoint {
	b.mu.RLock()
	defer b.mu.RUnlock()

	points := make([]models.MetricPoint, 0, b.count)
	start := (b.pos - b.count + len(b.points)) % len(b.points)

	for i := 0; i < b.count; i++ {
		p := b.points[(start+i)%len(b.points)]

		points = append(points, models.MetricPoint{
			Timestamp:    time.Unix(0, p.timestamp),
			ResponseTime: p.responseTime,
			Route:        p.route,
		})
	}

	return points
}

func (b *RingBuffer) GetLastPoint() *models.MetricPoint {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 {
		return nil
	}

	p := b.points[(b.pos-1+len(b.points))%len(b.points)]

	return &models.MetricPoint{
		Timestamp:    time.Unix(0, p.timestamp),
		ResponseTime: p.responseTime,
		Route:        p.route,
	}
}
