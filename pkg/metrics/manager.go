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
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mfreeman451/thermorelay/pkg/models"
	log "github.com/sirupsen/logrus"
)

// Manager keeps one ring buffer per route.
type Manager struct {
	routes       sync.Map // route -> MetricStore
	config       models.MetricsConfig
	activeRoutes int64
}

func NewManager(cfg models.MetricsConfig) MetricCollector {
	return &Manager{
		config: cfg,
	}
}

// AddMetric records one latency sample. Samples for new routes are dropped
// once MaxRoutes distinct routes are tracked.
func (m *Manager) AddMetric(route string, timestamp time.Time, responseTime int64) error {
	if !m.config.Enabled {
		return nil
	}

	store, ok := m.routes.Load(route)
	if !ok {
		if m.config.MaxRoutes > 0 && atomic.LoadInt64(&m.activeRoutes) >= int64(m.config.MaxRoutes) {
			log.WithField("route", route).Debug("route limit reached, dropping metric")

			return nil
		}

		var loaded bool

		store, loaded = m.routes.LoadOrStore(route, NewBuffer(m.config.Retention))
		if !loaded {
			atomic.AddInt64(&m.activeRoutes, 1)
		}
	}

	store.(MetricStore).Add(timestamp, responseTime, route)

	return nil
}

func (m *Manager) GetMetrics(route string) []models.MetricPoint {
	store, ok := m.routes.Load(route)
	if !ok {
		return nil
	}

	return store.(MetricStore).GetPoints()
}

// Routes returns every tracked route in lexical order.
func (m *Manager) Routes() []string {
	routes := make([]string, 0)

	m.routes.Range(func(key, _ any) bool {
		routes = append(routes, key.(string))

		return true
	})

	sort.Strings(routes)

	return routes
}

func (m *Manager) CleanupStaleRoutes(staleDuration time.Duration) {
	cutoff := time.Now().Add(-staleDuration)

	m.routes.Range(func(key, value any) bool {
		last := value.(MetricStore).GetLastPoint()
		if last == nil || last.Timestamp.Before(cutoff) {
			if _, deleted := m.routes.LoadAndDelete(key); deleted {
				atomic.AddInt64(&m.activeRoutes, -1)
			}
		}

		return true
	})
}

func (m *Manager) GetActiveRoutes() int64 {
	return atomic.LoadInt64(&m.activeRoutes)
}
