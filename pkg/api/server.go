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
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/mfreeman451/thermorelay/pkg/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
	maxBodyBytes        = 64 << 10

	metricsCleanupInterval = time.Minute
	metricsStaleAfter      = 30 * time.Minute
)

type Options struct {
	ListenAddr     string
	MaxConnections int
	RateLimit      float64
	RateBurst      int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Logger         logrus.FieldLogger
	Metrics        metrics.MetricCollector
}

type APIServer struct {
	engine   Engine
	router   *mux.Router
	handler  http.Handler
	opts     Options
	logger   logrus.FieldLogger
	metrics  metrics.MetricCollector
	limiter  *ipRateLimiter
	upgrader websocket.Upgrader

	mu     sync.Mutex
	server *http.Server
	done   chan struct{}
	once   sync.Once
}

func NewAPIServer(engine Engine, opts Options) *APIServer {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}

	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	s := &APIServer{
		engine:  engine,
		router:  mux.NewRouter(),
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		done: make(chan struct{}),
	}

	if opts.RateLimit > 0 {
		s.limiter = newIPRateLimiter(opts.RateLimit, opts.RateBurst)
	}

	s.setupRoutes()
	s.handler = corsMiddleware(s.router)

	return s
}

func (s *APIServer) setupRoutes() {
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not found"})
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
	})

	s.router.Use(s.loggingMiddleware)

	if s.limiter != nil {
		s.router.Use(s.rateLimitMiddleware)
	}

	// device and relay surfaces
	s.router.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodPost)
	s.router.HandleFunc("/api/relay", s.handleRelay).Methods(http.MethodGet, http.MethodPost)

	// dashboard
	s.router.HandleFunc("/api/devices", s.getDevices).Methods(http.MethodGet)
	s.router.HandleFunc("/api/devices/{id}", s.getDevice).Methods(http.MethodGet)
	s.router.HandleFunc("/api/devices/{id}", s.deleteDevice).Methods(http.MethodDelete)
	s.router.HandleFunc("/api/devices/{id}/history", s.getDeviceHistory).Methods(http.MethodGet)
	s.router.HandleFunc("/api/devices/{id}/command", s.getDeviceCommand).Methods(http.MethodGet)
	s.router.HandleFunc("/api/devices/{id}/command", s.postDeviceCommand).Methods(http.MethodPost)
	s.router.HandleFunc("/api/log", s.getCommunicationLog).Methods(http.MethodGet)
	s.router.HandleFunc("/api/metrics", s.getMetrics).Methods(http.MethodGet)
	s.router.HandleFunc("/api/ws", s.handleWebSocket).Methods(http.MethodGet)
}

// Handler returns the fully wrapped HTTP handler.
func (s *APIServer) Handler() http.Handler {
	return s.handler
}

// Start listens on ListenAddr and serves until Stop is called.
func (s *APIServer) Start(ctx context.Context) error {
	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", s.opts.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.ListenAddr, err)
	}

	if s.metrics != nil {
		go s.cleanupMetrics(ctx)
	}

	return s.Serve(ln)
}

func (s *APIServer) cleanupMetrics(ctx context.Context) {
	ticker := time.NewTicker(metricsCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.metrics.CleanupStaleRoutes(metricsStaleAfter)
		}
	}
}

// Serve accepts connections on ln, capped at MaxConnections.
func (s *APIServer) Serve(ln net.Listener) error {
	if s.opts.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.opts.MaxConnections)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.opts.ReadTimeout,
		ReadTimeout:       s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
	}

	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.logger.WithField("addr", ln.Addr().String()).Info("HTTP API listening")

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Stop closes live websocket feeds and gracefully shuts the server down.
func (s *APIServer) Stop(ctx context.Context) error {
	s.once.Do(func() { close(s.done) })

	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	return srv.Shutdown(ctx)
}
