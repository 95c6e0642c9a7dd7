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

// Package lifecycle runs long-lived services and shuts them down on a
// signal, an error or context cancellation.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

const ShutdownTimeout = 10 * time.Second

// Service defines the interface that all services must implement. Start
// blocks until the service stops or fails.
type Service interface {
	Start(context.Context) error
	Stop(context.Context) error
}

// ServerOptions holds configuration for running services.
type ServerOptions struct {
	ServiceName     string
	Services        []Service
	Logger          logrus.FieldLogger
	ShutdownTimeout time.Duration
	Signals         []os.Signal
}

var errServiceStopped = errors.New("service stopped unexpectedly")

// RunServer starts every service and blocks until shutdown, then stops
// them in reverse order.
func RunServer(ctx context.Context, opts *ServerOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	logger.WithField("service", opts.ServiceName).Info("starting service")

	errChan := make(chan error, len(opts.Services))

	for _, svc := range opts.Services {
		go func(svc Service) {
			err := svc.Start(ctx)
			if err == nil && ctx.Err() == nil {
				err = errServiceStopped
			}

			if err != nil && ctx.Err() == nil {
				errChan <- err
			}
		}(svc)
	}

	return handleShutdown(ctx, cancel, opts, logger, errChan)
}

func handleShutdown(
	ctx context.Context, cancel context.CancelFunc, opts *ServerOptions, logger logrus.FieldLogger, errChan chan error) error {
	signals := opts.Signals
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, signals...)

	defer signal.Stop(sigChan)

	var runErr error

	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig.String()).Info("received signal, initiating shutdown")
	case err := <-errChan:
		logger.WithError(err).Error("service failed, initiating shutdown")

		runErr = fmt.Errorf("service error: %w", err)
	case <-ctx.Done():
		logger.Info("context canceled, initiating shutdown")
	}

	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = ShutdownTimeout
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	cancel()

	for i := len(opts.Services) - 1; i >= 0; i-- {
		if err := opts.Services[i].Stop(shutdownCtx); err != nil {
			logger.WithError(err).Error("error during service shutdown")

			if runErr == nil {
				runErr = fmt.Errorf("shutdown error: %w", err)
			}
		}
	}

	return runErr
}
