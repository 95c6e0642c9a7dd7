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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mfreeman451/thermorelay/pkg/alerts"
	"github.com/mfreeman451/thermorelay/pkg/api"
	"github.com/mfreeman451/thermorelay/pkg/config"
	"github.com/mfreeman451/thermorelay/pkg/db"
	"github.com/mfreeman451/thermorelay/pkg/engine"
	"github.com/mfreeman451/thermorelay/pkg/events"
	"github.com/mfreeman451/thermorelay/pkg/kvstore"
	"github.com/mfreeman451/thermorelay/pkg/lifecycle"
	"github.com/mfreeman451/thermorelay/pkg/logger"
	"github.com/mfreeman451/thermorelay/pkg/metrics"
	"github.com/mfreeman451/thermorelay/pkg/mqttbridge"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

const (
	serviceName  = "thermorelay"
	eventBuffer  = 64
	redisTimeout = 5 * time.Second
)

var errUnknownBackend = errors.New("unknown storage backend")

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}

		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet(serviceName, pflag.ContinueOnError)
	configPath := flags.String("config", "/etc/thermorelay/thermorelay.json", "Path to config file")
	envFile := flags.String("env-file", ".env", "Path to an optional .env file with secrets")
	logLevel := flags.String("log-level", "", "Override the configured log level")

	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}

	ctx := context.Background()

	backend, err := openBackend(ctx, &cfg.Storage)
	if err != nil {
		return err
	}

	store := kvstore.New(backend)

	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Error("failed to close storage")
		}
	}()

	relay, err := engine.New(store, cfg.EngineConfig(),
		engine.WithLogger(log),
		engine.WithEventHub(events.NewHub(eventBuffer)))
	if err != nil {
		return err
	}

	services := []lifecycle.Service{
		api.NewAPIServer(relay, api.Options{
			ListenAddr:     cfg.HTTP.ListenAddr,
			MaxConnections: cfg.HTTP.MaxConnections,
			RateLimit:      cfg.HTTP.RateLimit,
			RateBurst:      cfg.HTTP.RateBurst,
			ReadTimeout:    time.Duration(cfg.HTTP.ReadTimeout),
			WriteTimeout:   time.Duration(cfg.HTTP.WriteTimeout),
			Logger:         log,
			Metrics:        metrics.NewManager(cfg.Metrics),
		}),
	}

	if cfg.Monitor.Enabled {
		services = append(services, newMonitor(relay, &cfg.Monitor, log))
	}

	if cfg.MQTT.Enabled {
		services = append(services, mqttbridge.New(relay, mqttbridge.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		}, log))
	}

	log.WithFields(logrus.Fields{
		"storage": cfg.Storage.Backend,
		"mqtt":    cfg.MQTT.Enabled,
		"monitor": cfg.Monitor.Enabled,
	}).Info("relay configured")

	return lifecycle.RunServer(ctx, &lifecycle.ServerOptions{
		ServiceName: serviceName,
		Services:    services,
		Logger:      log,
	})
}

func openBackend(ctx context.Context, cfg *config.StorageConfig) (kvstore.Backend, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		sqlite, err := db.New(cfg.Path)
		if err != nil {
			return nil, err
		}

		return sqlite, nil
	case config.BackendRedis:
		ctx, cancel := context.WithTimeout(ctx, redisTimeout)
		defer cancel()

		rdb, err := kvstore.NewRedisBackend(ctx, kvstore.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Namespace: cfg.Redis.Namespace,
		})
		if err != nil {
			return nil, err
		}

		return rdb, nil
	case config.BackendMemory:
		return kvstore.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownBackend, cfg.Backend)
	}
}

func newMonitor(relay *engine.Engine, cfg *config.MonitorConfig, log logrus.FieldLogger) *engine.Monitor {
	alerters := make([]alerts.AlertService, 0, len(cfg.Webhooks))

	for _, wh := range cfg.Webhooks {
		alerters = append(alerters, alerts.NewWebhookAlerter(wh))
	}

	log.WithField("webhooks", len(alerters)).Info("device monitor enabled")

	return engine.NewMonitor(relay, time.Duration(cfg.Interval), alerters...)
}
