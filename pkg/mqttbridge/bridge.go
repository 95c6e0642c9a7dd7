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

// Package mqttbridge carries device telemetry and commands over MQTT.
// Devices publish reports to <prefix>/<device_id>/status and receive
// their pending command on <prefix>/<device_id>/command.
package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/mfreeman451/thermorelay/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	defaultTopicPrefix = "thermorelay"
	ingestTimeout      = 5 * time.Second
	publishTimeout     = 5 * time.Second
	disconnectQuiesce  = 250
	mqttClientAddress  = "mqtt"
)

var (
	errBadTopic       = errors.New("unexpected status topic")
	errDeviceMismatch = errors.New("device_id does not match topic")
	errPublishTimeout = errors.New("publish timed out")
)

// Ingester is the engine operation the bridge feeds.
type Ingester interface {
	IngestTelemetry(ctx context.Context, apiKey string, report *models.TelemetryReport) (models.CommandResponse, error)
}

type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// publisher is the slice of the MQTT client used to answer devices.
type publisher interface {
	publish(topic string, payload []byte) error
}

type Bridge struct {
	cfg      Config
	ingester Ingester
	logger   logrus.FieldLogger
	client   mqtt.Client
	out      publisher

	stopOnce sync.Once
	stop     chan struct{}
}

func New(ingester Ingester, cfg Config, logger logrus.FieldLogger) *Bridge {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = defaultTopicPrefix
	}

	if logger == nil {
		logger = logrus.StandardLogger()
	}

	b := &Bridge{
		cfg:      cfg,
		ingester: ingester,
		logger:   logger.WithField("component", "mqtt_bridge"),
		stop:     make(chan struct{}),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(10 * time.Second).
		SetCleanSession(true)

	opts.SetOnConnectHandler(b.onConnect)
	opts.SetConnectionLostHandler(b.onConnectionLost)

	b.client = mqtt.NewClient(opts)
	b.out = &pahoPublisher{client: b.client, qos: cfg.QoS}

	return b
}

// StatusTopic is the wildcard subscription for device reports.
func (b *Bridge) StatusTopic() string {
	return b.cfg.TopicPrefix + "/+/status"
}

// CommandTopic is where deviceID receives its commands.
func (b *Bridge) CommandTopic(deviceID string) string {
	return b.cfg.TopicPrefix + "/" + deviceID + "/command"
}

// Start connects to the broker and blocks until Stop or ctx ends.
func (b *Bridge) Start(ctx context.Context) error {
	token := b.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	select {
	case <-ctx.Done():
	case <-b.stop:
	}

	return nil
}

func (b *Bridge) Stop(context.Context) error {
	b.stopOnce.Do(func() {
		close(b.stop)

		if b.client.IsConnected() {
			b.client.Disconnect(disconnectQuiesce)
			b.logger.Info("MQTT client disconnected")
		}
	})

	return nil
}

func (b *Bridge) onConnect(client mqtt.Client) {
	topic := b.StatusTopic()

	token := client.Subscribe(topic, b.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		b.handleStatus(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		b.logger.WithError(token.Error()).WithField("topic", topic).Error("failed to subscribe")

		return
	}

	b.logger.WithField("topic", topic).Info("subscribed to device status")
}

func (b *Bridge) onConnectionLost(_ mqtt.Client, err error) {
	b.logger.WithError(err).Warn("MQTT connection lost, reconnecting")
}

// deviceFromTopic extracts the device id from <prefix>/<id>/status.
func (b *Bridge) deviceFromTopic(topic string) (string, error) {
	rest, ok := strings.CutPrefix(topic, b.cfg.TopicPrefix+"/")
	if !ok {
		return "", fmt.Errorf("%w: %s", errBadTopic, topic)
	}

	id, ok := strings.CutSuffix(rest, "/status")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", fmt.Errorf("%w: %s", errBadTopic, topic)
	}

	return id, nil
}

// handleStatus runs one report through the engine and publishes any
// command that was pending. Rejected reports are logged and dropped.
func (b *Bridge) handleStatus(topic string, payload []byte) {
	if err := b.process(topic, payload); err != nil {
		b.logger.WithError(err).WithField("topic", topic).Warn("dropped device report")
	}
}

func (b *Bridge) process(topic string, payload []byte) error {
	deviceID, err := b.deviceFromTopic(topic)
	if err != nil {
		return err
	}

	var report models.TelemetryReport

	if err := json.Unmarshal(payload, &report); err != nil {
		return fmt.Errorf("invalid report: %w", err)
	}

	switch report.DeviceID {
	case "":
		report.DeviceID = deviceID
	case deviceID:
	default:
		return fmt.Errorf("%w: %s", errDeviceMismatch, report.DeviceID)
	}

	report.ClientIP = mqttClientAddress

	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	resp, err := b.ingester.IngestTelemetry(ctx, report.APIKey, &report)
	if err != nil {
		return err
	}

	if resp.Empty() {
		return nil
	}

	body, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	if err := b.out.publish(b.CommandTopic(deviceID), body); err != nil {
		return fmt.Errorf("command for %s consumed but not published: %w", deviceID, err)
	}

	b.logger.WithFields(logrus.Fields{
		"device_id": deviceID,
		"command":   resp.Command,
	}).Info("command published")

	return nil
}

type pahoPublisher struct {
	client mqtt.Client
	qos    byte
}

func (p *pahoPublisher) publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errPublishTimeout
	}

	return token.Error()
}
