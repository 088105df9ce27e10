// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	xglog "github.com/ManuGH/tunerpool/internal/log"
)

// MQTTConfig configures the MQTT trap sink.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
	Timeout     time.Duration
}

// Publisher is the part of mqtt.Client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

var errPublishTimeout = errors.New("mqtt publish timeout")

// MQTTNotifier publishes fault traps as JSON to <prefix>/fault/<kind>.
type MQTTNotifier struct {
	pub Publisher
	cfg MQTTConfig
}

func NewMQTTNotifier(pub Publisher, cfg MQTTConfig) *MQTTNotifier {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "tunerd"
	}
	cfg.TopicPrefix = strings.TrimSuffix(cfg.TopicPrefix, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &MQTTNotifier{pub: pub, cfg: cfg}
}

func (*MQTTNotifier) Name() string { return "mqtt" }

// Topic returns the topic a fault kind is published on.
func (n *MQTTNotifier) Topic(kind model.FaultKind) string {
	return fmt.Sprintf("%s/fault/%s", n.cfg.TopicPrefix, kind)
}

func (n *MQTTNotifier) NotifyFault(ctx context.Context, ev model.FaultEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal fault: %w", err)
	}

	token := n.pub.Publish(n.Topic(ev.Kind), n.cfg.QoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(n.cfg.Timeout):
		return errPublishTimeout
	}
	return token.Error()
}

// ConnectMQTT dials the broker with auto-reconnect enabled.
func ConnectMQTT(ctx context.Context, cfg MQTTConfig) (mqtt.Client, error) {
	logger := xglog.WithComponent("alerting")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info().Str(xglog.FieldEvent, "mqtt.connected").Str("broker", cfg.Broker).Msg("mqtt connection established")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Str(xglog.FieldEvent, "mqtt.connection_lost").Str("broker", cfg.Broker).Msg("mqtt connection lost, will auto-reconnect")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		// connect retry keeps running in the background
		logger.Warn().Str("broker", cfg.Broker).Msg("mqtt broker not reachable yet, retrying in background")
		return client, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	return client, nil
}
