// Package mqttbridge optionally republishes Report notifications and
// session status transitions onto an MQTT broker's topic tree, so
// deployments that already watch the plant MQTT bus see adapter events
// without registering a callback through the core API (spec §6 remains
// the primary surface; this is additive). Grounded on the teacher's
// internal/service.CommandHandler and data-ingestion's
// internal/adapter/mqtt.Subscriber for connection-option and
// publish-with-token-wait style.
package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/opcua-edge-adapter/internal/domain"
	"github.com/nexus-edge/opcua-edge-adapter/internal/message"
)

// Config tunes the bridge's broker connection and topic prefix.
type Config struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string // default "$edge"
	QoS            byte
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "$edge"
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = 30 * time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	return c
}

// reportPayload is the JSON shape published for a Report message element.
type reportPayload struct {
	Endpoint  string      `json:"endpoint"`
	Alias     string      `json:"alias"`
	Value     interface{} `json:"value"`
	Timestamp string      `json:"timestamp"`
}

// statusPayload is the JSON shape published for a lifecycle status
// transition.
type statusPayload struct {
	Endpoint  string `json:"endpoint"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Bridge publishes Report notifications and status transitions to MQTT.
type Bridge struct {
	cfg    Config
	client paho.Client
	logger zerolog.Logger
}

// New constructs a Bridge without connecting.
func New(cfg Config, logger zerolog.Logger) *Bridge {
	cfg = cfg.withDefaults()
	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetKeepAlive(cfg.KeepAlive).
		SetAutoReconnect(true).
		SetConnectRetry(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	return &Bridge{
		cfg:    cfg,
		client: paho.NewClient(opts),
		logger: logger.With().Str("component", "mqttbridge.Bridge").Logger(),
	}
}

// Connect dials the configured broker.
func (b *Bridge) Connect(ctx context.Context) error {
	token := b.client.Connect()
	if !token.WaitTimeout(b.cfg.ConnectTimeout) {
		return fmt.Errorf("%w: mqtt bridge connect timeout", domain.ErrConnectionFailed)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
	}
	b.logger.Info().Str("broker", b.cfg.BrokerURL).Msg("mqtt bridge connected")
	return nil
}

// Disconnect closes the broker connection.
func (b *Bridge) Disconnect() {
	b.client.Disconnect(250)
}

// IsHealthy satisfies internal/health.Checker.
func (b *Bridge) IsHealthy(ctx context.Context) bool {
	return b.client.IsConnected()
}

// PublishReport fans a Report message's elements out to
// "$edge/<endpoint>/<alias>", one publish per element, matching spec §4.5's
// per-alias notification granularity.
func (b *Bridge) PublishReport(msg *message.Message) {
	if msg == nil || msg.EndpointInfo == nil {
		return
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for _, r := range msg.Responses {
		if r == nil || r.NodeInfo == nil || r.NodeInfo.ValueAlias == "" {
			continue
		}
		var value interface{}
		if r.Value != nil {
			value = r.Value.Value
		}
		payload, err := json.Marshal(reportPayload{
			Endpoint:  msg.EndpointInfo.URI,
			Alias:     r.NodeInfo.ValueAlias,
			Value:     value,
			Timestamp: now,
		})
		if err != nil {
			b.logger.Warn().Err(err).Msg("failed to marshal report payload")
			continue
		}
		topic := fmt.Sprintf("%s/%s/%s", b.cfg.TopicPrefix, msg.EndpointInfo.URI, r.NodeInfo.ValueAlias)
		token := b.client.Publish(topic, b.cfg.QoS, false, payload)
		if token.Wait() && token.Error() != nil {
			b.logger.Warn().Err(token.Error()).Str("topic", topic).Msg("failed to publish report")
		}
	}
}

// PublishStatus fans a session status transition out to
// "$edge/<endpoint>/status", for internal/session.Registry's StatusCallback.
func (b *Bridge) PublishStatus(endpointURI string, status domain.LifecycleStatus) {
	payload, err := json.Marshal(statusPayload{
		Endpoint:  endpointURI,
		Status:    string(status),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		b.logger.Warn().Err(err).Msg("failed to marshal status payload")
		return
	}
	topic := fmt.Sprintf("%s/%s/status", b.cfg.TopicPrefix, endpointURI)
	token := b.client.Publish(topic, b.cfg.QoS, true, payload)
	if token.Wait() && token.Error() != nil {
		b.logger.Warn().Err(token.Error()).Str("topic", topic).Msg("failed to publish status")
	}
}
