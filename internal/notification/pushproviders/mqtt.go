package pushproviders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/tphakala/xferwatch/internal/notification"
)

const (
	mqttConnectTimeout    = 15 * time.Second
	mqttPublishTimeout    = 10 * time.Second
	mqttDisconnectQuiesce = 250 // milliseconds
)

type mqttOptions struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	QoS      int    `mapstructure:"qos"`
	Retain   bool   `mapstructure:"retain"`
}

func decodeMQTTOptions(cfg notification.ProviderConfig) (mqttOptions, error) {
	var o mqttOptions
	err := decodeOptions(cfg, &o)
	return o, err
}

// MQTTValidator checks broker URL, topic and QoS.
var MQTTValidator = notification.ChainValidators("mqtt", func(cfg notification.ProviderConfig) error {
	o, err := decodeMQTTOptions(cfg)
	if err != nil {
		return err
	}
	if o.Broker == "" {
		return errors.New("broker is required")
	}
	u, err := url.Parse(o.Broker)
	if err != nil {
		return fmt.Errorf("broker: invalid URL: %w", err)
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts":
	default:
		return fmt.Errorf("broker: unsupported scheme %q", u.Scheme)
	}
	if o.Topic == "" {
		return errors.New("topic is required")
	}
	if o.QoS < 0 || o.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", o.QoS)
	}
	return nil
})

// mqttMessage is the JSON document published per notification.
type mqttMessage struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Level     string         `json:"level"`
	Priority  string         `json:"priority"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitzero"`
}

// MQTT publishes messages to a broker topic. The broker session lives from
// Connect to Disconnect.
type MQTT struct {
	name string
	opts mqttOptions

	mu     sync.Mutex
	client mqtt.Client
}

// NewMQTT builds the adapter without connecting.
func NewMQTT(name string, cfg notification.ProviderConfig) (*MQTT, error) {
	o, err := decodeMQTTOptions(cfg)
	if err != nil {
		return nil, err
	}
	if o.ClientID == "" {
		o.ClientID = "xferwatch-" + uuid.NewString()[:8]
	}
	return &MQTT{name: name, opts: o}, nil
}

func (m *MQTT) Name() string { return m.name }

// Connect opens the broker session. Paho reconnects on its own afterwards.
func (m *MQTT) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(m.opts.Broker).
		SetClientID(m.opts.ClientID).
		SetUsername(m.opts.Username).
		SetPassword(m.opts.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			getLogger().Warn("mqtt connection lost", "provider", m.name, "error", err)
		})

	client := mqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect(), mqttConnectTimeout); err != nil {
		return notification.NewTransportError(m.name, fmt.Errorf("connect to %s: %w", m.opts.Broker, err))
	}

	m.mu.Lock()
	m.client = client
	m.mu.Unlock()
	getLogger().Info("mqtt connected", "provider", m.name, "broker", m.opts.Broker)
	return nil
}

// Disconnect closes the session, if any.
func (m *MQTT) Disconnect(context.Context) error {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.mu.Unlock()
	if client != nil && client.IsConnected() {
		client.Disconnect(mqttDisconnectQuiesce)
	}
	return nil
}

// Send publishes the message as JSON.
func (m *MQTT) Send(ctx context.Context, msg *notification.Message) error {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client == nil || !client.IsConnected() {
		return notification.NewTransportError(m.name, errors.New("not connected to broker"))
	}

	payload, err := json.Marshal(mqttMessage{
		ID:        msg.ID(),
		Type:      string(msg.Type()),
		Level:     string(msg.Level()),
		Priority:  string(msg.Priority()),
		Title:     heading(msg),
		Message:   msg.Text(),
		Timestamp: msg.CreatedAt().UTC().Format(time.RFC3339),
		Metadata:  msg.Metadata(),
	})
	if err != nil {
		return permanent(m.name, fmt.Errorf("encode message: %w", err))
	}

	token := client.Publish(m.opts.Topic, byte(m.opts.QoS), m.opts.Retain, payload)
	if err := waitToken(ctx, token, mqttPublishTimeout); err != nil {
		if notification.IsCancellation(err) && ctx.Err() != nil {
			return ctx.Err()
		}
		return notification.NewTransportError(m.name, fmt.Errorf("publish to %s: %w", m.opts.Topic, err))
	}
	return nil
}

var errTokenTimeout = errors.New("timed out waiting for broker")

// waitToken waits for a paho token, the timeout or ctx, whichever is first.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errTokenTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
