package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/plantpulse/mes-backend/internal/core/domain"
	"github.com/plantpulse/mes-backend/internal/core/ports"
)

// defaultPublishTimeout bounds how long one publish may block its caller.
// The dispatcher mirrors synchronously from session read loops, so a wedged
// broker must never hold a publish open indefinitely.
const defaultPublishTimeout = 5 * time.Second

// Mirror republishes every canonical event to an MQTT broker so shop-floor
// consumers (HMIs, andon displays, historians) can subscribe without holding
// a websocket session. Topics follow "<prefix>/<event-name>".
type Mirror struct {
	log            *slog.Logger
	client         mqtt.Client
	prefix         string
	qos            byte
	publishTimeout time.Duration
}

var _ ports.EventMirror = (*Mirror)(nil)

// Config holds broker connection settings.
type Config struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// NewMirror connects to the broker and returns a ready mirror. Connection
// retries are handled by the paho client after the initial connect.
func NewMirror(cfg Config, log *slog.Logger) (*Mirror, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.Info("connected to MQTT broker",
			slog.String("broker", cfg.BrokerURL),
			slog.String("client_id", cfg.ClientID),
		)
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		if err != nil {
			log.Warn("mqtt connection lost", slog.String("err", err.Error()))
		}
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, errors.New("timeout connecting to mqtt broker")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect mqtt broker: %w", err)
	}

	return &Mirror{
		log:            log,
		client:         client,
		prefix:         cfg.TopicPrefix,
		qos:            cfg.QoS,
		publishTimeout: defaultPublishTimeout,
	}, nil
}

// Mirror publishes one event. The payload is the event's data object, not
// the websocket envelope; the event name is carried by the topic.
func (m *Mirror) Mirror(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	topic := fmt.Sprintf("%s/%s", m.prefix, event.Name)
	token := m.client.Publish(topic, m.qos, false, payload)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		return token.Error()
	case <-time.After(m.publishTimeout):
		return fmt.Errorf("publish %s: timed out after %s", topic, m.publishTimeout)
	}
}

// Close disconnects from the broker, allowing in-flight publishes to drain.
func (m *Mirror) Close() {
	m.client.Disconnect(250)
}
