package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/lehydrosys/hydrobridge/pkg/metrics"
	"github.com/lehydrosys/hydrobridge/pkg/retry"
)

// MQTT maintains the link over eclipse paho. The client object is replaced
// wholesale on every (re)connect, never repaired in place; mu makes publish
// and link replacement mutually exclusive so a message is never sent on a
// client mid-replacement.
type MQTT struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.RWMutex
	client mqtt.Client
	subs   map[string]Handler

	state atomic.Int32
	ctx   context.Context

	// newClient is swapped out by tests to inject a fake client.
	newClient func(*mqtt.ClientOptions) mqtt.Client
}

// NewMQTT returns an unconnected MQTT link.
func NewMQTT(cfg Config, logger *zap.Logger) *MQTT {
	return &MQTT{
		cfg:       cfg,
		logger:    logger,
		subs:      make(map[string]Handler),
		newClient: mqtt.NewClient,
	}
}

// Connect blocks until the broker accepts a connection, retrying at the
// configured fixed delay. Later faults are handled in the background.
func (m *MQTT) Connect(ctx context.Context) error {
	m.ctx = ctx
	m.state.Store(int32(Connecting))

	if err := retry.Forever(ctx, m.logger, "mqtt", m.cfg.RetryDelay, m.dial); err != nil {
		m.state.Store(int32(Disconnected))
		return err
	}

	m.state.Store(int32(Connected))
	m.logger.Info("connected to MQTT broker", zap.String("url", m.cfg.URL))
	return nil
}

// dial builds a fresh client, connects it, and replays the standing
// subscriptions. The old client, if any, is discarded.
func (m *MQTT) dial(_ context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(m.cfg.URL).
		SetClientID(m.cfg.ClientID).
		SetAutoReconnect(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			m.onConnectionLost(err)
		})
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}

	client := m.newClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.client = client
	for topic, h := range m.subs {
		if err := subscribeMQTT(client, topic, h); err != nil {
			client.Disconnect(0)
			m.client = nil
			return err
		}
	}
	return nil
}

func (m *MQTT) onConnectionLost(err error) {
	// Only the first observer of the fault starts the reconnect loop.
	if !m.state.CompareAndSwap(int32(Connected), int32(Connecting)) {
		return
	}
	m.logger.Warn("MQTT connection lost", zap.Error(err))
	metrics.BrokerReconnects.Inc()

	go func() {
		if err := retry.Forever(m.ctx, m.logger, "mqtt", m.cfg.RetryDelay, m.dial); err != nil {
			m.state.Store(int32(Disconnected))
			return
		}
		m.state.Store(int32(Connected))
		m.logger.Info("reconnected to MQTT broker", zap.String("url", m.cfg.URL))
	}()
}

// Subscribe registers the handler and, when the link is up, subscribes
// immediately. The subscription is replayed after every reconnect.
func (m *MQTT) Subscribe(topic string, h Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.subs[topic] = h
	if m.client != nil && State(m.state.Load()) == Connected {
		return subscribeMQTT(m.client, topic, h)
	}
	return nil
}

// Publish sends payload at QoS 0. Fails with ErrNotConnected while the
// link is down.
func (m *MQTT) Publish(topic string, payload []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.client == nil || State(m.state.Load()) != Connected {
		return ErrNotConnected
	}
	token := m.client.Publish(topic, 0, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt publish: %w", token.Error())
	}
	return nil
}

func (m *MQTT) State() State {
	return State(m.state.Load())
}

func (m *MQTT) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Store(int32(Disconnected))
	if m.client != nil {
		m.client.Disconnect(250)
		m.client = nil
	}
	return nil
}

func subscribeMQTT(client mqtt.Client, topic string, h Handler) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		h(msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, token.Error())
	}
	return nil
}
