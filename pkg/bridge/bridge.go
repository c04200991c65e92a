// Package bridge maintains the link to the message broker: a standing
// subscription on the telemetry topic and a publish capability for the
// command topic. The link is owned here; on a network fault it is replaced
// wholesale and re-subscribed, with fixed-delay unbounded retry. The store
// and the broker recover independently of each other.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrNotConnected is returned by Publish while the link is down. Callers
// surface it rather than silently dropping the message.
var ErrNotConnected = errors.New("broker not connected")

// Handler receives one raw message payload from a subscription.
type Handler func(payload []byte)

// State of the broker link.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Broker is the messaging link used by the ingestion pipeline (inbound
// telemetry) and the command relay (outbound commands).
type Broker interface {
	// Connect blocks until the link is established at least once,
	// retrying at a fixed delay. Reconnection after later faults happens
	// in the background.
	Connect(ctx context.Context) error
	// Subscribe registers a standing subscription. Registered
	// subscriptions are re-established after every reconnect.
	Subscribe(topic string, h Handler) error
	// Publish sends a payload. Valid only while Connected.
	Publish(topic string, payload []byte) error
	State() State
	Close() error
}

// Drivers recognized by New.
const (
	DriverMQTT = "mqtt"
	DriverNATS = "nats"
)

// Config selects and parameterizes the broker link.
type Config struct {
	Driver     string        `mapstructure:"driver"`
	URL        string        `mapstructure:"url"`
	ClientID   string        `mapstructure:"clientID"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	RetryDelay time.Duration `mapstructure:"retryDelay"`
}

// DefaultConfig returns an MQTT link against a local broker.
func DefaultConfig() Config {
	return Config{
		Driver:     DriverMQTT,
		URL:        "tcp://127.0.0.1:1883",
		ClientID:   "hydrobridge",
		RetryDelay: 5 * time.Second,
	}
}

// New builds the broker for the configured driver.
func New(cfg Config, logger *zap.Logger) (Broker, error) {
	switch cfg.Driver {
	case DriverMQTT, "":
		return NewMQTT(cfg, logger), nil
	case DriverNATS:
		return NewNATS(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown broker driver %q", cfg.Driver)
	}
}
