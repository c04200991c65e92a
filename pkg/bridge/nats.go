package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/lehydrosys/hydrobridge/pkg/metrics"
	"github.com/lehydrosys/hydrobridge/pkg/retry"
)

// NATS maintains the link over nats.go. Unlike the MQTT link, reconnection
// after the initial connect is handled by the library (fixed wait,
// unlimited attempts) and subscriptions survive reconnects natively; the
// handlers below only track state.
type NATS struct {
	cfg    Config
	logger *zap.Logger

	mu    sync.Mutex
	nc    *nats.Conn
	state atomic.Int32
}

// NewNATS returns an unconnected NATS link.
func NewNATS(cfg Config, logger *zap.Logger) *NATS {
	return &NATS{cfg: cfg, logger: logger}
}

// Connect blocks until the server accepts a connection, retrying at the
// configured fixed delay.
func (n *NATS) Connect(ctx context.Context) error {
	n.state.Store(int32(Connecting))

	err := retry.Forever(ctx, n.logger, "nats", n.cfg.RetryDelay, func(_ context.Context) error {
		opts := []nats.Option{
			nats.Name(n.cfg.ClientID),
			nats.ReconnectWait(n.cfg.RetryDelay),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				n.state.Store(int32(Connecting))
				n.logger.Warn("NATS connection lost", zap.Error(err))
				metrics.BrokerReconnects.Inc()
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				n.state.Store(int32(Connected))
				n.logger.Info("reconnected to NATS server", zap.String("url", nc.ConnectedUrl()))
			}),
		}
		if n.cfg.Username != "" {
			opts = append(opts, nats.UserInfo(n.cfg.Username, n.cfg.Password))
		}

		nc, err := nats.Connect(n.cfg.URL, opts...)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}

		n.mu.Lock()
		n.nc = nc
		n.mu.Unlock()
		return nil
	})
	if err != nil {
		n.state.Store(int32(Disconnected))
		return err
	}

	n.state.Store(int32(Connected))
	n.logger.Info("connected to NATS server", zap.String("url", n.cfg.URL))
	return nil
}

// Subscribe registers the handler; the library re-establishes the
// subscription across reconnects.
func (n *NATS) Subscribe(topic string, h Handler) error {
	n.mu.Lock()
	nc := n.nc
	n.mu.Unlock()

	if nc == nil {
		return ErrNotConnected
	}
	if _, err := nc.Subscribe(topic, func(msg *nats.Msg) {
		h(msg.Data)
	}); err != nil {
		return fmt.Errorf("nats subscribe %s: %w", topic, err)
	}
	return nil
}

// Publish sends payload. Fails with ErrNotConnected while the link is down.
func (n *NATS) Publish(topic string, payload []byte) error {
	n.mu.Lock()
	nc := n.nc
	n.mu.Unlock()

	if nc == nil || !nc.IsConnected() {
		return ErrNotConnected
	}
	if err := nc.Publish(topic, payload); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (n *NATS) State() State {
	return State(n.state.Load())
}

func (n *NATS) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.state.Store(int32(Disconnected))
	if n.nc != nil {
		n.nc.Close()
		n.nc = nil
	}
	return nil
}
