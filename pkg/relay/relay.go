// Package relay validates actuation commands against the configured
// vocabulary and forwards them to the command topic. A successful relay
// means "handed to the broker", not "executed by the device"; no device
// acknowledgment is modeled.
package relay

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lehydrosys/hydrobridge/pkg/metrics"
)

// ErrInvalidCommand indicates a command outside the vocabulary. Terminal;
// the broker is never touched.
var ErrInvalidCommand = errors.New("invalid command")

// Publisher sends a payload to a topic. bridge.Broker implements it.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// DefaultVocabulary covers the two relays of the stock controller.
var DefaultVocabulary = []string{"relay1_on", "relay1_off", "relay2_on", "relay2_off"}

// Relay holds the vocabulary set, built once from configuration.
type Relay struct {
	publisher  Publisher
	topic      string
	vocabulary map[string]struct{}
	logger     *zap.Logger
}

// New builds a relay for the given command topic. An empty vocabulary
// falls back to DefaultVocabulary.
func New(publisher Publisher, topic string, vocabulary []string, logger *zap.Logger) *Relay {
	if len(vocabulary) == 0 {
		vocabulary = DefaultVocabulary
	}
	set := make(map[string]struct{}, len(vocabulary))
	for _, cmd := range vocabulary {
		set[strings.ToLower(strings.TrimSpace(cmd))] = struct{}{}
	}
	return &Relay{
		publisher:  publisher,
		topic:      topic,
		vocabulary: set,
		logger:     logger,
	}
}

// Relay normalizes the command, checks vocabulary membership, and publishes
// the normalized string to the command topic. Sending the same command
// twice produces two publish events.
func (r *Relay) Relay(command string) error {
	normalized := strings.ToLower(strings.TrimSpace(command))
	if _, ok := r.vocabulary[normalized]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidCommand, command)
	}

	if err := r.publisher.Publish(r.topic, []byte(normalized)); err != nil {
		return fmt.Errorf("publish command: %w", err)
	}

	metrics.CommandsPublished.Inc()
	r.logger.Info("command relayed",
		zap.String("command", normalized),
		zap.String("topic", r.topic))
	return nil
}
