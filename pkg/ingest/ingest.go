// Package ingest normalizes telemetry from either transport and hands it
// to the store without blocking the producer: the caller returns once the
// reading is queued, and a fixed pool of write workers performs the actual
// inserts. A full queue is surfaced as backpressure rather than growing
// goroutines per insert. A failed asynchronous write is logged and dropped;
// there is no retry queue (known limitation, inherited from the devices'
// fire-and-forget protocol).
package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lehydrosys/hydrobridge/pkg/metrics"
	"github.com/lehydrosys/hydrobridge/pkg/telemetry"
)

// ErrQueueFull indicates the bounded write queue has no room. The reading
// was not accepted; HTTP callers get an environment-caused failure, broker
// messages are dropped with a log line.
var ErrQueueFull = errors.New("ingest queue full")

// Inserter persists one reading. *store.Store implements it.
type Inserter interface {
	Insert(ctx context.Context, r telemetry.Reading) (int64, error)
}

// Transport labels for metrics.
const (
	TransportHTTP   = "http"
	TransportBroker = "broker"
)

// Config sizes the write offload.
type Config struct {
	QueueSize    int           `mapstructure:"queueSize"`
	Workers      int           `mapstructure:"workers"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// DefaultConfig returns the sizing used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		QueueSize:    256,
		Workers:      4,
		WriteTimeout: 10 * time.Second,
	}
}

// Pipeline validates readings and offloads their persistence.
type Pipeline struct {
	inserter     Inserter
	logger       *zap.Logger
	queue        chan telemetry.Reading
	workers      int
	writeTimeout time.Duration
	wg           sync.WaitGroup
	closed       atomic.Bool
}

// New builds a pipeline; call Start before ingesting.
func New(inserter Inserter, cfg Config, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		inserter:     inserter,
		logger:       logger,
		queue:        make(chan telemetry.Reading, cfg.QueueSize),
		workers:      cfg.Workers,
		writeTimeout: cfg.WriteTimeout,
	}
}

// Start launches the write workers.
func (p *Pipeline) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Stop closes intake and blocks until queued readings are written.
func (p *Pipeline) Stop() {
	if p.closed.CompareAndSwap(false, true) {
		close(p.queue)
	}
	p.wg.Wait()
}

// IngestJSON accepts an HTTP-path payload: a JSON object carrying the six
// sensor fields.
func (p *Pipeline) IngestJSON(raw []byte) error {
	r, err := telemetry.ParseJSON(raw)
	if err != nil {
		metrics.IngestErrors.WithLabelValues("validation").Inc()
		return err
	}
	return p.enqueue(r, TransportHTTP)
}

// IngestLine accepts a broker-path payload: a comma-separated decimal line
// in the fixed field order.
func (p *Pipeline) IngestLine(line string) error {
	r, err := telemetry.ParseLine(line)
	if err != nil {
		metrics.IngestErrors.WithLabelValues("validation").Inc()
		return err
	}
	return p.enqueue(r, TransportBroker)
}

// HandleBrokerMessage adapts IngestLine to a bridge subscription handler.
// The messaging path has no error feedback channel; failures are only
// logged.
func (p *Pipeline) HandleBrokerMessage(payload []byte) {
	if err := p.IngestLine(string(payload)); err != nil {
		p.logger.Warn("telemetry message rejected",
			zap.ByteString("payload", payload),
			zap.Error(err))
	}
}

func (p *Pipeline) enqueue(r telemetry.Reading, transport string) error {
	if p.closed.Load() {
		return ErrQueueFull
	}
	select {
	case p.queue <- r:
		metrics.ReadingsIngested.WithLabelValues(transport).Inc()
		metrics.QueueDepth.Set(float64(len(p.queue)))
		return nil
	default:
		metrics.IngestErrors.WithLabelValues("queue_full").Inc()
		return ErrQueueFull
	}
}

func (p *Pipeline) worker() {
	defer p.wg.Done()
	for r := range p.queue {
		metrics.QueueDepth.Set(float64(len(p.queue)))

		// Writes are never canceled once queued; the timeout only bounds
		// how long a dead database can hold a worker.
		ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
		start := time.Now()
		id, err := p.inserter.Insert(ctx, r)
		cancel()
		metrics.InsertDuration.Observe(time.Since(start).Seconds())

		if err != nil {
			metrics.WritesDropped.Inc()
			p.logger.Error("telemetry write failed, dropping reading",
				zap.Float64s("values", r.Values()),
				zap.Error(err))
			continue
		}
		p.logger.Debug("reading persisted", zap.Int64("id", id))
	}
}
