// Package metrics exposes Prometheus instrumentation for the bridge and an
// optional standalone metrics listener.
package metrics

import (
	"cmp"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	ReadingsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydrobridge_readings_ingested_total",
			Help: "Readings accepted for persistence, by transport",
		},
		[]string{"transport"},
	)

	IngestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydrobridge_ingest_errors_total",
			Help: "Rejected or lost readings, by reason",
		},
		[]string{"reason"},
	)

	WritesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hydrobridge_writes_dropped_total",
			Help: "Readings lost because the asynchronous insert failed",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hydrobridge_ingest_queue_depth",
			Help: "Readings waiting for a write worker",
		},
	)

	CommandsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hydrobridge_commands_published_total",
			Help: "Relay commands handed to the broker",
		},
	)

	BrokerReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hydrobridge_broker_reconnects_total",
			Help: "Broker link faults that triggered a reconnect",
		},
	)

	InsertDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hydrobridge_insert_duration_seconds",
			Help:    "Duration of telemetry inserts",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// ServerOpts configures the metrics listener.
type ServerOpts struct {
	Addr              string
	Path              string
	ShutdownTimeout   time.Duration
	ReadHeaderTimeout time.Duration
}

func defaultServerOpts() ServerOpts {
	return ServerOpts{
		Addr:              ":9100",
		Path:              "/metrics",
		ShutdownTimeout:   5 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// StartServer runs a Prometheus metrics listener until ctx is canceled.
func StartServer(ctx context.Context, wg *sync.WaitGroup, logger *zap.Logger, opts *ServerOpts) {
	effective := defaultServerOpts()
	if opts != nil {
		effective.Addr = cmp.Or(opts.Addr, effective.Addr)
		effective.Path = cmp.Or(opts.Path, effective.Path)
		effective.ShutdownTimeout = cmp.Or(opts.ShutdownTimeout, effective.ShutdownTimeout)
		effective.ReadHeaderTimeout = cmp.Or(opts.ReadHeaderTimeout, effective.ReadHeaderTimeout)
	}

	mux := http.NewServeMux()
	mux.Handle(effective.Path, promhttp.Handler())

	server := &http.Server{
		Addr:              effective.Addr,
		Handler:           mux,
		ReadHeaderTimeout: effective.ReadHeaderTimeout,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("metrics listener started", zap.String("addr", effective.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics listener failed", zap.Error(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), effective.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics listener shutdown failed", zap.Error(err))
		}
	}()
}
