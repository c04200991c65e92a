package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lehydrosys/hydrobridge/pkg/bridge"
	"github.com/lehydrosys/hydrobridge/pkg/ingest"
	"github.com/lehydrosys/hydrobridge/pkg/metrics"
	"github.com/lehydrosys/hydrobridge/pkg/query"
	"github.com/lehydrosys/hydrobridge/pkg/relay"
	"github.com/lehydrosys/hydrobridge/pkg/rest"
	"github.com/lehydrosys/hydrobridge/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion-and-relay bridge",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	if cfg.Metrics.Enabled {
		metrics.StartServer(ctx, &wg, logger, &metrics.ServerOpts{Addr: cfg.Metrics.Addr})
	}

	// The store must be reachable at least once before serving begins.
	st, err := store.New(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	defer st.Close()
	if err := st.WarmUp(ctx); err != nil {
		return fmt.Errorf("store warm-up: %w", err)
	}
	logger.Info("store reachable")

	broker, err := bridge.New(cfg.Broker, logger)
	if err != nil {
		return fmt.Errorf("create broker: %w", err)
	}
	if err := broker.Connect(ctx); err != nil {
		return fmt.Errorf("broker connect: %w", err)
	}
	defer broker.Close()

	pipeline := ingest.New(st, cfg.Ingest, logger)
	pipeline.Start()

	if err := broker.Subscribe(cfg.Topics.Telemetry, pipeline.HandleBrokerMessage); err != nil {
		return fmt.Errorf("subscribe telemetry topic: %w", err)
	}
	logger.Info("subscribed to telemetry topic", zap.String("topic", cfg.Topics.Telemetry))

	cmdRelay := relay.New(broker, cfg.Topics.Command, cfg.Command.Vocabulary, logger)
	querySvc := query.New(st, cfg.Query.DefaultLimit, cfg.Query.MaxLimit)

	server := rest.NewServer(cfg.HTTP.ListenAddr, pipeline, cmdRelay, querySvc, st, broker, logger)

	errChan := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		logger.Info("received termination signal, shutting down")
		cancel()
	case err := <-errChan:
		logger.Error("gateway failed", zap.Error(err))
		cancel()
	}

	// Intake stops with the gateway and the broker; queued writes drain
	// before the pool closes.
	broker.Close()
	pipeline.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10 seconds")
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
