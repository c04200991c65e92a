// Package rest is the thin HTTP gateway over the ingestion pipeline, the
// command relay, and the query service. It parses requests and encodes
// responses; all behavior lives in the components it fronts.
package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lehydrosys/hydrobridge/pkg/bridge"
	"github.com/lehydrosys/hydrobridge/pkg/httputil"
	"github.com/lehydrosys/hydrobridge/pkg/httputil/middleware"
	"github.com/lehydrosys/hydrobridge/pkg/ingest"
	"github.com/lehydrosys/hydrobridge/pkg/relay"
	"github.com/lehydrosys/hydrobridge/pkg/telemetry"
)

const maxBodyBytes = 1 << 20

// Ingestor accepts an HTTP-path telemetry payload.
type Ingestor interface {
	IngestJSON(raw []byte) error
}

// CommandRelay validates and forwards one actuation command.
type CommandRelay interface {
	Relay(command string) error
}

// Querier returns recent readings, newest first.
type Querier interface {
	Latest(ctx context.Context, limit int) ([]telemetry.Reading, error)
}

// Pinger reports store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LinkStatus reports the broker link state.
type LinkStatus interface {
	State() bridge.State
}

// Server wires the routes. Construct with NewServer and serve via Start or
// mount Handler directly.
type Server struct {
	ingestor Ingestor
	relay    CommandRelay
	querier  Querier
	pinger   Pinger
	link     LinkStatus
	logger   *zap.Logger
	mux      *http.ServeMux
	addr     string
}

// NewServer builds the gateway with the standard middleware chain.
func NewServer(addr string, ingestor Ingestor, cmdRelay CommandRelay, querier Querier, pinger Pinger, link LinkStatus, logger *zap.Logger) *Server {
	s := &Server{
		ingestor: ingestor,
		relay:    cmdRelay,
		querier:  querier,
		pinger:   pinger,
		link:     link,
		logger:   logger,
		mux:      http.NewServeMux(),
		addr:     addr,
	}
	s.registerHandlers()
	return s
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("POST /sensor_data", s.handleIngest)
	s.mux.HandleFunc("GET /sensor_data", s.handleQuery)
	s.mux.HandleFunc("GET /sensor_data/latest", s.handleLatest)
	s.mux.HandleFunc("POST /command", s.handleCommand)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// Handler returns the gateway with middleware applied.
func (s *Server) Handler() http.Handler {
	return middleware.Chain(s.mux,
		middleware.RequestID,
		middleware.Logger(s.logger),
		middleware.CORS(nil),
	)
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 3 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP gateway listening", zap.String("addr", s.addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	switch err := s.ingestor.IngestJSON(body); {
	case err == nil:
		httputil.JSON(w, http.StatusOK, map[string]string{"message": "sensor data received"})
	case errors.Is(err, telemetry.ErrValidation):
		httputil.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ingest.ErrQueueFull):
		httputil.Error(w, http.StatusServiceUnavailable, "ingestion backlogged, retry later")
	default:
		httputil.Error(w, http.StatusInternalServerError, "failed to process sensor data")
	}
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httputil.Error(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	readings, err := s.querier.Latest(r.Context(), limit)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "failed to fetch sensor data")
		return
	}
	httputil.JSON(w, http.StatusOK, readings)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	readings, err := s.querier.Latest(r.Context(), 1)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "failed to fetch sensor data")
		return
	}
	if len(readings) == 0 {
		httputil.Error(w, http.StatusNotFound, "no data found")
		return
	}
	httputil.JSON(w, http.StatusOK, readings[0])
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command string `json:"command"`
	}
	if err := httputil.BindOrError(r, w, &req); err != nil {
		return
	}

	switch err := s.relay.Relay(req.Command); {
	case err == nil:
		httputil.JSON(w, http.StatusOK, map[string]string{"message": "command sent"})
	case errors.Is(err, relay.ErrInvalidCommand):
		httputil.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, bridge.ErrNotConnected):
		httputil.Error(w, http.StatusServiceUnavailable, "broker unavailable")
	default:
		httputil.Error(w, http.StatusInternalServerError, "failed to send command")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storeUp := s.pinger.Ping(r.Context()) == nil
	brokerUp := s.link.State() == bridge.Connected

	status := http.StatusOK
	if !storeUp {
		status = http.StatusInternalServerError
	}
	httputil.JSON(w, status, map[string]bool{"store": storeUp, "broker": brokerUp})
}
