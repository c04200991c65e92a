// Package store owns all access to the sensor readings table. It wraps a
// bounded pgx pool: lease acquisition is bounded by a timeout, initial
// connectivity is established with unbounded fixed-delay retry, and every
// call is a fresh round trip to the database.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/lehydrosys/hydrobridge/pkg/retry"
	"github.com/lehydrosys/hydrobridge/pkg/telemetry"
)

var (
	// ErrUnavailable indicates the database could not be reached, or no
	// lease became free within the acquire timeout. Callers may retry.
	ErrUnavailable = errors.New("store unavailable")
	// ErrStorage indicates a read or write failed for a reason other than
	// availability, e.g. a constraint violation. Not retried.
	ErrStorage = errors.New("storage error")
)

// Schema is the expected shape of the readings table. Creating it is the
// operator's job; it is exported so deploy scripts and tests can reuse it.
const Schema = `CREATE TABLE IF NOT EXISTS sensor_readings (
	id          bigserial PRIMARY KEY,
	air_temp    double precision NOT NULL,
	humidity    double precision NOT NULL,
	water_temp  double precision NOT NULL,
	water_level double precision NOT NULL,
	ph          double precision NOT NULL,
	tds         double precision NOT NULL,
	recorded_at timestamptz NOT NULL DEFAULT now()
)`

const (
	insertSQL = `INSERT INTO sensor_readings (air_temp, humidity, water_temp, water_level, ph, tds)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	recentSQL = `SELECT id, air_temp, humidity, water_temp, water_level, ph, tds, recorded_at
		FROM sensor_readings ORDER BY id DESC LIMIT $1`
)

// Config controls pool sizing and connect behavior.
type Config struct {
	ConnString     string        `mapstructure:"connString"`
	PoolSize       int32         `mapstructure:"poolSize"`
	AcquireTimeout time.Duration `mapstructure:"acquireTimeout"`
	RetryDelay     time.Duration `mapstructure:"retryDelay"`
}

// DefaultConfig returns the sizing used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		PoolSize:       5,
		AcquireTimeout: 3 * time.Second,
		RetryDelay:     5 * time.Second,
	}
}

// Store is the handle to the readings table.
type Store struct {
	pool           *pgxpool.Pool
	logger         *zap.Logger
	acquireTimeout time.Duration
	retryDelay     time.Duration
}

// New builds the pool but does not require the database to be reachable
// yet; call WarmUp before serving.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("parse conn string: %w", err)
	}
	if cfg.PoolSize > 0 {
		poolCfg.MaxConns = cfg.PoolSize
	}
	poolCfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	return &Store{
		pool:           pool,
		logger:         logger,
		acquireTimeout: cfg.AcquireTimeout,
		retryDelay:     cfg.RetryDelay,
	}, nil
}

// WarmUp blocks until the database answers a ping at least once, retrying
// at a fixed delay. Intentionally blocks the caller: the process must not
// begin serving before it can reach the store.
func (s *Store) WarmUp(ctx context.Context) error {
	return retry.Forever(ctx, s.logger, "postgres", s.retryDelay, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
		defer cancel()
		return s.pool.Ping(pingCtx)
	})
}

// Acquire checks out one connection lease. It blocks up to the configured
// acquire timeout when the pool is exhausted, then fails with
// ErrUnavailable. The lease must be returned with Release on every path.
func (s *Store) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	defer cancel()

	conn, err := s.pool.Acquire(acquireCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire: %v", ErrUnavailable, err)
	}
	return conn, nil
}

// Release returns a lease to the pool.
func (s *Store) Release(conn *pgxpool.Conn) {
	conn.Release()
}

// Insert persists one reading and returns the assigned id.
func (s *Store) Insert(ctx context.Context, r telemetry.Reading) (int64, error) {
	conn, err := s.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	var id int64
	v := r.Values()
	err = conn.QueryRow(ctx, insertSQL, v[0], v[1], v[2], v[3], v[4], v[5]).Scan(&id)
	if err != nil {
		return 0, mapErr("insert", err)
	}
	return id, nil
}

// Recent returns at most limit readings, newest first (id descending).
func (s *Store) Recent(ctx context.Context, limit int) ([]telemetry.Reading, error) {
	conn, err := s.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, recentSQL, limit)
	if err != nil {
		return nil, mapErr("query recent", err)
	}
	defer rows.Close()

	readings := make([]telemetry.Reading, 0, limit)
	for rows.Next() {
		var r telemetry.Reading
		if err := rows.Scan(&r.ID, &r.AirTemp, &r.Humidity, &r.WaterTemp,
			&r.WaterLevel, &r.PH, &r.TDS, &r.RecordedAt); err != nil {
			return nil, mapErr("scan reading", err)
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("iterate readings", err)
	}
	return readings, nil
}

// Ping reports whether the database currently answers.
func (s *Store) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	defer cancel()
	if err := s.pool.Ping(pingCtx); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	return nil
}

// Close drains and closes the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// mapErr sorts a pgx failure into the availability/storage taxonomy.
// Timeouts and dead connections are transient; everything else, including
// constraint violations, is a storage error the caller should not retry.
func mapErr(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	case pgconn.Timeout(err):
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	default:
		return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
	}
}
