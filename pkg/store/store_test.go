package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lehydrosys/hydrobridge/internal/testutil/pgtest"
	"github.com/lehydrosys/hydrobridge/pkg/telemetry"
)

func TestMapErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"deadline exceeded", context.DeadlineExceeded, ErrUnavailable},
		{"canceled", context.Canceled, ErrUnavailable},
		{"wrapped deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), ErrUnavailable},
		{"constraint violation", errors.New("ERROR: null value in column"), ErrStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapErr("op", tt.err), tt.want)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, int32(5), cfg.PoolSize)
	assert.Equal(t, 3*time.Second, cfg.AcquireTimeout)
	assert.Equal(t, 5*time.Second, cfg.RetryDelay)
}

// Live database tests below; they skip unless TEST_DATABASE is set.

func newTestStore(t *testing.T, poolSize int32) *Store {
	t.Helper()
	connString := pgtest.ConnString(t)
	ctx := context.Background()

	conn := pgtest.Connect(ctx, t)
	_, err := conn.Exec(ctx, Schema)
	require.NoError(t, err)

	s, err := New(ctx, Config{
		ConnString:     connString,
		PoolSize:       poolSize,
		AcquireTimeout: time.Second,
		RetryDelay:     100 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.WarmUp(ctx))
	return s
}

func TestInsertAndRecent(t *testing.T) {
	s := newTestStore(t, 5)
	ctx := context.Background()

	r := telemetry.Reading{AirTemp: 24.5, Humidity: 60.0, WaterTemp: 22.1, WaterLevel: 80.0, PH: 6.8, TDS: 650}
	id, err := s.Insert(ctx, r)
	require.NoError(t, err)
	assert.Positive(t, id)

	readings, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, readings, 1)

	got := readings[0]
	assert.Equal(t, id, got.ID)
	assert.InDelta(t, 24.5, got.AirTemp, 1e-9)
	assert.InDelta(t, 650, got.TDS, 1e-9)
	assert.False(t, got.RecordedAt.IsZero(), "timestamp is assigned at persistence time")
}

func TestRecentOrderAndLimit(t *testing.T) {
	s := newTestStore(t, 5)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		id, err := s.Insert(ctx, telemetry.Reading{AirTemp: float64(i)})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	readings, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, readings, 3)

	assert.Equal(t, ids[4], readings[0].ID, "newest first")
	for i := 1; i < len(readings); i++ {
		assert.Greater(t, readings[i-1].ID, readings[i].ID, "strictly descending ids")
	}
}

func TestRecentIdempotent(t *testing.T) {
	s := newTestStore(t, 5)
	ctx := context.Background()

	_, err := s.Insert(ctx, telemetry.Reading{AirTemp: 1})
	require.NoError(t, err)

	first, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	second, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAcquireTimesOutWhenPoolExhausted(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()

	// Hold every lease so the next acquire has to wait for the timeout.
	var held []*pgxpool.Conn
	for i := 0; i < 2; i++ {
		conn, err := s.Acquire(ctx)
		require.NoError(t, err)
		held = append(held, conn)
	}

	start := time.Now()
	_, err := s.Acquire(ctx)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Less(t, time.Since(start), 5*time.Second, "must time out, not deadlock")

	for _, conn := range held {
		s.Release(conn)
	}

	// The pool recovers once leases are returned.
	conn, err := s.Acquire(ctx)
	require.NoError(t, err)
	s.Release(conn)
}

func TestPing(t *testing.T) {
	s := newTestStore(t, 2)
	require.NoError(t, s.Ping(context.Background()))
}
