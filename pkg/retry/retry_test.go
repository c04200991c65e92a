package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestForeverSucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Forever(context.Background(), zap.NewNop(), "test", time.Millisecond, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestForeverStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- Forever(ctx, zap.NewNop(), "test", time.Millisecond, func(context.Context) error {
			attempts++
			return errors.New("always failing")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Forever did not stop after context cancellation")
	}
	assert.Greater(t, attempts, 1)
}
