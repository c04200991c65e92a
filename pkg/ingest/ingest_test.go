package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lehydrosys/hydrobridge/pkg/telemetry"
)

type fakeInserter struct {
	mu       sync.Mutex
	inserted []telemetry.Reading
	err      error
	block    chan struct{}
}

func (f *fakeInserter) Insert(_ context.Context, r telemetry.Reading) (int64, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.inserted = append(f.inserted, r)
	return int64(len(f.inserted)), nil
}

func (f *fakeInserter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserted)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestIngestJSONEventuallyPersisted(t *testing.T) {
	ins := &fakeInserter{}
	p := New(ins, DefaultConfig(), zap.NewNop())
	p.Start()
	defer p.Stop()

	err := p.IngestJSON([]byte(`{"air_temp":24.5,"humidity":60.0,"water_temp":22.1,"water_level":80.0,"ph":6.8,"tds":650}`))
	require.NoError(t, err)

	waitFor(t, func() bool { return ins.count() == 1 })

	ins.mu.Lock()
	defer ins.mu.Unlock()
	assert.Equal(t, telemetry.Reading{AirTemp: 24.5, Humidity: 60.0, WaterTemp: 22.1, WaterLevel: 80.0, PH: 6.8, TDS: 650}, ins.inserted[0])
}

func TestIngestJSONValidationRejected(t *testing.T) {
	ins := &fakeInserter{}
	p := New(ins, DefaultConfig(), zap.NewNop())
	p.Start()

	err := p.IngestJSON([]byte(`{"air_temp":24.5,"humidity":60.0}`))
	require.ErrorIs(t, err, telemetry.ErrValidation)

	p.Stop()
	assert.Zero(t, ins.count(), "nothing must be persisted for a rejected payload")
}

func TestIngestLineEventuallyPersisted(t *testing.T) {
	ins := &fakeInserter{}
	p := New(ins, DefaultConfig(), zap.NewNop())
	p.Start()
	defer p.Stop()

	require.NoError(t, p.IngestLine("24.5,60.0,22.1,80.0,6.8,650"))
	waitFor(t, func() bool { return ins.count() == 1 })
}

func TestIngestLineValidationRejected(t *testing.T) {
	ins := &fakeInserter{}
	p := New(ins, DefaultConfig(), zap.NewNop())
	p.Start()
	defer p.Stop()

	err := p.IngestLine("24.5,60.0,22.1")
	require.ErrorIs(t, err, telemetry.ErrValidation)
}

func TestEnqueueQueueFull(t *testing.T) {
	block := make(chan struct{})
	ins := &fakeInserter{block: block}
	cfg := Config{QueueSize: 1, Workers: 1, WriteTimeout: time.Second}
	p := New(ins, cfg, zap.NewNop())
	p.Start()

	line := "1,2,3,4,5,6"
	// The worker picks up the first reading and blocks inside Insert.
	require.NoError(t, p.IngestLine(line))
	waitFor(t, func() bool { return len(p.queue) == 0 })

	// The second fills the queue; the third has nowhere to go.
	require.NoError(t, p.IngestLine(line))
	err := p.IngestLine(line)
	require.ErrorIs(t, err, ErrQueueFull)

	close(block)
	p.Stop()
}

func TestFailedWriteIsDroppedNotRetried(t *testing.T) {
	ins := &fakeInserter{err: errors.New("db down")}
	p := New(ins, DefaultConfig(), zap.NewNop())
	p.Start()

	require.NoError(t, p.IngestLine("1,2,3,4,5,6"))
	p.Stop()

	assert.Zero(t, ins.count())
}

func TestStopDrainsQueue(t *testing.T) {
	ins := &fakeInserter{}
	p := New(ins, Config{QueueSize: 64, Workers: 2, WriteTimeout: time.Second}, zap.NewNop())
	p.Start()

	for i := 0; i < 20; i++ {
		require.NoError(t, p.IngestLine("1,2,3,4,5,6"))
	}
	p.Stop()

	assert.Equal(t, 20, ins.count())
}

func TestHandleBrokerMessageNeverPanics(t *testing.T) {
	ins := &fakeInserter{}
	p := New(ins, DefaultConfig(), zap.NewNop())
	p.Start()
	defer p.Stop()

	p.HandleBrokerMessage([]byte("not,numeric,at,all"))
	p.HandleBrokerMessage([]byte(""))
	p.HandleBrokerMessage([]byte("1,2,3,4,5,6"))

	waitFor(t, func() bool { return ins.count() == 1 })
}
