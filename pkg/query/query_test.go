package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehydrosys/hydrobridge/pkg/telemetry"
)

type fakeLister struct {
	gotLimit int
	readings []telemetry.Reading
	err      error
}

func (f *fakeLister) Recent(_ context.Context, limit int) ([]telemetry.Reading, error) {
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.readings) {
		return f.readings[:limit], nil
	}
	return f.readings, nil
}

func TestLatestAppliesDefaultLimit(t *testing.T) {
	lister := &fakeLister{}
	s := New(lister, 50, 500)

	_, err := s.Latest(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 50, lister.gotLimit)
}

func TestLatestCapsLimit(t *testing.T) {
	lister := &fakeLister{}
	s := New(lister, 50, 500)

	_, err := s.Latest(context.Background(), 10000)
	require.NoError(t, err)
	assert.Equal(t, 500, lister.gotLimit)
}

func TestLatestPassesThroughLimit(t *testing.T) {
	lister := &fakeLister{readings: []telemetry.Reading{{ID: 3}, {ID: 2}, {ID: 1}}}
	s := New(lister, 50, 500)

	readings, err := s.Latest(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, lister.gotLimit)
	assert.Len(t, readings, 2)
}

func TestLatestIdempotent(t *testing.T) {
	lister := &fakeLister{readings: []telemetry.Reading{{ID: 2}, {ID: 1}}}
	s := New(lister, 50, 500)

	first, err := s.Latest(context.Background(), 10)
	require.NoError(t, err)
	second, err := s.Latest(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLatestPropagatesError(t *testing.T) {
	lister := &fakeLister{err: errors.New("storage failure")}
	s := New(lister, 0, 0)

	_, err := s.Latest(context.Background(), 1)
	require.Error(t, err)
}

func TestNewFallsBackToPackageDefaults(t *testing.T) {
	lister := &fakeLister{}
	s := New(lister, 0, 0)

	_, err := s.Latest(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, lister.gotLimit)
}
