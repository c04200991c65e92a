// Package query serves the most recent readings to polling clients.
package query

import (
	"context"

	"github.com/lehydrosys/hydrobridge/pkg/telemetry"
)

// Lister returns readings newest first. *store.Store implements it.
type Lister interface {
	Recent(ctx context.Context, limit int) ([]telemetry.Reading, error)
}

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Service applies limit defaulting and capping, then delegates to the
// store. It holds no state and caches nothing.
type Service struct {
	lister   Lister
	defLimit int
	maxLimit int
}

// New builds a query service; non-positive limits select the package
// defaults.
func New(lister Lister, defaultLimit, maxLimit int) *Service {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}
	return &Service{lister: lister, defLimit: defaultLimit, maxLimit: maxLimit}
}

// Latest returns at most limit readings, newest first. A zero limit means
// the default; anything above the maximum is clamped to it.
func (s *Service) Latest(ctx context.Context, limit int) ([]telemetry.Reading, error) {
	if limit <= 0 {
		limit = s.defLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	return s.lister.Recent(ctx, limit)
}
