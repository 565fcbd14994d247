package ports

import (
	"context"

	"github.com/bnema/coplay/internal/domain"
)

// GateStatsStore records gate decisions. Callers treat failures as best
// effort.
type GateStatsStore interface {
	Record(ctx context.Context, ev domain.GateEvent) error
}
