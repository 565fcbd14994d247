package ports

import (
	"context"

	"github.com/bnema/coplay/internal/domain"
)

// HistoryClient reads the match-history service. The service applies the
// day window itself; results are not re-filtered by date.
type HistoryClient interface {
	RecentMatches(ctx context.Context, id domain.AccountID, windowDays int) ([]domain.MatchSummary, error)
	MatchDetail(ctx context.Context, id domain.MatchID) (domain.MatchDetail, error)
	Close() error
}
