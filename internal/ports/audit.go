package ports

import (
	"context"

	"github.com/bnema/coplay/internal/domain"
)

type RenameSink interface {
	Publish(ctx context.Context, tracked domain.AccountID, renames []domain.Rename) error
	Close() error
}
