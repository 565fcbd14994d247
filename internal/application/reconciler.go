package application

import (
	"context"
	"fmt"

	"github.com/bnema/coplay/internal/domain"
	"github.com/sirupsen/logrus"
)

type Renamer interface {
	ModifyNickname(ctx context.Context, friend domain.FriendID, oldNickname, newNickname string) error
}

// Reconciler rewrites the count prefix of marked nicknames so it matches the
// co-play counts.
type Reconciler struct {
	renamer Renamer
	log     logrus.FieldLogger
}

func NewReconciler(renamer Renamer, log logrus.FieldLogger) *Reconciler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reconciler{renamer: renamer, log: log.WithField("component", "reconciler")}
}

// Plan lists the renames needed for the given nicknames. Nicknames without
// the marker are left alone; friends with no co-play count get "00".
func Plan(nicknames []domain.FriendNickname, counts domain.CoPlayCounts) []domain.Rename {
	var renames []domain.Rename
	for _, friend := range nicknames {
		parsed, ok := domain.ParseNickname(friend.Nickname)
		if !ok {
			continue
		}

		count := domain.FormatCount(counts.Count(friend.AccountID))
		desired := parsed.WithCount(count)
		if desired == friend.Nickname {
			continue
		}

		renames = append(renames, domain.Rename{
			FriendID:    friend.FriendID,
			AccountID:   friend.AccountID,
			OldNickname: friend.Nickname,
			NewNickname: desired,
			OldCount:    parsed.Count,
			NewCount:    count,
		})
	}
	return renames
}

// Apply issues renames in order and stops at the first failure. It returns
// the renames that were sent.
func (r *Reconciler) Apply(ctx context.Context, renames []domain.Rename) ([]domain.Rename, error) {
	issued := make([]domain.Rename, 0, len(renames))
	for _, rename := range renames {
		if err := r.renamer.ModifyNickname(ctx, rename.FriendID, rename.OldNickname, rename.NewNickname); err != nil {
			return issued, fmt.Errorf("rename %s: %w", rename.FriendID, err)
		}
		issued = append(issued, rename)
	}

	r.log.WithField("renames", len(issued)).Debug("renames issued")
	return issued, nil
}

func (r *Reconciler) Reconcile(ctx context.Context, nicknames []domain.FriendNickname, counts domain.CoPlayCounts) ([]domain.Rename, error) {
	return r.Apply(ctx, Plan(nicknames, counts))
}
