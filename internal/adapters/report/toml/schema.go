package toml

import (
	"fmt"
	"time"

	"github.com/bnema/coplay/internal/domain"
)

const currentSchemaVersion = 1

type reportSchema struct {
	Version        int            `toml:"version"`
	TrackedAccount int64          `toml:"tracked_account"`
	GeneratedAt    string         `toml:"generated_at"`
	DryRun         bool           `toml:"dry_run"`
	Counts         []countSchema  `toml:"counts"`
	Renames        []renameSchema `toml:"renames,omitempty"`
}

type countSchema struct {
	AccountID int64 `toml:"account_id"`
	Count     int   `toml:"count"`
}

type renameSchema struct {
	FriendID    string `toml:"friend_id"`
	AccountID   int64  `toml:"account_id"`
	OldNickname string `toml:"old_nickname"`
	NewNickname string `toml:"new_nickname"`
}

func (s *reportSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s reportSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported report schema version %d (current %d)", s.Version, currentSchemaVersion)
	}
	return nil
}

func toSchema(report Report) reportSchema {
	out := reportSchema{
		Version:        currentSchemaVersion,
		TrackedAccount: int64(report.Tracked),
		GeneratedAt:    report.GeneratedAt.UTC().Format(time.RFC3339),
		DryRun:         report.DryRun,
	}
	for _, entry := range report.Counts.Sorted() {
		out.Counts = append(out.Counts, countSchema{AccountID: int64(entry.AccountID), Count: entry.Count})
	}
	for _, rename := range report.Renames {
		out.Renames = append(out.Renames, renameSchema{
			FriendID:    string(rename.FriendID),
			AccountID:   int64(rename.AccountID),
			OldNickname: rename.OldNickname,
			NewNickname: rename.NewNickname,
		})
	}
	return out
}

func fromSchema(in reportSchema) Report {
	report := Report{
		Tracked: domain.AccountID(in.TrackedAccount),
		DryRun:  in.DryRun,
		Counts:  make(domain.CoPlayCounts, len(in.Counts)),
	}
	if parsed, err := time.Parse(time.RFC3339, in.GeneratedAt); err == nil {
		report.GeneratedAt = parsed
	}
	for _, c := range in.Counts {
		report.Counts[domain.AccountID(c.AccountID)] = c.Count
	}
	for _, r := range in.Renames {
		parsed, _ := domain.ParseNickname(r.NewNickname)
		old, _ := domain.ParseNickname(r.OldNickname)
		report.Renames = append(report.Renames, domain.Rename{
			FriendID:    domain.FriendID(r.FriendID),
			AccountID:   domain.AccountID(r.AccountID),
			OldNickname: r.OldNickname,
			NewNickname: r.NewNickname,
			OldCount:    old.Count,
			NewCount:    parsed.Count,
		})
	}
	return report
}
