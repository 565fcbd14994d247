package domain

import (
	"sort"
	"strconv"
)

// HistoryWindowDays is the rolling window the history service is asked for.
const HistoryWindowDays = 30

const (
	// MinMatchDurationSeconds excludes short or abandoned games.
	MinMatchDurationSeconds = 600
	// MaxTeamSlotDistance is the widest slot gap still counted as the same team.
	MaxTeamSlotDistance = 5
)

type AccountID int64

func (id AccountID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

type MatchID int64

type MatchSummary struct {
	MatchID         MatchID
	DurationSeconds int
	PlayerSlot      int
}

// Qualifies reports whether the match is long enough to count as co-play.
func (m MatchSummary) Qualifies() bool {
	return m.DurationSeconds >= MinMatchDurationSeconds
}

type Participant struct {
	PlayerSlot int
	// AccountID is nil for players with a private profile.
	AccountID *AccountID
}

type MatchDetail struct {
	MatchID      MatchID
	Participants []Participant
}

// SameTeam compares slots by absolute distance.
func SameTeam(slot, trackedSlot int) bool {
	diff := slot - trackedSlot
	if diff < 0 {
		diff = -diff
	}
	return diff <= MaxTeamSlotDistance
}

type CoPlayCounts map[AccountID]int

func (c CoPlayCounts) Count(id AccountID) int {
	return c[id]
}

type CoPlayEntry struct {
	AccountID AccountID `json:"account_id"`
	Count     int       `json:"count"`
}

// Sorted returns the counts ordered by count descending, then account id.
func (c CoPlayCounts) Sorted() []CoPlayEntry {
	entries := make([]CoPlayEntry, 0, len(c))
	for id, count := range c {
		entries = append(entries, CoPlayEntry{AccountID: id, Count: count})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].AccountID < entries[j].AccountID
	})

	return entries
}
