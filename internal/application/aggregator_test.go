package application

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/bnema/coplay/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trackedID domain.AccountID = 92832630

func TestAggregateSkipsShortMatchesWithoutFetchingDetail(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{
		matches: []domain.MatchSummary{{MatchID: 1, DurationSeconds: 500, PlayerSlot: 0}},
	}
	gate := &recordingGate{}

	counts, err := NewAggregator(history, gate, quietLogger()).Aggregate(context.Background(), trackedID)
	require.NoError(t, err)
	assert.Empty(t, counts)
	assert.Empty(t, history.detailCalls)
	assert.Equal(t, []string{"history"}, gate.names)
	assert.True(t, history.closed)
}

func TestAggregateCountsOnlySameTeamParticipants(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{
		matches: []domain.MatchSummary{{MatchID: 1, DurationSeconds: 900, PlayerSlot: 0}},
		details: map[domain.MatchID]domain.MatchDetail{
			1: {MatchID: 1, Participants: []domain.Participant{
				{PlayerSlot: 0, AccountID: accountPtr(trackedID)},
				{PlayerSlot: 2, AccountID: accountPtr(111)},
				{PlayerSlot: 130, AccountID: accountPtr(222)},
			}},
		},
	}

	counts, err := NewAggregator(history, &recordingGate{}, quietLogger()).Aggregate(context.Background(), trackedID)
	require.NoError(t, err)
	assert.Equal(t, domain.CoPlayCounts{111: 1}, counts)
}

func TestAggregateAccumulatesAcrossMatchesInListOrder(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{
		matches: []domain.MatchSummary{
			{MatchID: 3, DurationSeconds: 1800, PlayerSlot: 130},
			{MatchID: 1, DurationSeconds: 300, PlayerSlot: 0},
			{MatchID: 2, DurationSeconds: 600, PlayerSlot: 1},
		},
		details: map[domain.MatchID]domain.MatchDetail{
			3: {MatchID: 3, Participants: []domain.Participant{
				{PlayerSlot: 130, AccountID: accountPtr(trackedID)},
				{PlayerSlot: 128, AccountID: accountPtr(111)},
				{PlayerSlot: 132, AccountID: nil},
				{PlayerSlot: 4, AccountID: accountPtr(333)},
			}},
			1: {MatchID: 1, Participants: []domain.Participant{
				{PlayerSlot: 1, AccountID: accountPtr(111)},
			}},
			2: {MatchID: 2, Participants: []domain.Participant{
				{PlayerSlot: 1, AccountID: accountPtr(trackedID)},
				{PlayerSlot: 0, AccountID: accountPtr(111)},
				{PlayerSlot: 6, AccountID: accountPtr(222)},
				{PlayerSlot: 7, AccountID: accountPtr(333)},
			}},
		},
	}
	gate := &recordingGate{}

	counts, err := NewAggregator(history, gate, quietLogger()).Aggregate(context.Background(), trackedID)
	require.NoError(t, err)
	assert.Equal(t, domain.CoPlayCounts{111: 2, 222: 1}, counts)
	assert.Equal(t, []domain.MatchID{3, 2}, history.detailCalls)
	assert.Equal(t, []string{"history", "match_detail", "match_detail"}, gate.names)
	assert.NotContains(t, counts, trackedID)
}

func TestAggregateWrapsHistoryFailure(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{listErr: errors.New("connection refused")}

	counts, err := NewAggregator(history, &recordingGate{}, quietLogger()).Aggregate(context.Background(), trackedID)
	require.Error(t, err)
	assert.Nil(t, counts)
	assert.ErrorIs(t, err, domain.ErrHistoryFetch)
	assert.ErrorContains(t, err, "connection refused")
	assert.True(t, history.closed)
}

func TestAggregateAbortsOnFirstDetailFailure(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{
		matches: []domain.MatchSummary{
			{MatchID: 1, DurationSeconds: 900},
			{MatchID: 2, DurationSeconds: 900},
		},
		detailErr: map[domain.MatchID]error{1: errors.New("status 500")},
	}

	counts, err := NewAggregator(history, &recordingGate{}, quietLogger()).Aggregate(context.Background(), trackedID)
	require.Error(t, err)
	assert.Nil(t, counts)
	assert.ErrorIs(t, err, domain.ErrMatchDetailFetch)
	assert.Equal(t, []domain.MatchID{1}, history.detailCalls)
}

func TestAggregatePropagatesGateTimeout(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{
		matches: []domain.MatchSummary{{MatchID: 1, DurationSeconds: 900}},
	}
	gate := &recordingGate{rejectFrom: 2}

	_, err := NewAggregator(history, gate, quietLogger()).Aggregate(context.Background(), trackedID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMatchDetailFetch)
	assert.ErrorIs(t, err, domain.ErrRateLimitTimeout)
	assert.Empty(t, history.detailCalls)
}

type fakeHistory struct {
	matches   []domain.MatchSummary
	details   map[domain.MatchID]domain.MatchDetail
	listErr   error
	detailErr map[domain.MatchID]error

	detailCalls []domain.MatchID
	closed      bool
}

func (f *fakeHistory) RecentMatches(_ context.Context, _ domain.AccountID, windowDays int) ([]domain.MatchSummary, error) {
	if windowDays != domain.HistoryWindowDays {
		return nil, errors.New("unexpected window")
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.matches, nil
}

func (f *fakeHistory) MatchDetail(_ context.Context, id domain.MatchID) (domain.MatchDetail, error) {
	f.detailCalls = append(f.detailCalls, id)
	if err := f.detailErr[id]; err != nil {
		return domain.MatchDetail{}, err
	}
	return f.details[id], nil
}

func (f *fakeHistory) Close() error {
	f.closed = true
	return nil
}

// recordingGate admits every call in order; from the rejectFrom-th call on it
// behaves like an exhausted limiter.
type recordingGate struct {
	names      []string
	rejectFrom int
}

func (g *recordingGate) Admit(ctx context.Context, name string, op func(context.Context) error) error {
	g.names = append(g.names, name)
	if g.rejectFrom > 0 && len(g.names) >= g.rejectFrom {
		return domain.ErrRateLimitTimeout
	}
	return op(ctx)
}

func accountPtr(id domain.AccountID) *domain.AccountID {
	return &id
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
