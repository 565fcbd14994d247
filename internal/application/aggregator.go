package application

import (
	"context"
	"fmt"

	"github.com/bnema/coplay/internal/domain"
	"github.com/bnema/coplay/internal/ports"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/bnema/coplay/internal/application"

// Aggregator counts, per account, the qualifying matches played on the same
// team as the tracked account. It owns its history client and closes it when
// the aggregation ends.
type Aggregator struct {
	history ports.HistoryClient
	gate    ports.Gate
	log     logrus.FieldLogger
	tracer  trace.Tracer
}

func NewAggregator(history ports.HistoryClient, gate ports.Gate, log logrus.FieldLogger) *Aggregator {
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Aggregator{
		history: history,
		gate:    gate,
		log:     log.WithField("component", "history"),
		tracer:  otel.Tracer(tracerName),
	}
}

func (a *Aggregator) Aggregate(ctx context.Context, tracked domain.AccountID) (counts domain.CoPlayCounts, err error) {
	ctx, span := a.tracer.Start(ctx, "aggregate", trace.WithAttributes(attribute.Int64("account.id", int64(tracked))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	defer func() {
		if closeErr := a.history.Close(); closeErr != nil {
			a.log.WithError(closeErr).Warn("close history client")
		}
	}()

	reportProgress(ctx, "Fetching match history")
	var matches []domain.MatchSummary
	err = a.gate.Admit(ctx, "history", func(ctx context.Context) error {
		var fetchErr error
		matches, fetchErr = a.history.RecentMatches(ctx, tracked, domain.HistoryWindowDays)
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrHistoryFetch, err)
	}
	a.log.Infof("Processing %d matches", len(matches))
	span.SetAttributes(attribute.Int("matches.listed", len(matches)))

	counts = domain.CoPlayCounts{}
	for i, match := range matches {
		stage := fmt.Sprintf("Game %d/%d", i+1, len(matches))
		a.log.Info(stage)
		reportProgress(ctx, stage)
		if !match.Qualifies() {
			a.log.WithField("match", match.MatchID).Debugf("skip match shorter than %ds", domain.MinMatchDurationSeconds)
			continue
		}

		detail, err := a.matchDetail(ctx, match.MatchID)
		if err != nil {
			return nil, err
		}

		credit(counts, tracked, match, detail)
	}

	span.SetAttributes(attribute.Int("accounts.counted", len(counts)))
	return counts, nil
}

func (a *Aggregator) matchDetail(ctx context.Context, id domain.MatchID) (domain.MatchDetail, error) {
	ctx, span := a.tracer.Start(ctx, "match_detail", trace.WithAttributes(attribute.Int64("match.id", int64(id))))
	defer span.End()

	var detail domain.MatchDetail
	err := a.gate.Admit(ctx, "match_detail", func(ctx context.Context) error {
		var fetchErr error
		detail, fetchErr = a.history.MatchDetail(ctx, id)
		return fetchErr
	})
	if err != nil {
		span.RecordError(err)
		return domain.MatchDetail{}, fmt.Errorf("%w: match %d: %w", domain.ErrMatchDetailFetch, id, err)
	}

	return detail, nil
}

func credit(counts domain.CoPlayCounts, tracked domain.AccountID, match domain.MatchSummary, detail domain.MatchDetail) {
	for _, p := range detail.Participants {
		if p.AccountID == nil || *p.AccountID == tracked {
			continue
		}
		if !domain.SameTeam(p.PlayerSlot, match.PlayerSlot) {
			continue
		}
		counts[*p.AccountID]++
	}
}
