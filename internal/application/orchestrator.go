package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/coplay/internal/domain"
	"github.com/bnema/coplay/internal/ports"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type CoPlayAggregator interface {
	Aggregate(ctx context.Context, tracked domain.AccountID) (domain.CoPlayCounts, error)
}

type Session interface {
	Renamer
	Run(ctx context.Context) error
	WaitForNicknamesReady(ctx context.Context) bool
	Nicknames() []domain.FriendNickname
	WaitForMutationsSettled(ctx context.Context) bool
	Stop() error
}

type SyncResult struct {
	Tracked        domain.AccountID
	Counts         domain.CoPlayCounts
	Nicknames      []domain.FriendNickname
	NicknamesReady bool
	Renames        []domain.Rename
	Settled        bool
	DryRun         bool
}

// Orchestrator runs one sync: the session loop runs in the background while
// the co-play counts are computed, then nicknames are reconciled and the
// session is shut down.
type Orchestrator struct {
	aggregator CoPlayAggregator
	session    Session
	reconciler *Reconciler
	sinks      []ports.RenameSink
	dryRun     bool
	log        logrus.FieldLogger
	tracer     trace.Tracer
}

type OrchestratorOption func(*Orchestrator)

// WithRenameSinks registers sinks that receive every batch of issued renames.
func WithRenameSinks(sinks ...ports.RenameSink) OrchestratorOption {
	return func(o *Orchestrator) {
		for _, sink := range sinks {
			if sink != nil {
				o.sinks = append(o.sinks, sink)
			}
		}
	}
}

// WithDryRun computes renames without sending them.
func WithDryRun(dryRun bool) OrchestratorOption {
	return func(o *Orchestrator) {
		o.dryRun = dryRun
	}
}

func NewOrchestrator(aggregator CoPlayAggregator, session Session, log logrus.FieldLogger, opts ...OrchestratorOption) *Orchestrator {
	if log == nil {
		log = logrus.StandardLogger()
	}

	o := &Orchestrator{
		aggregator: aggregator,
		session:    session,
		reconciler: NewReconciler(session, log),
		log:        log.WithField("component", "orchestrator"),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Sync returns the session loop error after an orderly shutdown, joined with
// any aggregation or rename failure.
func (o *Orchestrator) Sync(ctx context.Context, tracked domain.AccountID) (SyncResult, error) {
	ctx, span := o.tracer.Start(ctx, "sync", trace.WithAttributes(
		attribute.Int64("account.id", int64(tracked)),
		attribute.Bool("dry_run", o.dryRun),
	))
	defer span.End()

	result := SyncResult{Tracked: tracked, DryRun: o.dryRun}

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- o.session.Run(ctx)
	}()

	counts, err := o.aggregator.Aggregate(ctx, tracked)
	if err != nil {
		o.log.WithError(err).Error("Unable to compute co-play counts")
		return result, errors.Join(err, o.shutdown(loopDone))
	}
	result.Counts = counts

	reportProgress(ctx, "Waiting for nicknames")
	if !o.session.WaitForNicknamesReady(ctx) {
		o.log.Warn("Session stopped before nicknames were received")
		return result, errors.Join(ctx.Err(), o.shutdown(loopDone))
	}
	result.NicknamesReady = true
	result.Nicknames = o.session.Nicknames()

	renames := Plan(result.Nicknames, counts)
	span.SetAttributes(attribute.Int("renames.planned", len(renames)))

	if o.dryRun {
		result.Renames = renames
		result.Settled = true
		return result, o.shutdown(loopDone)
	}

	reportProgress(ctx, fmt.Sprintf("Sending renames (%d)", len(renames)))
	issued, applyErr := o.reconciler.Apply(ctx, renames)
	result.Renames = issued

	reportProgress(ctx, "Waiting for acknowledgements")
	result.Settled = o.session.WaitForMutationsSettled(ctx)
	if !result.Settled {
		o.log.Warn("Session stopped with unacknowledged renames")
	}

	o.publish(ctx, tracked, issued)

	reportProgress(ctx, "Logging off")
	return result, errors.Join(applyErr, o.shutdown(loopDone))
}

func (o *Orchestrator) shutdown(loopDone <-chan error) error {
	if err := o.session.Stop(); err != nil {
		o.log.WithError(err).Warn("stop session")
	}
	return <-loopDone
}

func (o *Orchestrator) publish(ctx context.Context, tracked domain.AccountID, renames []domain.Rename) {
	if len(renames) == 0 {
		return
	}
	for _, sink := range o.sinks {
		if err := sink.Publish(ctx, tracked, renames); err != nil {
			o.log.WithError(err).Warn("publish renames")
		}
	}
}
