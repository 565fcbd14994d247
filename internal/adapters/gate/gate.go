package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/coplay/internal/domain"
	"github.com/bnema/coplay/internal/ports"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Gate admits at most one operation per refresh period. An operation that
// cannot get a permit within the admit timeout is rejected without running.
type Gate struct {
	limiter *rate.Limiter
	timeout time.Duration
	stats   ports.GateStatsStore
	clock   ports.Clock
	log     logrus.FieldLogger
}

var _ ports.Gate = (*Gate)(nil)

type Option func(*Gate)

func WithStats(stats ports.GateStatsStore) Option {
	return func(g *Gate) { g.stats = stats }
}

func WithClock(clock ports.Clock) Option {
	return func(g *Gate) { g.clock = clock }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(g *Gate) { g.log = log }
}

// New builds a gate granting one permit per period.
func New(period, timeout time.Duration, opts ...Option) *Gate {
	g := &Gate{
		limiter: rate.NewLimiter(rate.Every(period), 1),
		timeout: timeout,
		clock:   ports.SystemClock{},
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewDefault uses the history service limits.
func NewDefault(opts ...Option) *Gate {
	return New(domain.GateRefreshPeriod, domain.GateAdmitTimeout, opts...)
}

func (g *Gate) Admit(ctx context.Context, name string, op func(context.Context) error) error {
	start := g.clock.Now()

	waitCtx, cancel := context.WithTimeout(ctx, g.timeout)
	err := g.limiter.Wait(waitCtx)
	cancel()

	waited := g.clock.Now().Sub(start)
	g.record(ctx, domain.GateEvent{Name: name, Allowed: err == nil, Waited: waited, At: start})

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s after %s: %w", domain.ErrRateLimitTimeout, name, waited.Round(time.Millisecond), err)
	}

	return op(ctx)
}

func (g *Gate) record(ctx context.Context, ev domain.GateEvent) {
	if g.stats == nil {
		return
	}
	if err := g.stats.Record(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		g.log.WithError(err).WithField("gate", ev.Name).Debug("record gate decision")
	}
}
