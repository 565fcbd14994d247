package gate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bnema/coplay/internal/domain"
	"github.com/bnema/coplay/internal/ports"
	"github.com/redis/go-redis/v9"
)

// RedisStatsStore aggregates gate decisions in Redis hashes so that several
// hosts sharing one history API key can watch their combined call rate.
type RedisStatsStore struct {
	rdb    redis.Cmdable
	prefix string
	// ttl applies to the per-minute buckets only; totals never expire.
	ttl time.Duration
}

var _ ports.GateStatsStore = (*RedisStatsStore)(nil)

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "coplay:gate",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.GateEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucketKey, s.ttl)
	}

	if name := strings.TrimSpace(ev.Name); name != "" {
		pipe.HIncrBy(ctx, s.prefix+":name", name+":"+field, 1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record gate decision in redis: %w", err)
	}
	return nil
}
