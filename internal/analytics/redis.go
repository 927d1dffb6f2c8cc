// Package analytics keeps per-minute decision counters in Redis.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/djlord-it/adhoc-skipper/internal/domain"
)

// DefaultRetention is how long a counter bucket is kept.
const DefaultRetention = 24 * time.Hour

type RedisSink struct {
	client    redis.Cmdable
	retention time.Duration
}

func NewRedisSink(client redis.Cmdable, retention time.Duration) *RedisSink {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisSink{client: client, retention: retention}
}

// Write increments the counter bucket for the decision's outcome, run kind
// and evaluation minute.
func (s *RedisSink) Write(ctx context.Context, d domain.Decision) error {
	key := buildKey(d.Outcome.String(), d.Kind, d.EvaluatedAt)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.retention)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}

	return nil
}

// Count returns the counter for one bucket; missing buckets count as zero.
func (s *RedisSink) Count(ctx context.Context, outcome string, kind domain.RunKind, at time.Time) (int64, error) {
	n, err := s.client.Get(ctx, buildKey(outcome, kind, at)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}
	return n, nil
}

func buildKey(outcome string, kind domain.RunKind, t time.Time) string {
	return fmt.Sprintf("adhoc:d:%s:%s:%s", outcome, kind, t.UTC().Format("200601021504"))
}
