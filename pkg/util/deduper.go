package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper remembers delivered event ids for ttl so a redelivered change event
// does not trigger a second snapshot read.
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce returns true the first time scope+id is seen. When Redis is
// unavailable it lets the event through.
func (d *Deduper) AcquireOnce(ctx context.Context, scope, id string) bool {
	if d == nil || d.rdb == nil {
		return true
	}
	key := DedupKey(scope, id)

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		d.logger.Warn("Redis dedup check failed, allowing processing",
			zap.String("scope", scope),
			zap.String("event_id", id),
			zap.Error(err),
		)
		return true
	}

	if !ok {
		d.logger.Debug("Skipped duplicated event",
			zap.String("scope", scope),
			zap.String("dedup_key", key),
		)
	}
	return ok
}

func DedupKey(scope, id string) string {
	return fmt.Sprintf("dedup:%s:%s", scope, id)
}
