// Package ratelimit enforces per-client sliding-window budgets on the
// DJ-room event pipeline.
package ratelimit

import (
	"context"
	"fmt"

	"github.com/djroom/engine/internal/v1/config"
	"github.com/djroom/engine/internal/v1/logging"
	"github.com/djroom/engine/internal/v1/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

// Bucket names the shared rate-limit buckets an event is checked against.
// MIXER_SET, FX_* and CURSOR_MOVE are unlimited here; CURSOR_MOVE has its
// own server-side throttle in the room package instead.
type Bucket string

const (
	BucketQueueMutation Bucket = "queue_mutation" // QUEUE_ADD/REMOVE/REORDER/EDIT
	BucketDeckAction    Bucket = "deck_action"    // PLAY/PAUSE/CUE/TEMPO/LOAD
	BucketDeckSeek      Bucket = "deck_seek"      // DECK_SEEK
)

// Limiter checks and records bucket consumption per client.
type Limiter struct {
	queueMutation *limiter.Limiter
	deckAction    *limiter.Limiter
	deckSeek      *limiter.Limiter
}

// New builds a Limiter backed by redisClient's store, or an in-memory
// store when redisClient is nil (dev mode / single instance).
func New(cfg *config.Config, redisClient *redis.Client) (*Limiter, error) {
	queueRate, err := limiter.NewRateFromFormatted(cfg.RateLimitQueueMutations)
	if err != nil {
		return nil, fmt.Errorf("invalid queue mutation rate: %w", err)
	}
	deckRate, err := limiter.NewRateFromFormatted(cfg.RateLimitDeckActions)
	if err != nil {
		return nil, fmt.Errorf("invalid deck action rate: %w", err)
	}
	seekRate, err := limiter.NewRateFromFormatted(cfg.RateLimitDeckSeek)
	if err != nil {
		return nil, fmt.Errorf("invalid deck seek rate: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "djroom:limiter:"})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		store = s
	} else {
		store = memory.NewStore()
	}

	return &Limiter{
		queueMutation: limiter.New(store, queueRate),
		deckAction:    limiter.New(store, deckRate),
		deckSeek:      limiter.New(store, seekRate),
	}, nil
}

func (l *Limiter) instanceFor(bucket Bucket) *limiter.Limiter {
	switch bucket {
	case BucketQueueMutation:
		return l.queueMutation
	case BucketDeckAction:
		return l.deckAction
	case BucketDeckSeek:
		return l.deckSeek
	default:
		return nil
	}
}

// CheckAndRecord consumes one unit from bucket for clientID. It returns
// true if the event is allowed. A store failure fails open.
func (l *Limiter) CheckAndRecord(ctx context.Context, clientID string, bucket Bucket) bool {
	instance := l.instanceFor(bucket)
	if instance == nil {
		return true
	}

	lctx, err := instance.Get(ctx, string(bucket)+":"+clientID)
	if err != nil {
		logging.Error(ctx, "rate limiter store failed", zap.Error(err), zap.String("bucket", string(bucket)))
		return true
	}

	if lctx.Reached {
		metrics.RateLimitExceeded.WithLabelValues(string(bucket)).Inc()
		return false
	}
	return true
}
