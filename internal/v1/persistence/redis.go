// Package persistence snapshots room state to a durable store so a room
// can be restored after a process restart.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/djroom/engine/internal/v1/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// Sink persists and restores one JSON blob per room.
type Sink interface {
	Snapshot(ctx context.Context, roomID string, state any) error
	Restore(ctx context.Context, roomID string, into any) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

func snapshotKey(roomID string) string {
	return fmt.Sprintf("djroom:snapshot:%s", roomID)
}

// RedisSink is a Sink backed by Redis, guarded by a circuit breaker so a
// flaky store degrades the engine gracefully instead of blocking it.
type RedisSink struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
	ttl    time.Duration
}

// NewRedisSink connects to addr and verifies connectivity immediately.
func NewRedisSink(addr, password string) (*RedisSink, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "persistence",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("persistence").Set(stateVal)
		},
	}

	slog.Info("connected to persistence store", "addr", addr)
	return &RedisSink{
		client: rdb,
		cb:     gobreaker.NewCircuitBreaker(st),
		ttl:    24 * time.Hour,
	}, nil
}

// Snapshot marshals state and writes it to the room's key.
func (s *RedisSink) Snapshot(ctx context.Context, roomID string, state any) error {
	start := time.Now()
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal room snapshot: %w", err)
	}

	_, err = s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Set(ctx, snapshotKey(roomID), data, s.ttl).Err()
	})

	metrics.PersistenceSnapshotDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("persistence").Inc()
			metrics.PersistenceSnapshotsTotal.WithLabelValues("dropped").Inc()
			slog.Warn("persistence circuit open: dropping snapshot", "roomId", roomID)
			return nil
		}
		metrics.PersistenceSnapshotsTotal.WithLabelValues("error").Inc()
		slog.Error("snapshot write failed", "roomId", roomID, "error", err)
		return err
	}

	metrics.PersistenceSnapshotsTotal.WithLabelValues("ok").Inc()
	return nil
}

// Restore unmarshals the room's stored blob into into. The bool return
// reports whether a snapshot existed.
func (s *RedisSink) Restore(ctx context.Context, roomID string, into any) (bool, error) {
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.client.Get(ctx, snapshotKey(roomID)).Bytes()
	})

	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("persistence").Inc()
			slog.Warn("persistence circuit open: no snapshot restored", "roomId", roomID)
			return false, nil
		}
		return false, fmt.Errorf("failed to read snapshot: %w", err)
	}

	data := res.([]byte)
	if err := json.Unmarshal(data, into); err != nil {
		return false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return true, nil
}

// Ping verifies store connectivity, used by readiness checks.
func (s *RedisSink) Ping(ctx context.Context) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})
	if err != nil && err == gobreaker.ErrOpenState {
		metrics.CircuitBreakerFailures.WithLabelValues("persistence").Inc()
	}
	return err
}

// Close releases the underlying connection pool.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
