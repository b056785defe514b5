package persistence

import "context"

// NoopSink discards snapshots and never restores anything. Used in
// single-instance mode or in tests that don't care about durability.
type NoopSink struct{}

func (NoopSink) Snapshot(ctx context.Context, roomID string, state any) error { return nil }

func (NoopSink) Restore(ctx context.Context, roomID string, into any) (bool, error) {
	return false, nil
}

func (NoopSink) Ping(ctx context.Context) error { return nil }

func (NoopSink) Close() error { return nil }
