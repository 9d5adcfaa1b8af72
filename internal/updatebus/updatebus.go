// Package updatebus implements the Update Bus contract of spec.md §4.1 on
// top of a Redis Stream: append (symbol, data_kind) and a blocking read
// from a consumer-supplied last-id cursor with a maximum wait. XADD's
// approximate MaxLen trim is exactly the bus's "bounded (~10000),
// approximate-trimmed" requirement, and XREAD's BLOCK option is exactly
// its "blocking read... with a maximum wait" — grounded on the teacher's
// stream writer/reader pair in internal/store/redis.
package updatebus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"signalengine/internal/model"
)

const streamKey = "stream:data_updates"

// Config configures the bus's Redis connection and bound.
type Config struct {
	Addr     string
	Password string
	DB       int
	MaxLen   int64 // approximate cap; defaults to 10000 per spec.md §4.1
}

// Bus is a Redis-Streams-backed Update Bus.
type Bus struct {
	client *goredis.Client
	maxLen int64

	// Dropped counts publish failures (logged and counted per spec.md §4.1
	// "Failure semantics").
	Dropped func()
}

// New dials Redis and pings it.
func New(cfg Config) (*Bus, error) {
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = 10000
	}
	client := goredis.NewClient(&goredis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("updatebus: redis ping: %w", err)
	}
	return &Bus{client: client, maxLen: cfg.MaxLen}, nil
}

// Publish appends a (symbol, data_kind) notification. A failure here is
// transient I/O per spec.md §7: it is logged, counted through Dropped and
// returned to the caller; the ingestion handlers count it and propagate it
// no further.
func (b *Bus) Publish(ctx context.Context, symbol, dataKind string) error {
	err := b.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]any{"symbol": model.CanonicalSymbol(symbol), "kind": dataKind},
	}).Err()
	if err != nil {
		if b.Dropped != nil {
			b.Dropped()
		}
		slog.Warn("updatebus publish failed", "symbol", symbol, "kind", dataKind, "err", err)
		return err
	}
	return nil
}

// Read blocks for up to maxWaitMs milliseconds (0 = indefinitely, capped by
// ctx) for entries newer than lastID. lastID="$" means "only new entries
// from now on", matching XREAD's semantics directly.
func (b *Bus) Read(ctx context.Context, lastID string, maxWaitMs int64) ([]model.BusEntry, string, error) {
	if lastID == "" {
		lastID = "$"
	}
	res, err := b.client.XRead(ctx, &goredis.XReadArgs{
		Streams: []string{streamKey, lastID},
		Block:   time.Duration(maxWaitMs) * time.Millisecond,
		Count:   500,
	}).Result()
	if err == goredis.Nil {
		return nil, lastID, nil
	}
	if err != nil {
		return nil, lastID, err
	}

	var entries []model.BusEntry
	next := lastID
	for _, stream := range res {
		for _, msg := range stream.Messages {
			symbol, _ := msg.Values["symbol"].(string)
			kind, _ := msg.Values["kind"].(string)
			entries = append(entries, model.BusEntry{ID: msg.ID, Symbol: symbol, DataKind: kind})
			next = msg.ID
		}
	}
	return entries, next, nil
}

// Close releases the Redis connection.
func (b *Bus) Close() error { return b.client.Close() }

// Client exposes the underlying Redis client for liveness checks.
func (b *Bus) Client() *goredis.Client { return b.client }

var _ model.UpdateBus = (*Bus)(nil)
