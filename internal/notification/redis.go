package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	goredis "github.com/go-redis/redis/v8"
)

const signalChannel = "channel:armed_signals"

// RedisNotifier publishes armed-signal alerts to a Redis Pub/Sub channel,
// grounded on the teacher's internal/store/redis Publish method, for any
// downstream subscriber (dashboard, another service) that wants them live
// instead of polling the Persistence Sink.
type RedisNotifier struct {
	client *goredis.Client
}

// NewRedisNotifier builds a notifier over an existing Redis client (shared
// with the Update Bus connection; Pub/Sub and Streams coexist on one
// client).
func NewRedisNotifier(client *goredis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (r *RedisNotifier) Send(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(map[string]any{
		"level":   string(alert.Level),
		"title":   alert.Title,
		"message": alert.Message,
	})
	if err != nil {
		return fmt.Errorf("redis notifier: marshal: %w", err)
	}
	if err := r.client.Publish(ctx, signalChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis notifier: publish: %w", err)
	}
	slog.Info("redis notifier: published alert", "channel", signalChannel, "title", alert.Title)
	return nil
}

var _ Notifier = (*RedisNotifier)(nil)
