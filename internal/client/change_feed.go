package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-compliance-tasks/internal/service"
)

// DefaultChangeChannel is the Redis channel task events are published on.
const DefaultChangeChannel = "compliance.tasks"

// ChangeFeed publishes task events on a Redis channel so dashboards and the
// CLI watcher can follow the workflow live. Delivery is best effort.
type ChangeFeed struct {
	rdb     *redis.Client
	channel string
	log     zerolog.Logger
}

var _ service.EventPublisher = (*ChangeFeed)(nil)

// NewChangeFeed creates a change feed on channel.
func NewChangeFeed(rdb *redis.Client, channel string, log zerolog.Logger) *ChangeFeed {
	if channel == "" {
		channel = DefaultChangeChannel
	}
	return &ChangeFeed{rdb: rdb, channel: channel, log: log}
}

// PublishTaskEvent publishes one event. Failures are logged only.
func (f *ChangeFeed) PublishTaskEvent(ctx context.Context, ev service.TaskEvent) {
	if f.rdb == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		f.log.Warn().Err(err).Str("task_id", ev.TaskID).Msg("change feed: failed to marshal event")
		return
	}
	if err := f.rdb.Publish(ctx, f.channel, data).Err(); err != nil {
		f.log.Warn().Err(err).
			Str("channel", f.channel).
			Str("task_id", ev.TaskID).
			Msg("change feed: failed to publish (non-fatal)")
	}
}

// Subscribe streams events until ctx is done or the returned stop function
// is called. The channel is closed when the subscription ends.
func (f *ChangeFeed) Subscribe(ctx context.Context) (<-chan service.TaskEvent, func() error, error) {
	sub := f.rdb.Subscribe(ctx, f.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", f.channel, err)
	}

	out := make(chan service.TaskEvent)
	msgs := sub.Channel()
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev service.TaskEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					f.log.Warn().Err(err).Msg("change feed: dropping malformed event")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, sub.Close, nil
}

// NewRedisClient creates a client and checks connectivity.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return rdb, nil
}
