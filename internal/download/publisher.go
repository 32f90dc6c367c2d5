package download

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/openmusicplayer/mediagrab/internal/errors"
	"github.com/openmusicplayer/mediagrab/internal/logger"
)

// DefaultEventsChannel is the Redis channel all task events are mirrored to.
// Per-task events also go to "<channel>:<task id>".
const DefaultEventsChannel = "mediagrab:events"

// RedisPublisher mirrors task events onto Redis pub/sub so other processes
// can follow progress.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	log     *logger.Logger
}

// NewRedisPublisher connects to redisURL and verifies the connection.
func NewRedisPublisher(redisURL, channel string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if channel == "" {
		channel = DefaultEventsChannel
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisPublisher{
		client:  client,
		channel: channel,
		log:     logger.Default().WithComponent("events"),
	}, nil
}

// Ping checks the Redis connection.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Publish sends one event to the shared and the per-task channel.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal task event: %w", err)
	}

	return apperrors.Retry(ctx, apperrors.PublishBackoff(), func(ctx context.Context) error {
		pipe := p.client.Pipeline()
		pipe.Publish(ctx, p.channel, data)
		pipe.Publish(ctx, p.taskChannel(ev.Task.ID), data)
		_, err := pipe.Exec(ctx)
		return err
	})
}

// Run forwards every event of svc until ctx is done. Publishing happens on
// this goroutine, never on the dispatch goroutine.
func (p *RedisPublisher) Run(ctx context.Context, svc *Service) {
	sub := svc.Subscribe("")
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Channel():
			if !ok {
				return
			}
			if err := p.Publish(ctx, ev); err != nil && ctx.Err() == nil {
				p.log.Error(apperrors.WithTaskID(ctx, ev.Task.ID), "failed to publish task event", err, map[string]interface{}{
					"seq": ev.Seq,
				})
			}
		}
	}
}

// Subscribe follows events for taskID, or all tasks when taskID is empty.
func (p *RedisPublisher) Subscribe(ctx context.Context, taskID string) *RemoteSubscription {
	channel := p.channel
	if taskID != "" {
		channel = p.taskChannel(taskID)
	}
	pubsub := p.client.Subscribe(ctx, channel)
	return &RemoteSubscription{
		pubsub: pubsub,
		ch:     pubsub.Channel(),
	}
}

func (p *RedisPublisher) taskChannel(taskID string) string {
	return fmt.Sprintf("%s:%s", p.channel, taskID)
}

// RemoteSubscription wraps a Redis pub/sub subscription for task events
type RemoteSubscription struct {
	pubsub *redis.PubSub
	ch     <-chan *redis.Message
}

// Channel returns a channel that receives task events
func (s *RemoteSubscription) Channel() <-chan Event {
	out := make(chan Event)

	go func() {
		defer close(out)
		for msg := range s.ch {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			out <- ev
		}
	}()

	return out
}

// Close closes the subscription
func (s *RemoteSubscription) Close() error {
	return s.pubsub.Close()
}
