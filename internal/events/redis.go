package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultStream    = "leadflow:events"
	defaultStreamLen = 10000
)

// RedisSink appends events to a Redis stream for external dispatchers.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisSink(redisURL, stream string) (*RedisSink, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisSinkWithClient(client, stream), nil
}

func NewRedisSinkWithClient(client *redis.Client, stream string) *RedisSink {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisSink{client: client, stream: stream, maxLen: defaultStreamLen}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Publish(ctx context.Context, event Event) error {
	data := event.Data
	if data == nil {
		data = map[string]any{}
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Values: map[string]any{
			"type":        string(event.Type),
			"entity_id":   event.EntityID,
			"occurred_at": event.OccurredAt.UTC().Format(time.RFC3339Nano),
			"data":        string(encoded),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Recent reads back the newest events, newest first.
func (s *RedisSink) Recent(ctx context.Context, count int64) ([]Event, error) {
	messages, err := s.client.XRevRangeN(ctx, s.stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	items := make([]Event, 0, len(messages))
	for _, message := range messages {
		event := Event{
			Type:     Type(stringValue(message.Values["type"])),
			EntityID: stringValue(message.Values["entity_id"]),
		}
		if occurred, err := time.Parse(time.RFC3339Nano, stringValue(message.Values["occurred_at"])); err == nil {
			event.OccurredAt = occurred
		}
		if raw := stringValue(message.Values["data"]); raw != "" {
			_ = json.Unmarshal([]byte(raw), &event.Data)
		}
		items = append(items, event)
	}
	return items, nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}

func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func stringValue(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}
