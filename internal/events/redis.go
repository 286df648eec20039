package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis Streams-backed broadcaster used when
// running more than one ingestion process against the same catalogue.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	Stream       string
	Group        string
	Logger       *slog.Logger
	BlockTimeout time.Duration
	Buffer       int
}

// NewRedisBroadcaster connects to Redis and ensures the consumer group
// exists before returning.
func NewRedisBroadcaster(ctx context.Context, cfg RedisConfig) (Broadcaster, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = "printarr:events"
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "dashboard"
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 128
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password, DB: cfg.DB})
	broadcaster := &redisBroadcaster{
		client:       client,
		stream:       stream,
		group:        group,
		blockTimeout: cfg.BlockTimeout,
		buffer:       cfg.Buffer,
		logger:       logger,
	}
	if err := broadcaster.ensureGroup(ctx); err != nil {
		return nil, err
	}
	return broadcaster, nil
}

type redisBroadcaster struct {
	client       *redis.Client
	stream       string
	group        string
	blockTimeout time.Duration
	buffer       int
	logger       *slog.Logger

	groupOnce sync.Once
	groupErr  error
}

func (b *redisBroadcaster) ensureGroup(ctx context.Context) error {
	b.groupOnce.Do(func() {
		err := b.client.XGroupCreateMkStream(ctx, b.stream, b.group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			b.groupErr = fmt.Errorf("create redis consumer group: %w", err)
		}
	})
	return b.groupErr
}

func (b *redisBroadcaster) Publish(ctx context.Context, event Event) error {
	if event.Type == "" {
		return errors.New("event type is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		Values: map[string]any{"payload": payload},
	}).Err()
}

func (b *redisBroadcaster) Subscribe() Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &redisSubscription{
		broadcaster: b,
		consumer:    uuid.New().String(),
		ch:          make(chan Event, b.buffer),
		cancel:      cancel,
	}
	go sub.run(ctx)
	return sub
}

type redisSubscription struct {
	broadcaster *redisBroadcaster
	consumer    string
	ch          chan Event
	cancel      context.CancelFunc
	closeOnce   sync.Once
}

func (s *redisSubscription) Events() <-chan Event { return s.ch }

func (s *redisSubscription) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
	})
}

func (s *redisSubscription) run(ctx context.Context) {
	defer close(s.ch)
	b := s.broadcaster
	for {
		if ctx.Err() != nil {
			return
		}
		result, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.group,
			Consumer: s.consumer,
			Streams:  []string{b.stream, ">"},
			Count:    int64(b.buffer),
			Block:    b.blockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			b.logger.Error("redis stream read failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		for _, stream := range result {
			for _, msg := range stream.Messages {
				s.deliver(ctx, msg)
			}
		}
	}
}

func (s *redisSubscription) deliver(ctx context.Context, msg redis.XMessage) {
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return
	}
	var event Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		s.broadcaster.logger.Error("decode event payload failed", "error", err)
		return
	}
	select {
	case s.ch <- event:
		s.broadcaster.client.XAck(ctx, s.broadcaster.stream, s.broadcaster.group, msg.ID)
	case <-ctx.Done():
	}
}
