package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const eventsChannel = "taverna:events"

// redisBroker shares events between server instances. Every instance
// publishes to one channel and relays what it receives to its local hub.
type redisBroker struct {
	client *redis.Client
	sub    *redis.PubSub
	hub    *wsHub
	done   chan struct{}
}

func newRedisBroker(ctx context.Context, client *redis.Client, h *wsHub) (*redisBroker, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	sub := client.Subscribe(ctx, eventsChannel)
	// wait for the subscription to be confirmed so no publish is missed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", eventsChannel, err)
	}

	b := &redisBroker{client: client, sub: sub, hub: h, done: make(chan struct{})}
	go b.relay()
	return b, nil
}

func (b *redisBroker) relay() {
	defer close(b.done)
	for msg := range b.sub.Channel() {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			log.Warnw("dropping malformed event", zap.Error(err))
			continue
		}
		b.hub.Deliver(ev)
	}
}

func (b *redisBroker) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return b.client.Publish(ctx, eventsChannel, data).Err()
}

func (b *redisBroker) Close() error {
	err := b.sub.Close()
	<-b.done
	return err
}
