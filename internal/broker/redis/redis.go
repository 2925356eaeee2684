// Package redis implements broker.Broker on Redis pub/sub. Pub/sub gives
// exactly the delivery contract the broker asks for: fire-and-forget fan-out
// to currently-subscribed instances, no replay, no ordering across
// publishers.
package redis

import (
	"codecollab/internal/broker"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

const (
	changesChannel  = "collab:code-changes"
	resolvedChannel = "collab:conflict-resolved"
)

// Broker is a Redis pub/sub implementation of broker.Broker
type Broker struct {
	client *redis.Client
}

// New creates a Redis-backed broker on an existing client
func New(client *redis.Client) *Broker {
	return &Broker{client: client}
}

func (b *Broker) PublishCodeChange(ctx context.Context, ev broker.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, changesChannel, data).Err(); err != nil {
		return fmt.Errorf("publish code change: %w", err)
	}
	return nil
}

func (b *Broker) ConsumeCodeChanges(ctx context.Context, handler broker.ChangeHandler) error {
	sub := b.client.Subscribe(ctx, changesChannel)
	defer sub.Close()

	// Wait for the subscription to be confirmed before reporting success
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", changesChannel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev broker.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("broker: dropping malformed change event: %v", err)
				continue
			}
			handler(ctx, ev)
		}
	}
}

func (b *Broker) PublishConflictResolution(ctx context.Context, res broker.Resolution) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, resolvedChannel, data).Err(); err != nil {
		return fmt.Errorf("publish conflict resolution: %w", err)
	}
	return nil
}

// Close is a no-op; the underlying client is owned by the caller
func (b *Broker) Close() error {
	return nil
}

// Interface compliance
var _ broker.Broker = (*Broker)(nil)
