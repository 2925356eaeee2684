// Package memory provides an in-process implementation of broker.Broker
// using channels. Suitable for single-node deployments and tests; state is
// local, so cross-instance fan-out does not happen.
package memory

import (
	"codecollab/internal/broker"
	"context"
	"sync"
)

type subscriber struct {
	ch   chan broker.ChangeEvent
	done <-chan struct{}
}

// Broker implements broker.Broker over in-process channels
type Broker struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// New creates an in-memory broker
func New() *Broker {
	return &Broker{subs: make(map[*subscriber]struct{})}
}

func (b *Broker) PublishCodeChange(ctx context.Context, ev broker.ChangeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		case <-sub.done:
			delete(b.subs, sub)
		default:
			// Subscriber buffer full; drop, matching at-most-once publish
		}
	}
	return nil
}

func (b *Broker) ConsumeCodeChanges(ctx context.Context, handler broker.ChangeHandler) error {
	sub := &subscriber{
		ch:   make(chan broker.ChangeEvent, 64),
		done: ctx.Done(),
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-sub.ch:
			handler(ctx, ev)
		}
	}
}

func (b *Broker) PublishConflictResolution(ctx context.Context, res broker.Resolution) error {
	// No in-process consumer exists for resolutions; accept and discard
	return nil
}

func (b *Broker) Close() error {
	return nil
}

// Interface compliance
var _ broker.Broker = (*Broker)(nil)
