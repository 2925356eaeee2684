// Package brokertest provides a conformance suite run against every
// broker.Broker implementation.
package brokertest

import (
	"codecollab/internal/broker"
	"codecollab/internal/model"
	"context"
	"testing"
	"time"
)

// Factory builds a fresh broker for each subtest
type Factory func(t *testing.T) broker.Broker

// Run exercises the broker contract against the given factory
func Run(t *testing.T, factory Factory) {
	t.Run("DeliversPublishedChange", func(t *testing.T) {
		b := factory(t)
		defer b.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		got := make(chan broker.ChangeEvent, 1)
		ready := make(chan struct{})
		go func() {
			close(ready)
			_ = b.ConsumeCodeChanges(ctx, func(ctx context.Context, ev broker.ChangeEvent) {
				select {
				case got <- ev:
				default:
				}
			})
		}()
		<-ready
		// Give the consumer a beat to finish subscribing
		time.Sleep(100 * time.Millisecond)

		want := broker.ChangeEvent{
			InstanceID: "instance-a",
			SessionID:  "s1",
			Change: model.CodeChange{
				ID:        "c1",
				UserID:    "u1",
				Operation: model.OpReplace,
				Text:      "x = 1",
			},
		}
		if err := b.PublishCodeChange(ctx, want); err != nil {
			t.Fatalf("PublishCodeChange: %v", err)
		}

		select {
		case ev := <-got:
			if ev.SessionID != want.SessionID || ev.InstanceID != want.InstanceID {
				t.Fatalf("got envelope %+v, want %+v", ev, want)
			}
			if ev.Change.Text != want.Change.Text || ev.Change.ID != want.Change.ID {
				t.Fatalf("got change %+v, want %+v", ev.Change, want.Change)
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for change event")
		}
	})

	t.Run("ConsumeStopsOnCancel", func(t *testing.T) {
		b := factory(t)
		defer b.Close()

		ctx, cancel := context.WithCancel(context.Background())
		errc := make(chan error, 1)
		go func() {
			errc <- b.ConsumeCodeChanges(ctx, func(context.Context, broker.ChangeEvent) {})
		}()
		time.Sleep(100 * time.Millisecond)
		cancel()

		select {
		case err := <-errc:
			if err != context.Canceled {
				t.Fatalf("ConsumeCodeChanges returned %v, want context.Canceled", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("consumer did not stop after cancel")
		}
	})

	t.Run("PublishConflictResolution", func(t *testing.T) {
		b := factory(t)
		defer b.Close()

		// Publish-only contract; no consumer exists in the core
		err := b.PublishConflictResolution(context.Background(), broker.Resolution{
			SessionID:    "s1",
			ResolvedCode: "resolved",
			Timestamp:    time.Now().UnixMilli(),
		})
		if err != nil {
			t.Fatalf("PublishConflictResolution: %v", err)
		}
	})
}
