// Package broker defines the cross-instance fan-out channel for code
// changes. The transport layer only reaches locally-connected sockets, so
// every instance publishes the changes it accepts and re-broadcasts the
// changes other instances publish.
//
// Delivery is best-effort: at-most-once on publish (nothing is awaited
// beyond channel submission) and at-least-once on consume, so handlers must
// tolerate duplicates. Applying the same whole-buffer change twice is a
// no-op overwrite, which satisfies that.
package broker

import (
	"codecollab/internal/model"
	"context"
)

// ChangeEvent is the envelope published for every accepted code change.
// InstanceID identifies the originating server process so consumers can
// skip events they produced themselves.
type ChangeEvent struct {
	InstanceID string           `json:"instanceId"`
	SessionID  string           `json:"sessionId"`
	Change     model.CodeChange `json:"change"`
}

// Resolution is a broker-resolved canonical buffer. Published for future
// conflict-resolution consumers; nothing in the core consumes it yet.
type Resolution struct {
	SessionID    string `json:"sessionId"`
	ResolvedCode string `json:"resolvedCode"`
	Timestamp    int64  `json:"timestamp"`
}

// ChangeHandler is invoked once per delivered change event
type ChangeHandler func(ctx context.Context, ev ChangeEvent)

// Broker fans code-change events out to every subscribed server instance
type Broker interface {
	PublishCodeChange(ctx context.Context, ev ChangeEvent) error

	// ConsumeCodeChanges blocks, invoking handler for each delivered event,
	// until ctx is cancelled.
	ConsumeCodeChanges(ctx context.Context, handler ChangeHandler) error

	PublishConflictResolution(ctx context.Context, res Resolution) error

	Close() error
}
