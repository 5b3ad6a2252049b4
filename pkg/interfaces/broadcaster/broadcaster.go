package broadcaster

import "context"

// Topics published by the client.
const (
	TopicSnapshot   = "notifications.snapshot"
	TopicConnection = "notifications.connection"
)

// Event carries a state change destined for consumers (UI bindings, caches).
type Event struct {
	Topic   string
	Payload any
}

// Broadcaster pushes events to whoever renders or persists client state.
type Broadcaster interface {
	Broadcast(ctx context.Context, event Event) error
}

// Nop broadcaster discards events.
type Nop struct{}

var _ Broadcaster = (*Nop)(nil)

func (n *Nop) Broadcast(ctx context.Context, event Event) error { return nil }
