package broadcaster

import (
	"context"
	"errors"
	"sync"
)

// Func adapts a function to the Broadcaster interface.
type Func func(ctx context.Context, event Event) error

// Broadcast satisfies the Broadcaster interface.
func (f Func) Broadcast(ctx context.Context, event Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// Fanout forwards events to multiple downstream broadcasters. Targets may be
// added after construction.
type Fanout struct {
	mu      sync.RWMutex
	targets []Broadcaster
}

// NewFanout assembles a broadcaster that multicasts to the provided targets.
func NewFanout(targets ...Broadcaster) *Fanout {
	f := &Fanout{}
	for _, target := range targets {
		f.Add(target)
	}
	return f
}

var _ Broadcaster = (*Fanout)(nil)

// Add registers another target. Nil targets are ignored.
func (f *Fanout) Add(target Broadcaster) {
	if target == nil {
		return
	}
	f.mu.Lock()
	f.targets = append(f.targets, target)
	f.mu.Unlock()
}

// Broadcast delivers the event to every target and joins their errors.
func (f *Fanout) Broadcast(ctx context.Context, event Event) error {
	f.mu.RLock()
	targets := make([]Broadcaster, len(f.targets))
	copy(targets, f.targets)
	f.mu.RUnlock()

	var errs []error
	for _, target := range targets {
		if err := target.Broadcast(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
