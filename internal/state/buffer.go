package state

import "github.com/goliatone/go-notifications-client/pkg/domain"

// DefaultCapacity bounds the buffer when no capacity is configured.
const DefaultCapacity = 50

// Predicate selects buffered notifications.
type Predicate func(domain.Notification) bool

// ByID matches a single notification.
func ByID(id string) Predicate {
	return func(n domain.Notification) bool { return n.ID == id }
}

// UpTo matches every notification in channel whose id sorts at or before
// cursor. Channels are resolved with fallback on the buffered side so a
// notification without a channel matches the default channel name.
func UpTo(channel, cursor, fallback string) Predicate {
	return func(n domain.Notification) bool {
		return n.Channel(fallback) == channel && n.ID <= cursor
	}
}

// All matches everything.
func All() Predicate {
	return func(domain.Notification) bool { return true }
}

// Buffer keeps the most recent notifications, newest first. It is not safe
// for concurrent use; Store guards it.
type Buffer struct {
	capacity int
	items    []domain.Notification
}

// NewBuffer returns an empty buffer bounded by capacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{capacity: capacity}
}

// Capacity returns the configured bound.
func (b *Buffer) Capacity() int { return b.capacity }

// Len returns the number of buffered entries.
func (b *Buffer) Len() int { return len(b.items) }

// Insert prepends n, evicting the oldest entries past capacity. A duplicate
// id replaces the existing entry and keeps read=true if it was already read.
// It reports whether n was new to the buffer.
func (b *Buffer) Insert(n domain.Notification) bool {
	added := true
	if idx := b.indexOf(n.ID); idx >= 0 {
		if b.items[idx].Read {
			n.Read = true
		}
		b.items = append(b.items[:idx], b.items[idx+1:]...)
		added = false
	}
	next := make([]domain.Notification, 0, min(len(b.items)+1, b.capacity))
	next = append(next, n.Clone())
	for _, item := range b.items {
		if len(next) == b.capacity {
			break
		}
		next = append(next, item)
	}
	b.items = next
	return added
}

// ReplaceAll sets the full contents. No merge happens: the caller's read
// flags are taken as authoritative.
func (b *Buffer) ReplaceAll(items []domain.Notification) {
	if len(items) > b.capacity {
		items = items[:b.capacity]
	}
	b.items = domain.CloneNotifications(items)
	if b.items == nil {
		b.items = []domain.Notification{}
	}
}

// MarkRead flips read=true on every matching entry and returns how many
// entries changed.
func (b *Buffer) MarkRead(match Predicate) int {
	changed := 0
	for i := range b.items {
		if b.items[i].Read || !match(b.items[i]) {
			continue
		}
		b.items[i].Read = true
		changed++
	}
	return changed
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.items = nil
}

// Find returns the buffered notification with id.
func (b *Buffer) Find(id string) (domain.Notification, bool) {
	if idx := b.indexOf(id); idx >= 0 {
		return b.items[idx].Clone(), true
	}
	return domain.Notification{}, false
}

// Items returns a copy of the buffered notifications, newest first.
func (b *Buffer) Items() []domain.Notification {
	out := domain.CloneNotifications(b.items)
	if out == nil {
		out = []domain.Notification{}
	}
	return out
}

// UnreadCount counts entries with read=false.
func (b *Buffer) UnreadCount() int {
	count := 0
	for _, item := range b.items {
		if !item.Read {
			count++
		}
	}
	return count
}

// Cursors groups unread entries by resolved channel and returns, per
// channel, the greatest id among them.
func (b *Buffer) Cursors(fallback string) map[string]string {
	cursors := make(map[string]string)
	for _, item := range b.items {
		if item.Read {
			continue
		}
		channel := item.Channel(fallback)
		if current, ok := cursors[channel]; !ok || item.ID > current {
			cursors[channel] = item.ID
		}
	}
	return cursors
}

func (b *Buffer) indexOf(id string) int {
	for i := range b.items {
		if b.items[i].ID == id {
			return i
		}
	}
	return -1
}
