package state

import (
	"context"
	"sync"

	"github.com/goliatone/go-notifications-client/pkg/domain"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/broadcaster"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/logger"
)

// Options configure the Store.
type Options struct {
	Capacity       int
	DefaultChannel string
	Broadcaster    broadcaster.Broadcaster
	Logger         logger.Logger
}

// Store owns the notification buffer, the unread counter and the observed
// connection state for one client. Consumers read snapshots; all mutation
// goes through the methods below.
//
// Each identity activation starts a new epoch. Asynchronous results
// (bootstrap responses, acknowledgement responses) carry the epoch they were
// started in and are dropped if the identity changed meanwhile.
type Store struct {
	mu             sync.RWMutex
	buffer         *Buffer
	unread         Counter
	connection     domain.ConnectionState
	identity       domain.Identity
	epoch          uint64
	version        uint64
	defaultChannel string
	broadcaster    broadcaster.Broadcaster
	logger         logger.Logger
}

// New constructs an empty store.
func New(opts Options) *Store {
	if opts.Broadcaster == nil {
		opts.Broadcaster = &broadcaster.Nop{}
	}
	return &Store{
		buffer:         NewBuffer(opts.Capacity),
		connection:     domain.ConnectionDisconnected,
		defaultChannel: domain.ResolveChannel("", opts.DefaultChannel),
		broadcaster:    opts.Broadcaster,
		logger:         logger.OrNop(opts.Logger),
	}
}

// DefaultChannel returns the channel used for notifications without one.
func (s *Store) DefaultChannel() string { return s.defaultChannel }

// Reset wipes local state and starts a new epoch for id.
func (s *Store) Reset(id domain.Identity) uint64 {
	s.mu.Lock()
	s.identity = id
	s.epoch++
	epoch := s.epoch
	s.buffer.Clear()
	s.unread.Set(0)
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(broadcaster.TopicSnapshot, snap)
	return epoch
}

// Current returns the active identity and epoch.
func (s *Store) Current() (domain.Identity, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, s.epoch
}

// IsCurrent reports whether epoch is still the active one.
func (s *Store) IsCurrent(epoch uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch == epoch
}

// ApplyPush records a notification received from the socket: it is
// prepended unread and the counter grows by one.
func (s *Store) ApplyPush(n domain.Notification) {
	n.Read = false
	s.mu.Lock()
	if s.buffer.Insert(n) {
		s.unread.Increment()
	}
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(broadcaster.TopicSnapshot, snap)
}

// ApplyReadAck replaces the counter with the server's value.
func (s *Store) ApplyReadAck(count int) {
	s.mu.Lock()
	s.unread.Set(count)
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(broadcaster.TopicSnapshot, snap)
}

// SetConnection records the transport state.
func (s *Store) SetConnection(state domain.ConnectionState) {
	s.mu.Lock()
	if s.connection == state {
		s.mu.Unlock()
		return
	}
	s.connection = state
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(broadcaster.TopicConnection, snap)
}

// Replace installs bootstrap history. It reports false when epoch is stale.
func (s *Store) Replace(epoch uint64, items []domain.Notification) bool {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	s.buffer.ReplaceAll(items)
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(broadcaster.TopicSnapshot, snap)
	return true
}

// SetUnread installs a fetched unread total. It reports false when epoch is
// stale.
func (s *Store) SetUnread(epoch uint64, count int) bool {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	s.unread.Set(count)
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(broadcaster.TopicSnapshot, snap)
	return true
}

// Seed installs a cached snapshot when the buffer is still empty.
func (s *Store) Seed(epoch uint64, items []domain.Notification, unread int) bool {
	s.mu.Lock()
	if s.epoch != epoch || s.buffer.Len() > 0 {
		s.mu.Unlock()
		return false
	}
	s.buffer.ReplaceAll(items)
	s.unread.Set(unread)
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(broadcaster.TopicSnapshot, snap)
	return true
}

// Find looks up a buffered notification.
func (s *Store) Find(id string) (domain.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buffer.Find(id)
}

// UnreadCursors returns the acknowledgement cursor per channel for every
// unread buffered notification.
func (s *Store) UnreadCursors() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buffer.Cursors(s.defaultChannel)
}

// ApplyCursor applies a confirmed acknowledgement: every buffered entry of
// channel with id <= upToID becomes read. The counter takes count when the
// server supplied one, otherwise it is recomputed from the buffer.
func (s *Store) ApplyCursor(epoch uint64, channel, upToID string, count *int) bool {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	s.buffer.MarkRead(UpTo(channel, upToID, s.defaultChannel))
	if count != nil {
		s.unread.Set(*count)
	} else {
		s.unread.Set(s.buffer.UnreadCount())
	}
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(broadcaster.TopicSnapshot, snap)
	return true
}

// ApplyAllRead marks everything read and zeroes the counter.
func (s *Store) ApplyAllRead(epoch uint64) bool {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	s.buffer.MarkRead(All())
	s.unread.Set(0)
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(broadcaster.TopicSnapshot, snap)
	return true
}

// MarkReadLocal flips one notification without any server round-trip and
// decrements the counter if it was unread.
func (s *Store) MarkReadLocal(id string) bool {
	s.mu.Lock()
	changed := s.buffer.MarkRead(ByID(id))
	if changed == 0 {
		s.mu.Unlock()
		return false
	}
	s.unread.Sub(changed)
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(broadcaster.TopicSnapshot, snap)
	return true
}

// MarkAllReadLocal marks everything read and zeroes the counter without any
// server round-trip.
func (s *Store) MarkAllReadLocal() {
	s.mu.Lock()
	s.buffer.MarkRead(All())
	s.unread.Set(0)
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(broadcaster.TopicSnapshot, snap)
}

// Clear wipes the buffer and counter. Nothing is sent to the server.
func (s *Store) Clear() {
	s.mu.Lock()
	s.buffer.Clear()
	s.unread.Set(0)
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(broadcaster.TopicSnapshot, snap)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) commitLocked() domain.Snapshot {
	s.version++
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() domain.Snapshot {
	return domain.Snapshot{
		Identity:      s.identity,
		Notifications: s.buffer.Items(),
		UnreadCount:   s.unread.Value(),
		IsConnected:   s.connection == domain.ConnectionConnected,
		Connection:    s.connection,
		Version:       s.version,
	}
}

// publish runs outside the lock; subscribers may observe snapshots out of
// order and should compare Version.
func (s *Store) publish(topic string, snap domain.Snapshot) {
	err := s.broadcaster.Broadcast(context.Background(), broadcaster.Event{Topic: topic, Payload: snap})
	if err != nil {
		s.logger.Warn("broadcast snapshot failed", logger.F("topic", topic), logger.Err(err))
	}
}
