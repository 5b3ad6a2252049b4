package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/goliatone/go-notifications-client/pkg/domain"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/broadcaster"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/logger"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/store"
)

// SnapshotSink is a broadcaster that persists published snapshots. Writes
// happen on a background goroutine. Snapshots older than one already
// accepted for the same identity are ignored, so the cache never regresses.
type SnapshotSink struct {
	repo   store.SnapshotRepository
	logger logger.Logger

	mu      sync.Mutex
	pending map[string]domain.Snapshot
	latest  map[string]uint64

	flushMu sync.Mutex
	wake    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

var _ broadcaster.Broadcaster = (*SnapshotSink)(nil)

// NewSnapshotSink starts the background writer.
func NewSnapshotSink(repo store.SnapshotRepository, lgr logger.Logger) *SnapshotSink {
	s := &SnapshotSink{
		repo:    repo,
		logger:  logger.OrNop(lgr).With(logger.F("component", "snapshot_cache")),
		pending: make(map[string]domain.Snapshot),
		latest:  make(map[string]uint64),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Broadcast queues snapshot events for persistence. Other topics and
// snapshots without an identity are ignored.
func (s *SnapshotSink) Broadcast(ctx context.Context, event broadcaster.Event) error {
	if event.Topic != broadcaster.TopicSnapshot {
		return nil
	}
	snap, ok := event.Payload.(domain.Snapshot)
	if !ok || !snap.Identity.Valid() {
		return nil
	}
	key := snap.Identity.Key()

	s.mu.Lock()
	if s.latest[key] >= snap.Version {
		s.mu.Unlock()
		return nil
	}
	s.latest[key] = snap.Version
	s.pending[key] = snap
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Flush writes every pending snapshot now.
func (s *SnapshotSink) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	batch := s.pending
	s.pending = make(map[string]domain.Snapshot)
	s.mu.Unlock()

	var errs []error
	for key, snap := range batch {
		if err := s.repo.Save(ctx, snap); err != nil {
			s.logger.Warn("snapshot cache write failed", logger.F("identity", key), logger.Err(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops the writer after flushing what is pending.
func (s *SnapshotSink) Close() error {
	s.once.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
	return s.Flush(context.Background())
}

func (s *SnapshotSink) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
			_ = s.Flush(context.Background())
		}
	}
}
