package readsync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-notifications-client/internal/api"
	"github.com/goliatone/go-notifications-client/pkg/domain"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/logger"
)

// Acknowledger advances a channel's server-side read cursor.
type Acknowledger interface {
	Acknowledge(ctx context.Context, channelID, upToID string) (api.AckResult, error)
}

// Store is the slice of the local state the synchronizer reconciles.
type Store interface {
	Current() (domain.Identity, uint64)
	DefaultChannel() string
	Find(id string) (domain.Notification, bool)
	UnreadCursors() map[string]string
	ApplyCursor(epoch uint64, channel, upToID string, count *int) bool
	ApplyAllRead(epoch uint64) bool
	MarkReadLocal(id string) bool
	MarkAllReadLocal()
}

// Options configure a Synchronizer.
type Options struct {
	Acknowledger Acknowledger
	Store        Store
	// AckTimeout bounds each acknowledgement request. Zero leaves them
	// bounded only by the HTTP client.
	AckTimeout time.Duration
	Logger     logger.Logger
}

// Synchronizer turns read intents into channel cursor acknowledgements.
// Local state only changes after the server confirmed the cursor.
//
// A notification pushed while an acknowledgement for its channel is in
// flight is marked read too if its id sorts at or below the cursor. This
// window is accepted; the server applies the same cursor.
type Synchronizer struct {
	ack        Acknowledger
	store      Store
	ackTimeout time.Duration
	logger     logger.Logger
}

// New validates opts and returns a Synchronizer.
func New(opts Options) (*Synchronizer, error) {
	if opts.Acknowledger == nil {
		return nil, fmt.Errorf("readsync: acknowledger is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("readsync: store is required")
	}
	return &Synchronizer{
		ack:        opts.Acknowledger,
		store:      opts.Store,
		ackTimeout: opts.AckTimeout,
		logger:     logger.OrNop(opts.Logger).With(logger.F("component", "readsync")),
	}, nil
}

// AckOne acknowledges the channel of id up to and including id. On
// success every buffered entry of that channel with an id <= id is marked
// read. On failure nothing local changes and the error is returned.
//
// An id that is no longer buffered has no known channel and is
// acknowledged on the default channel.
func (s *Synchronizer) AckOne(ctx context.Context, id string) error {
	identity, epoch := s.store.Current()
	if !identity.Valid() {
		return ErrNoIdentity
	}
	if strings.TrimSpace(id) == "" {
		return ErrEmptyID
	}
	channel := s.store.DefaultChannel()
	if n, ok := s.store.Find(id); ok {
		channel = n.Channel(channel)
	} else {
		s.logger.Debug("acknowledging unbuffered notification on default channel",
			logger.F("notification_id", id),
			logger.F("channel", channel),
		)
	}

	res, err := s.acknowledge(ctx, channel, id)
	if err != nil {
		s.logger.Warn("acknowledge failed",
			logger.F("channel", channel),
			logger.F("notification_id", id),
			logger.Err(err),
		)
		return err
	}
	if !s.store.ApplyCursor(epoch, channel, id, res.UnreadCount) {
		s.logger.Debug("acknowledgement result discarded, identity changed", logger.F("channel", channel))
	}
	return nil
}

// AckAll acknowledges, per channel, the greatest unread buffered id. The
// requests run in parallel; local state changes only when all succeed.
// With nothing unread it returns immediately without any request.
func (s *Synchronizer) AckAll(ctx context.Context) error {
	identity, epoch := s.store.Current()
	if !identity.Valid() {
		return ErrNoIdentity
	}
	cursors := s.store.UnreadCursors()
	if len(cursors) == 0 {
		return nil
	}

	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed = &AckAllError{Total: len(cursors), Errs: map[string]error{}}
	)
	for channel, upTo := range cursors {
		g.Go(func() error {
			if _, err := s.acknowledge(ctx, channel, upTo); err != nil {
				mu.Lock()
				failed.Failed++
				failed.Errs[channel] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if failed.Failed > 0 {
		s.logger.Warn("acknowledge all failed",
			logger.F("failed", failed.Failed),
			logger.F("total", failed.Total),
			logger.Err(failed),
		)
		return failed
	}

	if !s.store.ApplyAllRead(epoch) {
		s.logger.Debug("acknowledge all result discarded, identity changed")
	}
	return nil
}

// MarkReadLocal marks one notification read without contacting the server.
// It reports whether anything changed.
func (s *Synchronizer) MarkReadLocal(id string) bool {
	return s.store.MarkReadLocal(id)
}

// MarkAllReadLocal marks everything read without contacting the server.
func (s *Synchronizer) MarkAllReadLocal() {
	s.store.MarkAllReadLocal()
}

func (s *Synchronizer) acknowledge(ctx context.Context, channel, upTo string) (api.AckResult, error) {
	if s.ackTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.ackTimeout)
		defer cancel()
	}
	return s.ack.Acknowledge(ctx, channel, upTo)
}
