package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-notifications-client/pkg/domain"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/logger"
)

// DefaultLimit is the history page requested on activation.
const DefaultLimit = 20

// ErrStale reports that the identity changed while the fetch was in flight.
var ErrStale = errors.New("bootstrap: identity changed during fetch")

// Source provides the REST calls used on activation.
type Source interface {
	UnreadCount(ctx context.Context) (int, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Notification, error)
}

// Target receives fetched state; both methods refuse stale epochs.
type Target interface {
	Replace(epoch uint64, items []domain.Notification) bool
	SetUnread(epoch uint64, count int) bool
}

// Options configure a Fetcher.
type Options struct {
	Source Source
	Target Target
	Limit  int
	Logger logger.Logger
}

// Fetcher pulls the unread total and recent history when an identity is
// activated or the consumer asks for a reload.
type Fetcher struct {
	source Source
	target Target
	limit  int
	logger logger.Logger
}

// New validates opts and returns a Fetcher.
func New(opts Options) (*Fetcher, error) {
	if opts.Source == nil {
		return nil, errors.New("bootstrap: source is required")
	}
	if opts.Target == nil {
		return nil, errors.New("bootstrap: target is required")
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	return &Fetcher{
		source: opts.Source,
		target: opts.Target,
		limit:  opts.Limit,
		logger: logger.OrNop(opts.Logger).With(logger.F("component", "bootstrap")),
	}, nil
}

// Fetch issues both calls in parallel. Each result is applied on its own:
// a failed count does not prevent the history from being installed and
// vice versa. Failures leave the corresponding state untouched and are
// returned joined.
func (f *Fetcher) Fetch(ctx context.Context, epoch uint64) error {
	var (
		g          errgroup.Group
		countErr   error
		historyErr error
	)

	g.Go(func() error {
		total, err := f.source.UnreadCount(ctx)
		if err != nil {
			countErr = fmt.Errorf("unread count: %w", err)
			f.logger.Error("bootstrap unread count failed", logger.Err(err))
			return nil
		}
		if !f.target.SetUnread(epoch, total) {
			countErr = ErrStale
		}
		return nil
	})
	g.Go(func() error {
		items, err := f.source.ListRecent(ctx, f.limit)
		if err != nil {
			historyErr = fmt.Errorf("recent notifications: %w", err)
			f.logger.Error("bootstrap history failed", logger.Err(err))
			return nil
		}
		if !f.target.Replace(epoch, items) {
			historyErr = ErrStale
		}
		return nil
	})
	_ = g.Wait()

	if errors.Is(countErr, ErrStale) || errors.Is(historyErr, ErrStale) {
		f.logger.Debug("bootstrap result discarded, identity changed", logger.F("epoch", epoch))
	}
	return errors.Join(countErr, historyErr)
}
