package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jaytaylor/html2text"
	"github.com/urfave/cli/v3"

	"github.com/goliatone/go-notifications-client/pkg/domain"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/broadcaster"
	"github.com/goliatone/go-notifications-client/pkg/notifier"
)

// TailCmd groups the subcommands that operate on the client module.
type TailCmd struct {
	flags  *Flags
	module func() *notifier.Module
}

func (cmd *TailCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands,
		&cli.Command{
			Name:   "watch",
			Usage:  "Print notifications as they arrive",
			Action: cmd.runWatch,
		},
		&cli.Command{
			Name:   "list",
			Usage:  "Print the most recent notifications",
			Action: cmd.runList,
		},
		&cli.Command{
			Name:      "ack",
			Usage:     "Mark a notification and everything older in its channel as read",
			ArgsUsage: "<notification-id>",
			Action:    cmd.runAck,
		},
		&cli.Command{
			Name:   "ack-all",
			Usage:  "Mark every channel as read",
			Action: cmd.runAckAll,
		},
	)
	return app
}

func (cmd *TailCmd) activate(ctx context.Context) (*notifier.Module, error) {
	id, err := cmd.flags.identity()
	if err != nil {
		return nil, err
	}
	module := cmd.module()
	if err := module.SetIdentity(ctx, id); err != nil {
		return nil, fmt.Errorf("activate %s: %w", id, err)
	}
	return module, nil
}

func (cmd *TailCmd) runList(ctx context.Context, c *cli.Command) error {
	module, err := cmd.activate(ctx)
	if err != nil {
		return err
	}
	snap := module.Snapshot()
	out := c.Root().Writer
	fmt.Fprintf(out, "%d unread\n", snap.UnreadCount)
	for _, n := range snap.Notifications {
		if err := writeNotification(out, n); err != nil {
			return err
		}
	}
	return nil
}

func (cmd *TailCmd) runWatch(ctx context.Context, c *cli.Command) error {
	out := c.Root().Writer
	printer := newPrinter(out)
	module := cmd.module()
	module.Subscribe(broadcaster.Func(printer.Broadcast))

	if _, err := cmd.activate(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (cmd *TailCmd) runAck(ctx context.Context, c *cli.Command) error {
	id := strings.TrimSpace(c.Args().First())
	if id == "" {
		return errors.New("notification id is required")
	}
	module, err := cmd.activate(ctx)
	if err != nil {
		return err
	}
	if err := module.AckOne(ctx, id); err != nil {
		return fmt.Errorf("acknowledge %s: %w", id, err)
	}
	fmt.Fprintf(c.Root().Writer, "%d unread\n", module.Snapshot().UnreadCount)
	return nil
}

func (cmd *TailCmd) runAckAll(ctx context.Context, c *cli.Command) error {
	module, err := cmd.activate(ctx)
	if err != nil {
		return err
	}
	if err := module.AckAll(ctx); err != nil {
		return fmt.Errorf("acknowledge all: %w", err)
	}
	fmt.Fprintf(c.Root().Writer, "%d unread\n", module.Snapshot().UnreadCount)
	return nil
}

// printer writes notifications it has not seen yet, plus connection
// changes, from snapshot events.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	seen    map[string]struct{}
	version uint64
	state   domain.ConnectionState
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, seen: map[string]struct{}{}}
}

func (p *printer) Broadcast(ctx context.Context, event broadcaster.Event) error {
	snap, ok := event.Payload.(domain.Snapshot)
	if !ok {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if snap.Version <= p.version {
		return nil
	}
	p.version = snap.Version

	if snap.Connection != p.state && snap.Connection != "" {
		p.state = snap.Connection
		fmt.Fprintf(p.out, "-- %s\n", snap.Connection)
	}
	// Oldest first so the terminal reads top to bottom.
	for i := len(snap.Notifications) - 1; i >= 0; i-- {
		n := snap.Notifications[i]
		if _, ok := p.seen[n.ID]; ok {
			continue
		}
		p.seen[n.ID] = struct{}{}
		if err := writeNotification(p.out, n); err != nil {
			return err
		}
	}
	return nil
}

func writeNotification(out io.Writer, n domain.Notification) error {
	marker := "*"
	if n.Read {
		marker = " "
	}
	stamp := "-"
	if !n.CreatedAt.IsZero() {
		stamp = n.CreatedAt.Local().Format(time.DateTime)
	}
	channel := n.ChannelID
	if channel == "" {
		channel = domain.DefaultChannel
	}
	if _, err := fmt.Fprintf(out, "%s %s [%s] %s %s: %s\n", marker, stamp, n.Severity, channel, n.ID, n.Title); err != nil {
		return err
	}
	body := renderBody(n.Body)
	if body == "" {
		return nil
	}
	for _, line := range strings.Split(body, "\n") {
		if _, err := fmt.Fprintf(out, "    %s\n", line); err != nil {
			return err
		}
	}
	return nil
}

// renderBody converts HTML bodies to plain text. Plain text passes through.
func renderBody(body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	text, err := html2text.FromString(body, html2text.Options{PrettyTables: true})
	if err != nil {
		return body
	}
	return strings.TrimSpace(text)
}
