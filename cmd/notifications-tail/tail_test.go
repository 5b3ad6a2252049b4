package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/goliatone/go-notifications-client/pkg/domain"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/broadcaster"
)

func TestRenderBodyStripsMarkup(t *testing.T) {
	got := renderBody("<p>Build finished</p>")
	if got != "Build finished" {
		t.Fatalf("unexpected render %q", got)
	}
	if renderBody("   ") != "" {
		t.Fatalf("expected blank body to render empty")
	}
}

func TestWriteNotification(t *testing.T) {
	var buf bytes.Buffer
	err := writeNotification(&buf, domain.Notification{
		ID:       "n1",
		Title:    "Deploy",
		Body:     "<p>Done</p>",
		Severity: domain.SeverityInfo,
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "* - [info] default n1: Deploy\n") {
		t.Fatalf("unexpected header %q", out)
	}
	if !strings.Contains(out, "    Done\n") {
		t.Fatalf("expected indented body, got %q", out)
	}
}

func TestPrinterPrintsEachNotificationOnce(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)
	snap := func(version uint64, ids ...string) broadcaster.Event {
		items := make([]domain.Notification, 0, len(ids))
		for _, id := range ids {
			items = append(items, domain.Notification{ID: id, Title: id, Severity: domain.SeverityInfo})
		}
		return broadcaster.Event{Topic: broadcaster.TopicSnapshot, Payload: domain.Snapshot{Notifications: items, Version: version}}
	}

	_ = p.Broadcast(context.Background(), snap(1, "n2", "n1"))
	_ = p.Broadcast(context.Background(), snap(2, "n3", "n2", "n1"))
	_ = p.Broadcast(context.Background(), snap(2, "stale"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", buf.String())
	}
	for i, want := range []string{"n1", "n2", "n3"} {
		if !strings.HasSuffix(lines[i], want+": "+want) {
			t.Fatalf("line %d: expected %s, got %q", i, want, lines[i])
		}
	}
}
