package state

import (
	"fmt"
	"testing"

	"github.com/goliatone/go-notifications-client/pkg/domain"
)

func note(id, channel string) domain.Notification {
	return domain.Notification{ID: id, ChannelID: channel, Title: "t-" + id, Severity: domain.SeverityInfo}
}

func TestBufferKeepsFiftyMostRecent(t *testing.T) {
	buf := NewBuffer(50)
	for i := 1; i <= 60; i++ {
		buf.Insert(note(fmt.Sprintf("n%03d", i), "c1"))
	}
	items := buf.Items()
	if len(items) != 50 {
		t.Fatalf("expected 50 items, got %d", len(items))
	}
	if items[0].ID != "n060" {
		t.Fatalf("expected newest first, got %s", items[0].ID)
	}
	if items[49].ID != "n011" {
		t.Fatalf("expected oldest kept to be n011, got %s", items[49].ID)
	}
}

func TestBufferMarkReadUpToCursor(t *testing.T) {
	buf := NewBuffer(10)
	buf.Insert(note("c1#1", "c1"))
	buf.Insert(note("c1#2", "c1"))
	buf.Insert(note("c1#3", "c1"))
	buf.Insert(note("c2#1", "c2"))

	changed := buf.MarkRead(UpTo("c1", "c1#2", domain.DefaultChannel))
	if changed != 2 {
		t.Fatalf("expected 2 entries changed, got %d", changed)
	}
	read := map[string]bool{}
	for _, item := range buf.Items() {
		read[item.ID] = item.Read
	}
	if !read["c1#1"] || !read["c1#2"] {
		t.Fatalf("expected c1#1 and c1#2 read, got %+v", read)
	}
	if read["c1#3"] || read["c2#1"] {
		t.Fatalf("expected c1#3 and c2#1 untouched, got %+v", read)
	}
}

func TestBufferDuplicateKeepsReadFlag(t *testing.T) {
	buf := NewBuffer(10)
	buf.Insert(note("a", "c1"))
	buf.Insert(note("b", "c1"))
	buf.MarkRead(ByID("a"))

	if added := buf.Insert(note("a", "c1")); added {
		t.Fatalf("expected duplicate insert to report existing entry")
	}
	items := buf.Items()
	if len(items) != 2 {
		t.Fatalf("expected duplicate not to grow the buffer, got %d", len(items))
	}
	if items[0].ID != "a" || !items[0].Read {
		t.Fatalf("expected a moved to front and still read, got %+v", items[0])
	}
}

func TestBufferCursorsUseDefaultChannel(t *testing.T) {
	buf := NewBuffer(10)
	buf.Insert(note("001", ""))
	buf.Insert(note("003", ""))
	buf.Insert(note("002", "billing"))
	buf.Insert(note("005", "billing"))
	buf.MarkRead(ByID("005"))

	cursors := buf.Cursors("system")
	if len(cursors) != 2 {
		t.Fatalf("expected 2 channels, got %+v", cursors)
	}
	if cursors["system"] != "003" {
		t.Fatalf("expected default channel cursor 003, got %q", cursors["system"])
	}
	if cursors["billing"] != "002" {
		t.Fatalf("expected billing cursor to ignore read entries, got %q", cursors["billing"])
	}

	buf.MarkRead(UpTo("system", cursors["system"], "system"))
	for _, item := range buf.Items() {
		if item.ChannelID == "" && !item.Read {
			t.Fatalf("expected channel-less entry %s to match the default channel", item.ID)
		}
	}
}

func TestBufferReplaceAllTruncates(t *testing.T) {
	buf := NewBuffer(2)
	buf.ReplaceAll([]domain.Notification{note("3", ""), note("2", ""), note("1", "")})
	if buf.Len() != 2 {
		t.Fatalf("expected replace to honour capacity, got %d", buf.Len())
	}
	buf.Clear()
	if buf.Len() != 0 || len(buf.Items()) != 0 {
		t.Fatalf("expected cleared buffer")
	}
}

func TestCounterClampsAtZero(t *testing.T) {
	var c Counter
	c.Increment()
	c.Sub(5)
	if c.Value() != 0 {
		t.Fatalf("expected clamp at zero, got %d", c.Value())
	}
	c.Set(-3)
	if c.Value() != 0 {
		t.Fatalf("expected negative set to clamp, got %d", c.Value())
	}
}
