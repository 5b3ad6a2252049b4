package redact

import (
	"strings"
	"testing"
)

func TestTokenHidesMiddle(t *testing.T) {
	masked := Token("abcdefghijkl")
	if masked == "abcdefghijkl" {
		t.Fatalf("expected token to be masked")
	}
	if strings.Contains(masked, "cdefghij") {
		t.Fatalf("expected middle of token hidden, got %q", masked)
	}
	if Token("") != "" {
		t.Fatalf("expected empty token to stay empty")
	}
}

func TestURLMasksTokenQuery(t *testing.T) {
	out := URL("wss://example.com/realtime/org?token=supersecretvalue")
	if strings.Contains(out, "supersecretvalue") {
		t.Fatalf("expected token redacted, got %s", out)
	}
	if !strings.HasPrefix(out, "wss://example.com/realtime/org?token=") {
		t.Fatalf("expected url shape preserved, got %s", out)
	}
}
