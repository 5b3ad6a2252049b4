package redact

import (
	"net/url"
	"strings"

	masker "github.com/goliatone/go-masker"
)

const maskRule = "preserveEnds(2,2)"

var sensitiveFields = []string{"token", "access_token", "authorization"}

func init() {
	for _, field := range sensitiveFields {
		masker.Default.RegisterMaskField(field, maskRule)
	}
}

// Token masks a bearer token for logging.
func Token(value string) string {
	if value == "" {
		return ""
	}
	if masked, err := masker.Default.String(maskRule, value); err == nil {
		return masked
	}
	runes := []rune(value)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:2]) + strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-2:])
}

// URL masks sensitive query parameters (the realtime URL carries the token).
func URL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable url>"
	}
	q := u.Query()
	changed := false
	for _, field := range sensitiveFields {
		if v := q.Get(field); v != "" {
			q.Set(field, Token(v))
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}
