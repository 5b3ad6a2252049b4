package credentials

import (
	"context"
	"strings"
)

// Provider returns the bearer token used for both the realtime socket and
// REST calls. An empty token with a nil error means "not signed in".
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// Func adapts a function to the Provider interface.
type Func func(ctx context.Context) (string, error)

// Token satisfies Provider.
func (f Func) Token(ctx context.Context) (string, error) {
	if f == nil {
		return "", nil
	}
	return f(ctx)
}

// Static always returns the same token.
type Static string

// Token satisfies Provider.
func (s Static) Token(ctx context.Context) (string, error) {
	return strings.TrimSpace(string(s)), nil
}

// None never yields a token.
type None struct{}

func (None) Token(ctx context.Context) (string, error) { return "", nil }
