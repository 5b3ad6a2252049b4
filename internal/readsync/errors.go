package readsync

import (
	"errors"
	"fmt"
)

var (
	ErrNoIdentity   = errors.New("readsync: no active identity")
	ErrEmptyID      = errors.New("readsync: notification id is required")
	ErrAckAllFailed = errors.New("readsync: acknowledging all channels failed")
)

// AckAllError reports the channel groups whose acknowledgement failed. No
// local state was changed when it is returned.
type AckAllError struct {
	Failed int
	Total  int
	Errs   map[string]error
}

func (e *AckAllError) Error() string {
	return fmt.Sprintf("readsync: %d of %d channel acknowledgements failed", e.Failed, e.Total)
}

// Unwrap exposes the per-channel causes.
func (e *AckAllError) Unwrap() []error {
	out := make([]error, 0, len(e.Errs))
	for _, err := range e.Errs {
		out = append(out, err)
	}
	return out
}

// Is lets errors.Is(err, ErrAckAllFailed) match.
func (e *AckAllError) Is(target error) bool {
	return target == ErrAckAllFailed
}
