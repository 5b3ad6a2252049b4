package domain

import (
	"fmt"
	"strings"
)

// Identity is the active tenant/user pair the client is acting for.
type Identity struct {
	OrganizationID string `json:"organization_id"`
	UserID         string `json:"user_id"`
}

// Valid reports whether both ids are present.
func (i Identity) Valid() bool {
	return strings.TrimSpace(i.OrganizationID) != "" && strings.TrimSpace(i.UserID) != ""
}

// Key returns a stable key for caches and logs.
func (i Identity) Key() string {
	return fmt.Sprintf("%s/%s", strings.TrimSpace(i.OrganizationID), strings.TrimSpace(i.UserID))
}

// Equal compares identities ignoring surrounding whitespace.
func (i Identity) Equal(other Identity) bool {
	return i.Key() == other.Key()
}

func (i Identity) String() string {
	if !i.Valid() {
		return "<none>"
	}
	return i.Key()
}
