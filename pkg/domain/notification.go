package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// DefaultChannel is used for notifications delivered without a channel id.
const DefaultChannel = "default"

// Severity classifies how prominently a notification should be surfaced.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarn, SeverityError:
		return true
	}
	return false
}

// JSONMap carries arbitrary structured payload data.
type JSONMap map[string]any

// Notification is a single item received from the notification service.
//
// IDs are expected to sort lexicographically in the order they were
// produced within a channel. Read is local projection state: the server
// tracks a per-channel cursor and the client only mirrors its effect.
type Notification struct {
	ID          string    `json:"id"`
	ChannelID   string    `json:"channelId,omitempty"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Payload     JSONMap   `json:"payload,omitempty"`
	Severity    Severity  `json:"severity"`
	CallbackURL string    `json:"callbackUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	Read        bool      `json:"read"`
}

// Channel returns the channel id, falling back to fallback (or
// DefaultChannel) when the notification has none.
func (n Notification) Channel(fallback string) string {
	return ResolveChannel(n.ChannelID, fallback)
}

// Clone returns a copy that does not share the payload map.
func (n Notification) Clone() Notification {
	out := n
	if n.Payload != nil {
		out.Payload = make(JSONMap, len(n.Payload))
		for k, v := range n.Payload {
			out.Payload[k] = v
		}
	}
	return out
}

// UnmarshalJSON accepts a null channelId and a missing severity.
func (n *Notification) UnmarshalJSON(data []byte) error {
	type alias Notification
	aux := struct {
		*alias
		ChannelID *string `json:"channelId"`
	}{alias: (*alias)(n)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	n.ChannelID = ""
	if aux.ChannelID != nil {
		n.ChannelID = *aux.ChannelID
	}
	if n.Severity == "" {
		n.Severity = SeverityInfo
	}
	return nil
}

// ResolveChannel applies the default channel fallback. The same function is
// used when building acknowledgement requests and when matching buffered
// entries, so both sides always agree on the channel name.
func ResolveChannel(channelID, fallback string) string {
	if id := strings.TrimSpace(channelID); id != "" {
		return id
	}
	if fallback = strings.TrimSpace(fallback); fallback != "" {
		return fallback
	}
	return DefaultChannel
}

// CloneNotifications copies a slice of notifications.
func CloneNotifications(src []Notification) []Notification {
	if src == nil {
		return nil
	}
	out := make([]Notification, len(src))
	for i, n := range src {
		out[i] = n.Clone()
	}
	return out
}
