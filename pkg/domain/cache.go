package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RecordMeta captures identifiers and audit fields shared by cache records.
type RecordMeta struct {
	ID        uuid.UUID `bun:",pk,type:uuid" json:"id"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// EnsureID assigns a UUID when the struct is about to be persisted.
func (m *RecordMeta) EnsureID() {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
}

// Touch sets the audit timestamps for a write at now.
func (m *RecordMeta) Touch(now time.Time) {
	m.EnsureID()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
}

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("null"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value any) error {
	if m == nil {
		return errors.New("JSONMap: Scan on nil pointer")
	}
	switch v := value.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("JSONMap: unsupported type %T", value)
	}
}

// CachedNotification is one buffered notification persisted for an
// identity. Position keeps the newest-first order.
type CachedNotification struct {
	bun.BaseModel `bun:"table:client_cached_notifications"`
	RecordMeta

	IdentityKey    string    `bun:",notnull" json:"identity_key"`
	Position       int       `bun:",notnull" json:"position"`
	NotificationID string    `bun:",notnull" json:"notification_id"`
	ChannelID      string    `bun:",nullzero" json:"channel_id,omitempty"`
	Type           string    `bun:",nullzero" json:"type"`
	Title          string    `bun:",nullzero" json:"title"`
	Body           string    `bun:",nullzero" json:"body"`
	Payload        JSONMap   `bun:",type:json" json:"payload,omitempty"`
	Severity       string    `bun:",nullzero" json:"severity"`
	CallbackURL    string    `bun:",nullzero" json:"callback_url,omitempty"`
	IssuedAt       time.Time `bun:",nullzero" json:"issued_at"`
	Read           bool      `bun:",notnull" json:"read"`
}

// NewCachedNotification captures n at position for identity.
func NewCachedNotification(identity Identity, position int, n Notification) CachedNotification {
	return CachedNotification{
		IdentityKey:    identity.Key(),
		Position:       position,
		NotificationID: n.ID,
		ChannelID:      n.ChannelID,
		Type:           n.Type,
		Title:          n.Title,
		Body:           n.Body,
		Payload:        n.Clone().Payload,
		Severity:       string(n.Severity),
		CallbackURL:    n.CallbackURL,
		IssuedAt:       n.CreatedAt,
		Read:           n.Read,
	}
}

// Notification converts the record back.
func (c CachedNotification) Notification() Notification {
	severity := Severity(c.Severity)
	if !severity.Valid() {
		severity = SeverityInfo
	}
	return Notification{
		ID:          c.NotificationID,
		ChannelID:   c.ChannelID,
		Type:        c.Type,
		Title:       c.Title,
		Body:        c.Body,
		Payload:     c.Payload,
		Severity:    severity,
		CallbackURL: c.CallbackURL,
		CreatedAt:   c.IssuedAt,
		Read:        c.Read,
	}
}

// CachedCounter stores the unread total alongside the cached notifications.
type CachedCounter struct {
	bun.BaseModel `bun:"table:client_cached_counters"`
	RecordMeta

	IdentityKey    string `bun:",unique,notnull" json:"identity_key"`
	OrganizationID string `bun:",notnull" json:"organization_id"`
	UserID         string `bun:",notnull" json:"user_id"`
	UnreadCount    int    `bun:",notnull" json:"unread_count"`
	Version        int64  `bun:",notnull" json:"version"`
}
