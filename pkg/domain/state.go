package domain

// ConnectionState is owned by the transport session; other components only
// observe it.
type ConnectionState string

const (
	ConnectionDisconnected       ConnectionState = "disconnected"
	ConnectionConnecting         ConnectionState = "connecting"
	ConnectionConnected          ConnectionState = "connected"
	ConnectionReconnectScheduled ConnectionState = "reconnect-scheduled"
)

// Snapshot is the read-only view published to consumers.
type Snapshot struct {
	Identity      Identity        `json:"identity"`
	Notifications []Notification  `json:"notifications"`
	UnreadCount   int             `json:"unread_count"`
	IsConnected   bool            `json:"is_connected"`
	Connection    ConnectionState `json:"connection"`
	Version       uint64          `json:"version"`
}

// Unread returns the buffered notifications that are not read yet.
func (s Snapshot) Unread() []Notification {
	var out []Notification
	for _, n := range s.Notifications {
		if !n.Read {
			out = append(out, n)
		}
	}
	return out
}
