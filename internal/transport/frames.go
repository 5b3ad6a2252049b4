package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-notifications-client/pkg/domain"
)

// Frame types exchanged on the realtime socket.
const (
	FrameClientHello = "client_hello"
	FrameServerHello = "server_hello"
	FrameNotify      = "notify"
	FrameReadAck     = "read_ack"
)

var (
	ErrMalformedFrame = errors.New("transport: malformed frame")
	ErrUnknownFrame   = errors.New("transport: unknown frame type")
)

// ClientHello is the only frame the client sends.
type ClientHello struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics"`
}

// ServerFrame is the union of frames the server may send. Only the fields
// relevant to Type are populated.
type ServerFrame struct {
	Type             string               `json:"type"`
	SubscribedTopics []string             `json:"subscribedTopics,omitempty"`
	Notification     *domain.Notification `json:"notification,omitempty"`
	UnreadCount      *int                 `json:"unreadCount,omitempty"`
}

// EncodeHello renders the client_hello frame for topics.
func EncodeHello(topics []string) ([]byte, error) {
	if topics == nil {
		topics = []string{}
	}
	return json.Marshal(ClientHello{Type: FrameClientHello, Topics: topics})
}

// DecodeFrame parses and validates a server frame.
func DecodeFrame(data []byte) (ServerFrame, error) {
	var frame ServerFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return ServerFrame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	switch frame.Type {
	case FrameServerHello:
	case FrameNotify:
		if frame.Notification == nil || strings.TrimSpace(frame.Notification.ID) == "" {
			return ServerFrame{}, fmt.Errorf("%w: notify without notification id", ErrMalformedFrame)
		}
	case FrameReadAck:
		if frame.UnreadCount == nil {
			return ServerFrame{}, fmt.Errorf("%w: read_ack without unreadCount", ErrMalformedFrame)
		}
	case "":
		return ServerFrame{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	default:
		return ServerFrame{}, fmt.Errorf("%w: %q", ErrUnknownFrame, frame.Type)
	}
	return frame, nil
}
