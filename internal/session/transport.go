package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/realtime"
)

// Transport is what the session layer needs from the realtime socket. It is
// satisfied by SocketTransport in production and by fakes in tests.
type Transport interface {
	Ensure(ctx context.Context) error
	JoinRoom(groupID string) (RoomSubscription, error)
	RoomReady(groupID string) bool
	Request(ctx context.Context, ev realtime.Event, timeout time.Duration) (json.RawMessage, error)
	Timeouts() realtime.TimeoutPolicy
}

// RoomSubscription is a room-scoped event stream. Closing it detaches the
// stream and signals the server to leave the room.
type RoomSubscription interface {
	GroupID() string
	Events() <-chan realtime.Event
	Close() error
}

// SocketTransport adapts a realtime.Socket to the Transport interface.
type SocketTransport struct {
	*realtime.Socket
}

// NewSocketTransport wraps a socket for use by a Session.
func NewSocketTransport(s *realtime.Socket) *SocketTransport {
	return &SocketTransport{Socket: s}
}

// JoinRoom narrows the concrete subscription to the interface.
func (t *SocketTransport) JoinRoom(groupID string) (RoomSubscription, error) {
	return t.Socket.JoinRoom(groupID)
}
