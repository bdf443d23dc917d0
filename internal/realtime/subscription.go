package realtime

import "sync"

// Subscription is a room-scoped event stream returned by JoinRoom. Only
// frames for the subscription's room are delivered, so callers never need
// to branch on group identifiers themselves. Closing the subscription
// detaches it and signals the server to leave the room.
type Subscription struct {
	socket  *Socket
	groupID string
	ch      chan Event
	once    sync.Once
}

// GroupID returns the room this subscription is scoped to.
func (s *Subscription) GroupID() string {
	return s.groupID
}

// Events returns the stream of events for the room. The channel is closed
// when the subscription is closed.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close detaches the subscription and emits the leave signal. The leave is
// fire-and-forget; a dead connection makes it a no-op.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.socket.unsubscribe(s)
		s.socket.LeaveRoom(s.groupID)
	})
	return nil
}
