package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies a frame on the realtime channel.
type EventType string

const (
	// Server -> client.
	EventConnected           EventType = "connected"
	EventNewMessage          EventType = "newMessage"
	EventRoomJoined          EventType = "roomJoined"
	EventJoinGroupError      EventType = "joinGroupError"
	EventMessageDeleted      EventType = "messageDeleted"
	EventMemberStatusUpdated EventType = "memberStatusUpdated"
	EventAck                 EventType = "ack"

	// Client -> server.
	EventJoinRoom           EventType = "joinRoom"
	EventLeaveRoom          EventType = "leaveRoom"
	EventSendMessage        EventType = "sendMessage"
	EventDeleteMessage      EventType = "deleteMessage"
	EventUpdateMemberStatus EventType = "updateMemberStatus"
)

// Event is the wire envelope for every frame on the realtime channel.
// AckID correlates a client request with the server's ack frame; Error is
// only populated on acks and joinGroupError frames.
type Event struct {
	Type    EventType       `json:"event"`
	AckID   string          `json:"ackId,omitempty"`
	GroupID string          `json:"groupId,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the event payload into v.
func (e *Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s carries no payload", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// NewEvent builds an event with a JSON-encoded payload.
func NewEvent(typ EventType, groupID string, payload any) (Event, error) {
	ev := Event{Type: typ, GroupID: groupID}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("encode %s payload: %w", typ, err)
		}
		ev.Data = data
	}
	return ev, nil
}

// SendMessagePayload is the client request payload for sendMessage.
type SendMessagePayload struct {
	TempID   string    `json:"tempId"`
	SenderID string    `json:"senderId"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sentAt"`
}

// DeleteMessagePayload is the client request payload for deleteMessage.
type DeleteMessagePayload struct {
	MessageID string `json:"messageId"`
}

// UpdateMemberStatusPayload is the client request payload for
// updateMemberStatus, echoed back on the memberStatusUpdated broadcast.
type UpdateMemberStatusPayload struct {
	MemberID string `json:"memberId"`
	Status   string `json:"status"`
}

// RoomJoinedPayload confirms a join request for one room.
type RoomJoinedPayload struct {
	GroupID  string    `json:"groupId"`
	UserID   string    `json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`
}

// JoinGroupErrorPayload reports a failed join request.
type JoinGroupErrorPayload struct {
	GroupID string `json:"groupId"`
	Reason  string `json:"reason"`
}
