package models

import (
	"strings"
	"time"
)

// TempIDPrefix marks client-assigned message identifiers. A message carries
// a temp ID only while it is pending server confirmation; reconciliation
// replaces it with the server-assigned ID, never duplicates it.
const TempIDPrefix = "tmp-"

// Message represents a chat message within a group room. A message is in
// exactly one of two states: pending (client-only, temp ID, Optimistic set)
// or confirmed (server ID, Optimistic cleared).
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName,omitempty"`
	GroupID    string    `json:"groupId"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
	Optimistic bool      `json:"-"`
}

// IsPending reports whether the message still carries a client temp ID.
func (m *Message) IsPending() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}
