// Package devhub is a local realtime hub emulating the backend's socket
// server: rooms, join/leave, acknowledged sends and broadcasts. It exists
// so the session client can be exercised offline and in tests; it is not a
// production backend.
package devhub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/models"
	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/realtime"
)

// Config holds connection tuning for the hub.
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
}

// DefaultConfig returns the default hub configuration.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// Hub fans realtime events out to room members.
type Hub struct {
	cfg      Config
	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]map[*client]bool
}

type client struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan realtime.Event
	hub    *Hub
}

// NewHub creates an empty hub.
func NewHub(cfg Config) *Hub {
	return &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		rooms: make(map[string]map[*client]bool),
	}
}

// HandleWS upgrades an HTTP request to a hub connection. The userId query
// field is required, matching the production connection contract.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		id:     uuid.New().String(),
		userID: userID,
		conn:   conn,
		send:   make(chan realtime.Event, 256),
		hub:    h,
	}

	go c.writePump()
	go c.readPump()

	// Connect ack; Ensure on the client side waits for this frame.
	c.enqueue(realtime.Event{Type: realtime.EventConnected})

	log.Info().Str("connection_id", c.id).Str("user_id", userID).Msg("hub connection established")
}

// RegisterRoutes registers the hub's WebSocket route.
func (h *Hub) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleWS)
}

// Stats returns room and connection counts.
func (h *Hub) Stats() (rooms, connections int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	seen := make(map[*client]bool)
	for _, members := range h.rooms {
		for c := range members {
			seen[c] = true
		}
	}
	return len(h.rooms), len(seen)
}

func (h *Hub) join(groupID string, c *client) {
	h.mu.Lock()
	if h.rooms[groupID] == nil {
		h.rooms[groupID] = make(map[*client]bool)
	}
	h.rooms[groupID][c] = true
	h.mu.Unlock()
}

func (h *Hub) leave(groupID string, c *client) {
	h.mu.Lock()
	if members, ok := h.rooms[groupID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, groupID)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	for groupID, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, groupID)
		}
	}
	h.mu.Unlock()
}

// broadcast sends an event to every member of the event's room.
func (h *Hub) broadcast(ev realtime.Event) {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.rooms[ev.GroupID]))
	for c := range h.rooms[ev.GroupID] {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.enqueue(ev)
	}
}

func (c *client) enqueue(ev realtime.Event) {
	select {
	case c.send <- ev:
	default:
		log.Warn().Str("connection_id", c.id).Msg("client send buffer full, dropping event")
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
		log.Info().Str("connection_id", c.id).Msg("hub connection closed")
	}()

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.ReadTimeout))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.ReadTimeout))

		var ev realtime.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			log.Warn().Err(err).Msg("discarding malformed client frame")
			continue
		}
		c.handle(ev)
	}
}

// handle processes one client frame, mirroring the backend contract: joins
// are confirmed asynchronously, acknowledged requests get an ack frame plus
// a room broadcast.
func (c *client) handle(ev realtime.Event) {
	switch ev.Type {
	case realtime.EventJoinRoom:
		c.hub.join(ev.GroupID, c)
		payload, _ := json.Marshal(realtime.RoomJoinedPayload{
			GroupID:  ev.GroupID,
			UserID:   c.userID,
			JoinedAt: time.Now(),
		})
		c.enqueue(realtime.Event{Type: realtime.EventRoomJoined, GroupID: ev.GroupID, Data: payload})

	case realtime.EventLeaveRoom:
		c.hub.leave(ev.GroupID, c)

	case realtime.EventSendMessage:
		var req realtime.SendMessagePayload
		if err := ev.Decode(&req); err != nil {
			c.enqueue(realtime.Event{Type: realtime.EventAck, AckID: ev.AckID, Error: "malformed sendMessage payload"})
			return
		}
		msg := models.Message{
			ID:        uuid.New().String(),
			SenderID:  req.SenderID,
			GroupID:   ev.GroupID,
			Text:      req.Text,
			CreatedAt: req.SentAt,
		}
		data, _ := json.Marshal(msg)
		c.enqueue(realtime.Event{Type: realtime.EventAck, AckID: ev.AckID, GroupID: ev.GroupID, Data: data})
		c.hub.broadcast(realtime.Event{Type: realtime.EventNewMessage, GroupID: ev.GroupID, Data: data})

	case realtime.EventDeleteMessage:
		c.enqueue(realtime.Event{Type: realtime.EventAck, AckID: ev.AckID, GroupID: ev.GroupID})
		c.hub.broadcast(realtime.Event{Type: realtime.EventMessageDeleted, GroupID: ev.GroupID, Data: ev.Data})

	case realtime.EventUpdateMemberStatus:
		c.enqueue(realtime.Event{Type: realtime.EventAck, AckID: ev.AckID, GroupID: ev.GroupID})
		c.hub.broadcast(realtime.Event{Type: realtime.EventMemberStatusUpdated, GroupID: ev.GroupID, Data: ev.Data})

	default:
		log.Debug().Str("event", string(ev.Type)).Msg("ignoring unknown client frame")
	}
}
