// Package realtime owns the client side of the realtime channel: one live
// WebSocket connection per authenticated user, room-scoped event
// subscriptions, and an acknowledgment-based request layer with a uniform
// timeout policy.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/metrics"
)

// Config holds configuration for the realtime socket.
type Config struct {
	// URL is the WebSocket endpoint, e.g. wss://api.example.com/ws.
	URL string

	Timeouts TimeoutPolicy

	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
}

// DefaultConfig returns the default socket configuration.
func DefaultConfig(wsURL string) Config {
	return Config{
		URL:             wsURL,
		Timeouts:        DefaultTimeoutPolicy(),
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
	}
}

// conn bundles the state of a single dialed connection so a reconnect never
// races the pumps of the connection it replaced.
type conn struct {
	ws          *websocket.Conn
	send        chan Event
	connected   atomic.Bool
	connectedCh chan struct{}
	closedCh    chan struct{}
	closeOnce   sync.Once
}

// closed reports whether the connection has been torn down.
func (c *conn) closed() bool {
	select {
	case <-c.closedCh:
		return true
	default:
		return false
	}
}

// Socket maintains at most one live realtime connection for one
// authenticated user. All screens of a session share it; rooms are joined
// and left on top of the single connection.
type Socket struct {
	cfg     Config
	userID  string
	clock   clockwork.Clock
	dialer  *websocket.Dialer
	metrics *metrics.Metrics

	// dialMu serializes Init so two concurrent dials can never leave two
	// live connections behind.
	dialMu sync.Mutex

	mu        sync.Mutex
	cur       *conn
	pending   map[string]chan ackResult
	subs      map[string]map[*Subscription]bool
	roomReady map[string]bool
}

// NewSocket creates a socket bound to the given user. A nil clock defaults
// to the real clock; nil metrics default to an unregistered set.
func NewSocket(cfg Config, userID string, clock clockwork.Clock, m *metrics.Metrics) *Socket {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Socket{
		cfg:    cfg,
		userID: userID,
		clock:  clock,
		dialer: &websocket.Dialer{
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
			HandshakeTimeout: cfg.Timeouts.Connect,
		},
		metrics:   m,
		pending:   make(map[string]chan ackResult),
		subs:      make(map[string]map[*Subscription]bool),
		roomReady: make(map[string]bool),
	}
}

// Init dials a fresh connection for the bound user. Without a user it is a
// no-op, not an error. Any prior connection is closed before the new dial,
// so at most one connection is ever live.
func (s *Socket) Init(ctx context.Context) error {
	if s.userID == "" {
		log.Debug().Msg("socket init skipped, no authenticated user")
		return nil
	}

	s.dialMu.Lock()
	defer s.dialMu.Unlock()

	// Close the previous connection first.
	s.mu.Lock()
	old := s.cur
	s.cur = nil
	s.mu.Unlock()
	if old != nil {
		s.teardown(old)
	}

	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return fmt.Errorf("parse socket url: %w", err)
	}
	q := u.Query()
	q.Set("userId", s.userID)
	u.RawQuery = q.Encode()

	ws, _, err := s.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		log.Error().Err(err).Str("user_id", s.userID).Msg("socket dial failed")
		return fmt.Errorf("dial realtime server: %w", err)
	}

	c := &conn{
		ws:          ws,
		send:        make(chan Event, s.cfg.SendBuffer),
		connectedCh: make(chan struct{}),
		closedCh:    make(chan struct{}),
	}

	s.mu.Lock()
	s.cur = c
	s.mu.Unlock()

	go s.writePump(c)
	go s.readPump(c)

	log.Info().Str("user_id", s.userID).Msg("socket dialed, awaiting connect ack")
	return nil
}

// Ensure returns immediately when a connection is open and acknowledged.
// Otherwise, including after the previous connection died, it
// (re)initializes and waits up to the connect window for the server's
// connect ack; exceeding the window is fatal to the caller.
func (s *Socket) Ensure(ctx context.Context) error {
	if s.userID == "" {
		return ErrNoUser
	}

	s.mu.Lock()
	c := s.cur
	s.mu.Unlock()

	if c != nil && c.connected.Load() {
		return nil
	}
	if c == nil || c.closed() {
		if err := s.Init(ctx); err != nil {
			return err
		}
		s.mu.Lock()
		c = s.cur
		s.mu.Unlock()
		if c == nil {
			return ErrNotConnected
		}
	}

	timer := s.clock.NewTimer(s.cfg.Timeouts.Connect)
	defer stopAndDrainTimer(timer)

	select {
	case <-c.connectedCh:
		return nil
	case <-c.closedCh:
		return ErrConnectFailed
	case <-timer.Chan():
		log.Error().Str("user_id", s.userID).Msg("connect ack window elapsed")
		return ErrConnectTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected reports whether a connection is open and acknowledged.
func (s *Socket) Connected() bool {
	s.mu.Lock()
	c := s.cur
	s.mu.Unlock()
	return c != nil && c.connected.Load()
}

// JoinRoom registers a room-scoped subscription and signals the server to
// join the room. The signal is fire-and-forget; the roomJoined confirmation
// arrives asynchronously on the returned subscription and flips the
// room-ready flag consumed by RoomReady.
func (s *Socket) JoinRoom(groupID string) (*Subscription, error) {
	s.mu.Lock()
	if s.cur == nil {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	sub := &Subscription{
		socket:  s,
		groupID: groupID,
		ch:      make(chan Event, 32),
	}
	if s.subs[groupID] == nil {
		s.subs[groupID] = make(map[*Subscription]bool)
	}
	s.subs[groupID][sub] = true
	s.mu.Unlock()

	if err := s.enqueue(Event{Type: EventJoinRoom, GroupID: groupID}); err != nil {
		s.unsubscribe(sub)
		return nil, err
	}

	log.Debug().Str("group_id", groupID).Msg("join room signalled")
	return sub, nil
}

// LeaveRoom signals the server to leave the room. Fire-and-forget; the
// room-ready flag is cleared immediately.
func (s *Socket) LeaveRoom(groupID string) error {
	s.mu.Lock()
	delete(s.roomReady, groupID)
	s.mu.Unlock()
	return s.enqueue(Event{Type: EventLeaveRoom, GroupID: groupID})
}

// RoomReady reports whether the server has confirmed the join for a room.
// Sending stays disabled until this flips, even while the connection itself
// is open.
func (s *Socket) RoomReady(groupID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomReady[groupID]
}

// Close tears down the live connection, failing any in-flight requests.
func (s *Socket) Close() error {
	s.mu.Lock()
	c := s.cur
	s.cur = nil
	s.mu.Unlock()
	if c != nil {
		s.teardown(c)
	}
	return nil
}

// enqueue places an event on the outbound queue of the live connection.
func (s *Socket) enqueue(ev Event) error {
	s.mu.Lock()
	c := s.cur
	s.mu.Unlock()
	if c == nil {
		return ErrNotConnected
	}

	select {
	case c.send <- ev:
		return nil
	case <-c.closedCh:
		return ErrSocketClosed
	default:
		log.Warn().Str("event", string(ev.Type)).Msg("outbound queue full, dropping event")
		return ErrSendBufferFull
	}
}

// teardown closes one connection exactly once: it marks the socket
// disconnected, detaches the connection so Ensure re-dials, fails all
// pending requests and resets room-ready flags.
func (s *Socket) teardown(c *conn) {
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		close(c.closedCh)
		c.ws.Close()

		s.mu.Lock()
		if s.cur == c {
			s.cur = nil
		}
		pending := s.pending
		s.pending = make(map[string]chan ackResult)
		s.roomReady = make(map[string]bool)
		s.mu.Unlock()

		for _, ch := range pending {
			select {
			case ch <- ackResult{err: ErrSocketClosed}:
			default:
			}
		}

		s.metrics.SocketDisconnects.Inc()
		log.Info().Str("user_id", s.userID).Msg("socket disconnected")
	})
}

func (s *Socket) writePump(c *conn) {
	ticker := s.clock.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		s.teardown(c)
	}()

	for {
		select {
		case ev := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := c.ws.WriteJSON(ev); err != nil {
				log.Error().Err(err).Str("event", string(ev.Type)).Msg("socket write failed")
				return
			}
		case <-ticker.Chan():
			c.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closedCh:
			return
		}
	}
}

func (s *Socket) readPump(c *conn) {
	defer s.teardown(c)

	c.ws.SetReadLimit(s.cfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Msg("unexpected socket close")
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			log.Warn().Err(err).Msg("discarding malformed frame")
			continue
		}
		s.dispatch(c, ev)
	}
}

// dispatch routes one inbound frame: connect acks resolve Ensure waiters,
// acks resolve their pending request, everything else fans out to the
// subscriptions of the frame's room.
func (s *Socket) dispatch(c *conn, ev Event) {
	switch ev.Type {
	case EventConnected:
		if c.connected.CompareAndSwap(false, true) {
			close(c.connectedCh)
			s.metrics.SocketConnects.Inc()
			log.Info().Str("user_id", s.userID).Msg("socket connected")
		}

	case EventAck:
		s.mu.Lock()
		ch, ok := s.pending[ev.AckID]
		delete(s.pending, ev.AckID)
		s.mu.Unlock()
		if !ok {
			// Ack arrived after its window; the request already failed.
			log.Debug().Str("ack_id", ev.AckID).Msg("dropping late ack")
			return
		}
		res := ackResult{data: ev.Data}
		if ev.Error != "" {
			res.err = &ServerError{Message: ev.Error}
		}
		ch <- res

	case EventRoomJoined:
		s.mu.Lock()
		s.roomReady[ev.GroupID] = true
		s.mu.Unlock()
		s.deliver(ev)
		log.Info().Str("group_id", ev.GroupID).Msg("room joined")

	case EventJoinGroupError:
		log.Warn().Str("group_id", ev.GroupID).Str("reason", ev.Error).Msg("join room rejected")
		s.deliver(ev)

	default:
		s.deliver(ev)
	}
}

// deliver fans an event out to the subscriptions of its room only. A frame
// without a room, or for a room with no subscribers, is dropped; that is
// what keeps one room's traffic out of another room's view.
func (s *Socket) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sub := range s.subs[ev.GroupID] {
		select {
		case sub.ch <- ev:
		default:
			log.Warn().
				Str("group_id", ev.GroupID).
				Str("event", string(ev.Type)).
				Msg("subscription buffer full, dropping event")
		}
	}
}

func (s *Socket) unsubscribe(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.subs[sub.groupID]
	if set == nil || !set[sub] {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(s.subs, sub.groupID)
	}
	close(sub.ch)
}

// stopAndDrainTimer safely stops a timer and drains its channel, per the
// time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
