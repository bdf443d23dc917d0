package realtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/devhub"
	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/models"
	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/realtime"
)

func startHub(t *testing.T) *httptest.Server {
	t.Helper()
	hub := devhub.NewHub(devhub.DefaultConfig())
	mux := http.NewServeMux()
	hub.RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func dialSocket(t *testing.T, server *httptest.Server, userID string) *realtime.Socket {
	t.Helper()
	socket := realtime.NewSocket(realtime.DefaultConfig(wsURL(server)), userID, nil, nil)
	t.Cleanup(func() { socket.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := socket.Ensure(ctx); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	return socket
}

func joinAndConfirm(t *testing.T, socket *realtime.Socket, groupID string) *realtime.Subscription {
	t.Helper()
	sub, err := socket.JoinRoom(groupID)
	if err != nil {
		t.Fatalf("JoinRoom(%s) error = %v", groupID, err)
	}

	select {
	case ev := <-sub.Events():
		if ev.Type != realtime.EventRoomJoined {
			t.Fatalf("first event = %s, want roomJoined", ev.Type)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("roomJoined confirmation never arrived")
	}
	if !socket.RoomReady(groupID) {
		t.Fatal("room not flagged ready after confirmation")
	}
	return sub
}

func TestSendMessageRoundTrip(t *testing.T) {
	server := startHub(t)
	alice := dialSocket(t, server, "alice")
	bob := dialSocket(t, server, "bob")

	joinAndConfirm(t, alice, "g1")
	bobSub := joinAndConfirm(t, bob, "g1")

	ev, err := realtime.NewEvent(realtime.EventSendMessage, "g1", realtime.SendMessagePayload{
		TempID:   "tmp-1",
		SenderID: "alice",
		Text:     "contribution sent",
		SentAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}

	data, err := alice.Request(context.Background(), ev, alice.Timeouts().Send)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	var confirmed models.Message
	if err := json.Unmarshal(data, &confirmed); err != nil {
		t.Fatalf("decode ack payload: %v", err)
	}
	if confirmed.ID == "" || confirmed.Text != "contribution sent" {
		t.Fatalf("confirmed message = %+v", confirmed)
	}

	select {
	case got := <-bobSub.Events():
		if got.Type != realtime.EventNewMessage || got.GroupID != "g1" {
			t.Fatalf("bob received %+v, want newMessage for g1", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("broadcast never reached the second member")
	}
}

func TestRoomIsolation(t *testing.T) {
	server := startHub(t)
	alice := dialSocket(t, server, "alice")
	bob := dialSocket(t, server, "bob")

	joinAndConfirm(t, alice, "g1")
	bobSub := joinAndConfirm(t, bob, "g2")

	ev, err := realtime.NewEvent(realtime.EventSendMessage, "g1", realtime.SendMessagePayload{
		TempID: "tmp-1", SenderID: "alice", Text: "g1 only", SentAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := alice.Request(context.Background(), ev, alice.Timeouts().Send); err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	select {
	case got := <-bobSub.Events():
		t.Fatalf("g2 subscription received foreign traffic: %+v", got)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSingleActiveConnection(t *testing.T) {
	var (
		mu     sync.Mutex
		events []string
	)
	record := func(s string) {
		mu.Lock()
		events = append(events, s)
		mu.Unlock()
	}
	snapshot := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), events...)
	}

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		record("open")
		conn.WriteJSON(realtime.Event{Type: realtime.EventConnected})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				record("close")
				conn.Close()
				return
			}
		}
	}))
	defer server.Close()

	socket := realtime.NewSocket(realtime.DefaultConfig(wsURL(server)), "alice", nil, nil)
	defer socket.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := socket.Ensure(ctx); err != nil {
		t.Fatalf("first Ensure() error = %v", err)
	}

	// Re-initializing must close the first connection before opening the
	// second.
	if err := socket.Init(ctx); err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	if err := socket.Ensure(ctx); err != nil {
		t.Fatalf("second Ensure() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		evs := snapshot()
		if len(evs) >= 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	evs := snapshot()
	if len(evs) < 3 {
		t.Fatalf("server events = %v, want open/close/open", evs)
	}
	if evs[0] != "open" || evs[1] != "close" || evs[2] != "open" {
		t.Fatalf("server events = %v, want the close to precede the second open", evs)
	}
}

func TestEnsureReconnectsAfterDisconnect(t *testing.T) {
	// The first connection is dropped by the server on demand; later
	// connections stay healthy.
	closeFirst := make(chan struct{})
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteJSON(realtime.Event{Type: realtime.EventConnected})
		if conns.Add(1) == 1 {
			<-closeFirst
			conn.Close()
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}))
	defer server.Close()

	socket := realtime.NewSocket(realtime.DefaultConfig(wsURL(server)), "alice", nil, nil)
	defer socket.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := socket.Ensure(ctx); err != nil {
		t.Fatalf("first Ensure() error = %v", err)
	}

	close(closeFirst)
	deadline := time.Now().Add(5 * time.Second)
	for socket.Connected() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if socket.Connected() {
		t.Fatal("socket still reports connected after the server closed it")
	}

	// Ensure against a dead connection must re-dial, not fail fast.
	if err := socket.Ensure(ctx); err != nil {
		t.Fatalf("Ensure() after disconnect = %v, want reconnect", err)
	}
	if !socket.Connected() {
		t.Fatal("socket not connected after re-ensure")
	}
}

func TestConcurrentInitLeavesOneConnection(t *testing.T) {
	var (
		mu     sync.Mutex
		opens  int
		closes int
	)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		opens++
		mu.Unlock()
		conn.WriteJSON(realtime.Event{Type: realtime.EventConnected})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				mu.Lock()
				closes++
				mu.Unlock()
				conn.Close()
				return
			}
		}
	}))
	defer server.Close()

	socket := realtime.NewSocket(realtime.DefaultConfig(wsURL(server)), "alice", nil, nil)
	defer socket.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			socket.Init(ctx)
		}()
	}
	wg.Wait()

	if err := socket.Ensure(ctx); err != nil {
		t.Fatalf("Ensure() after concurrent inits = %v", err)
	}

	// Every displaced connection must be closed; exactly one stays live.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		live := opens - closes
		mu.Unlock()
		if live == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	t.Fatalf("connections: %d opened, %d closed, want exactly one live", opens, closes)
}

func TestEnsureConnectTimeout(t *testing.T) {
	// Upgrades, but never sends the connect ack.
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}))
	defer server.Close()

	clock := clockwork.NewFakeClock()
	socket := realtime.NewSocket(realtime.DefaultConfig(wsURL(server)), "alice", clock, nil)
	defer socket.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- socket.Ensure(context.Background())
	}()

	// Two sleepers: the write pump's ping ticker and the ensure timer.
	clock.BlockUntil(2)
	clock.Advance(5 * time.Second)

	select {
	case err := <-errCh:
		if !errors.Is(err, realtime.ErrConnectTimeout) {
			t.Fatalf("Ensure() error = %v, want ErrConnectTimeout", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Ensure() did not return after the connect window elapsed")
	}
}

func TestRequestAckTimeout(t *testing.T) {
	// Acknowledges the connection, then swallows every request.
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteJSON(realtime.Event{Type: realtime.EventConnected})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}))
	defer server.Close()

	clock := clockwork.NewFakeClock()
	socket := realtime.NewSocket(realtime.DefaultConfig(wsURL(server)), "alice", clock, nil)
	defer socket.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := socket.Ensure(ctx); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	ev, err := realtime.NewEvent(realtime.EventSendMessage, "g1", realtime.SendMessagePayload{
		TempID: "tmp-1", SenderID: "alice", Text: "never acked", SentAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := socket.Request(context.Background(), ev, socket.Timeouts().Send)
		errCh <- err
	}()

	// Two sleepers: the write pump's ping ticker and the request timer.
	clock.BlockUntil(2)
	clock.Advance(10 * time.Second)

	select {
	case err := <-errCh:
		if !errors.Is(err, realtime.ErrAckTimeout) {
			t.Fatalf("Request() error = %v, want ErrAckTimeout", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Request() did not return after the ack window elapsed")
	}
}

func TestEnsureWithoutUser(t *testing.T) {
	socket := realtime.NewSocket(realtime.DefaultConfig("ws://localhost:0/ws"), "", nil, nil)

	// Init without a user is a silent no-op.
	if err := socket.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v, want nil no-op", err)
	}
	if socket.Connected() {
		t.Fatal("socket reports connected without a user")
	}
	if err := socket.Ensure(context.Background()); !errors.Is(err, realtime.ErrNoUser) {
		t.Fatalf("Ensure() error = %v, want ErrNoUser", err)
	}
}

func TestRequestWithoutConnection(t *testing.T) {
	socket := realtime.NewSocket(realtime.DefaultConfig("ws://localhost:0/ws"), "alice", nil, nil)

	_, err := socket.Request(context.Background(), realtime.Event{Type: realtime.EventSendMessage}, time.Second)
	if !errors.Is(err, realtime.ErrNotConnected) {
		t.Fatalf("Request() error = %v, want ErrNotConnected", err)
	}
	if _, err := socket.JoinRoom("g1"); !errors.Is(err, realtime.ErrNotConnected) {
		t.Fatalf("JoinRoom() error = %v, want ErrNotConnected", err)
	}
}
