package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/models"
	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/realtime"
)

// fakeTransport satisfies Transport without a network. Requests are
// answered by the configured handler; subscriptions are plain channels the
// test feeds directly.
type fakeTransport struct {
	mu        sync.Mutex
	timeouts  realtime.TimeoutPolicy
	ensureErr error
	joinErr   error
	subs      []*fakeSub
	requests  []realtime.Event
	handler   func(ev realtime.Event) (json.RawMessage, error)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{timeouts: realtime.DefaultTimeoutPolicy()}
}

func (t *fakeTransport) Ensure(ctx context.Context) error { return t.ensureErr }

func (t *fakeTransport) JoinRoom(groupID string) (RoomSubscription, error) {
	if t.joinErr != nil {
		return nil, t.joinErr
	}
	sub := &fakeSub{groupID: groupID, ch: make(chan realtime.Event, 32)}
	t.mu.Lock()
	t.subs = append(t.subs, sub)
	t.mu.Unlock()
	return sub, nil
}

func (t *fakeTransport) RoomReady(groupID string) bool { return true }

func (t *fakeTransport) Request(ctx context.Context, ev realtime.Event, timeout time.Duration) (json.RawMessage, error) {
	t.mu.Lock()
	t.requests = append(t.requests, ev)
	handler := t.handler
	t.mu.Unlock()
	if handler == nil {
		return nil, nil
	}
	return handler(ev)
}

func (t *fakeTransport) Timeouts() realtime.TimeoutPolicy { return t.timeouts }

func (t *fakeTransport) lastSub() *fakeSub {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.subs) == 0 {
		return nil
	}
	return t.subs[len(t.subs)-1]
}

func (t *fakeTransport) requestCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

type fakeSub struct {
	groupID string
	ch      chan realtime.Event
	once    sync.Once
	closed  bool
	mu      sync.Mutex
}

func (s *fakeSub) GroupID() string { return s.groupID }

func (s *fakeSub) Events() <-chan realtime.Event { return s.ch }

func (s *fakeSub) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.ch)
	})
	return nil
}

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// deliver feeds an event to the subscription as the socket would.
func (s *fakeSub) deliver(ev realtime.Event) {
	s.ch <- ev
}

// fakeAPI serves group snapshots and message history from memory.
type fakeAPI struct {
	mu       sync.Mutex
	groups   map[string]models.Group
	messages map[string][]models.Message
	groupErr error
	msgErr   error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		groups:   make(map[string]models.Group),
		messages: make(map[string][]models.Message),
	}
}

func (a *fakeAPI) Group(ctx context.Context, groupID string) (*models.Group, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.groupErr != nil {
		return nil, a.groupErr
	}
	g, ok := a.groups[groupID]
	if !ok {
		return nil, context.Canceled
	}
	out := g
	return &out, nil
}

func (a *fakeAPI) Messages(ctx context.Context, groupID string) ([]models.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.msgErr != nil {
		return nil, a.msgErr
	}
	return append([]models.Message(nil), a.messages[groupID]...), nil
}

func (a *fakeAPI) setGroup(g models.Group) {
	a.mu.Lock()
	a.groups[g.ID] = g
	a.mu.Unlock()
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

// testGroup builds a three-member group with a payout order, admin first.
func testGroup(id, adminID string) models.Group {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return models.Group{
		ID:      id,
		Name:    "Lagos Savers",
		AdminID: adminID,
		Members: []models.Member{
			{UserID: adminID, Role: models.RoleAdmin, Status: models.MemberStatusActive, IsActive: true, JoinedAt: now},
			{UserID: "user-b", Role: models.RoleMember, Status: models.MemberStatusActive, IsActive: true, JoinedAt: now},
			{UserID: "user-c", Role: models.RoleMember, Status: models.MemberStatusActive, IsActive: true, JoinedAt: now},
		},
		SavingsAmount:   100,
		Frequency:       models.FrequencyWeekly,
		CurrentCycle:    2,
		WalletBalance:   300,
		PayoutOrder:     []string{adminID, "user-b", "user-c"},
		NextRecipientID: "user-b",
		Status:          models.GroupStatusActive,
		Contributions: []models.Contribution{
			{UserID: adminID, Cycle: 2, Amount: 100, PaidAt: now},
			{UserID: "user-c", Cycle: 1, Amount: 100, PaidAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
