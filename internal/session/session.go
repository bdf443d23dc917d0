// Package session composes the realtime socket, message reconciler,
// snapshot cache and payout derivations into one group session: the state a
// visible group screen binds to.
//
// A Session is constructed once per authenticated user and passed by handle
// to whatever needs it; there is no package-level singleton. One Session
// tracks one active room at a time; re-activation for another group tears
// down the previous room's subscription first so no events leak across.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/metrics"
	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/models"
	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/realtime"
)

// ErrRoomNotReady is returned by Send while the join confirmation for the
// active room has not arrived yet. The connection being open is not enough;
// sending stays disabled until the server confirms the room.
var ErrRoomNotReady = errors.New("session: room not ready")

// ErrNotActive is returned when an operation needs an active room.
var ErrNotActive = errors.New("session: no active group")

// API is the slice of the REST backend the session consumes.
type API interface {
	Group(ctx context.Context, groupID string) (*models.Group, error)
	Messages(ctx context.Context, groupID string) ([]models.Message, error)
}

// Session orchestrates one user's live group screen.
type Session struct {
	user      models.User
	transport Transport
	api       API
	clock     clockwork.Clock

	cache      *SnapshotCache
	reconciler *Reconciler

	mu      sync.Mutex
	groupID string
	sub     RoomSubscription
	ready   bool
}

// New creates a session for an authenticated user.
func New(user models.User, transport Transport, api API, clock clockwork.Clock, m *metrics.Metrics) *Session {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Session{
		user:       user,
		transport:  transport,
		api:        api,
		clock:      clock,
		cache:      NewSnapshotCache(api, transport, user, clock, m),
		reconciler: NewReconciler(transport, user, clock, m),
	}
}

// Activate binds the session to a group: it ensures the connection, joins
// the room, then fetches the group snapshot and the message history
// concurrently. Any previously active room is deactivated first. The room
// becomes ready for sending only once the explicit roomJoined confirmation
// arrives, not on activation returning.
func (s *Session) Activate(ctx context.Context, groupID string) error {
	s.Deactivate()

	if err := s.transport.Ensure(ctx); err != nil {
		return fmt.Errorf("activate group %s: %w", groupID, err)
	}

	sub, err := s.transport.JoinRoom(groupID)
	if err != nil {
		return fmt.Errorf("join room %s: %w", groupID, err)
	}

	s.mu.Lock()
	s.groupID = groupID
	s.sub = sub
	s.ready = false
	s.mu.Unlock()

	go s.consume(sub)

	var wg sync.WaitGroup
	var snapErr, histErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, snapErr = s.cache.Refresh(ctx, groupID)
	}()
	go func() {
		defer wg.Done()
		var history []models.Message
		history, histErr = s.api.Messages(ctx, groupID)
		if histErr == nil {
			s.reconciler.SetHistory(history)
			s.cache.SetMessages(groupID, history)
		}
	}()
	wg.Wait()

	if err := errors.Join(snapErr, histErr); err != nil {
		// A failed activation must not leave the room half-active.
		s.Deactivate()
		return fmt.Errorf("activate group %s: %w", groupID, err)
	}

	log.Info().Str("group_id", groupID).Str("user_id", s.user.ID).Msg("group session activated")
	return nil
}

// Deactivate leaves the active room and disposes its subscription. The
// underlying socket stays open; it is shared across screens for the whole
// user session.
func (s *Session) Deactivate() {
	s.mu.Lock()
	sub := s.sub
	groupID := s.groupID
	s.sub = nil
	s.groupID = ""
	s.ready = false
	s.mu.Unlock()

	if sub != nil {
		sub.Close()
		log.Info().Str("group_id", groupID).Msg("group session deactivated")
	}
}

// consume drains one room subscription until it closes. Events are already
// room-scoped by the subscription; the group id guard is kept so a
// misbehaving server cannot leak another room's traffic into this view.
func (s *Session) consume(sub RoomSubscription) {
	groupID := sub.GroupID()

	for ev := range sub.Events() {
		if ev.GroupID != groupID {
			log.Warn().
				Str("want", groupID).
				Str("got", ev.GroupID).
				Msg("dropping event for foreign room")
			continue
		}

		switch ev.Type {
		case realtime.EventRoomJoined:
			s.setReady(sub, true)

		case realtime.EventJoinGroupError:
			s.setReady(sub, false)
			log.Warn().Str("group_id", groupID).Str("reason", ev.Error).Msg("room join failed")

		case realtime.EventNewMessage:
			var msg models.Message
			if err := ev.Decode(&msg); err != nil {
				log.Warn().Err(err).Msg("dropping malformed newMessage event")
				continue
			}
			s.reconciler.AppendConfirmed(msg)
			s.cache.ApplyIncomingMessage(msg)

		case realtime.EventMessageDeleted:
			var payload realtime.DeleteMessagePayload
			if err := ev.Decode(&payload); err != nil {
				continue
			}
			s.reconciler.RemoveConfirmed(payload.MessageID)

		case realtime.EventMemberStatusUpdated:
			var payload realtime.UpdateMemberStatusPayload
			if err := ev.Decode(&payload); err != nil {
				continue
			}
			s.cache.ApplyMemberStatusEvent(groupID, payload.MemberID, models.MemberStatus(payload.Status))
		}
	}
}

// setReady flips the room-ready flag, but only while the subscription is
// still the active one; a stale consumer must not resurrect a left room.
func (s *Session) setReady(sub RoomSubscription, ready bool) {
	s.mu.Lock()
	if s.sub == sub {
		s.ready = ready
	}
	s.mu.Unlock()
}

// Ready reports whether the active room has been confirmed by the server.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// ActiveGroup returns the id of the active group, if any.
func (s *Session) ActiveGroup() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groupID, s.groupID != ""
}

// Messages returns the merged, time-ordered message view for the active
// room. Entries for any other room are filtered out, so an optimistic send
// still in flight when the user switched groups never surfaces in the new
// room's view.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	groupID := s.groupID
	s.mu.Unlock()
	if groupID == "" {
		return nil
	}

	all := s.reconciler.Messages()
	out := all[:0]
	for _, m := range all {
		if m.GroupID == groupID {
			out = append(out, m)
		}
	}
	return out
}

// Snapshot returns the cached snapshot of the active group.
func (s *Session) Snapshot() (Snapshot, bool) {
	s.mu.Lock()
	groupID := s.groupID
	s.mu.Unlock()
	if groupID == "" {
		return Snapshot{}, false
	}
	return s.cache.Get(groupID)
}

// Send sends a message to the active room through the reconciler. It fails
// fast while the room join is unconfirmed.
func (s *Session) Send(ctx context.Context, text string) (models.Message, error) {
	s.mu.Lock()
	groupID := s.groupID
	ready := s.ready
	s.mu.Unlock()

	if groupID == "" {
		return models.Message{}, ErrNotActive
	}
	if !ready {
		return models.Message{}, ErrRoomNotReady
	}
	return s.reconciler.Send(ctx, groupID, text)
}

// DeleteMessage deletes a message in the active room.
func (s *Session) DeleteMessage(ctx context.Context, messageID string) error {
	s.mu.Lock()
	groupID := s.groupID
	s.mu.Unlock()
	if groupID == "" {
		return ErrNotActive
	}
	return s.reconciler.Delete(ctx, groupID, messageID)
}

// UpdateMemberStatus optimistically patches a member's status in the active
// group and confirms it with the server, rolling back on failure.
func (s *Session) UpdateMemberStatus(ctx context.Context, memberID string, status models.MemberStatus) error {
	s.mu.Lock()
	groupID := s.groupID
	s.mu.Unlock()
	if groupID == "" {
		return ErrNotActive
	}
	return s.cache.UpdateMemberStatus(ctx, groupID, memberID, status)
}

// Refresh re-fetches the active group's snapshot, clearing any
// derived-stale flag set by incremental patches.
func (s *Session) Refresh(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	groupID := s.groupID
	s.mu.Unlock()
	if groupID == "" {
		return Snapshot{}, ErrNotActive
	}
	return s.cache.Refresh(ctx, groupID)
}
