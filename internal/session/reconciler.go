package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/metrics"
	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/models"
	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/realtime"
)

// Reconciler presents a single, duplicate-free, time-ordered message list
// blending optimistic sends with server-confirmed messages.
//
// A provisional message lives in the optimistic buffer under its temp id
// until its send resolves; the confirmed copy lives in the confirmed list
// under its server id. Merging the two views never shows the same message
// twice, and after a send resolves no entry retains the temp id.
type Reconciler struct {
	sender  Transport
	user    models.User
	clock   clockwork.Clock
	metrics *metrics.Metrics

	mu         sync.Mutex
	confirmed  []models.Message
	seen       map[string]bool
	optimistic map[string]models.Message
}

// NewReconciler creates a reconciler sending through the given transport.
func NewReconciler(sender Transport, user models.User, clock clockwork.Clock, m *metrics.Metrics) *Reconciler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Reconciler{
		sender:     sender,
		user:       user,
		clock:      clock,
		metrics:    m,
		seen:       make(map[string]bool),
		optimistic: make(map[string]models.Message),
	}
}

// SetHistory replaces the confirmed list with a freshly fetched history.
// The optimistic buffer is untouched; in-flight sends keep their entries.
func (r *Reconciler) SetHistory(msgs []models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.confirmed = make([]models.Message, 0, len(msgs))
	r.seen = make(map[string]bool, len(msgs))
	for _, m := range msgs {
		if r.seen[m.ID] {
			continue
		}
		r.seen[m.ID] = true
		m.Optimistic = false
		r.confirmed = append(r.confirmed, m)
	}
}

// AppendConfirmed merges one server-confirmed message into the confirmed
// list, dropping duplicates by server id.
func (r *Reconciler) AppendConfirmed(msg models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendConfirmedLocked(msg)
}

func (r *Reconciler) appendConfirmedLocked(msg models.Message) {
	if msg.ID == "" || r.seen[msg.ID] {
		return
	}
	r.seen[msg.ID] = true
	msg.Optimistic = false
	r.confirmed = append(r.confirmed, msg)
}

// RemoveConfirmed drops a confirmed message, e.g. after a deleteMessage
// broadcast.
func (r *Reconciler) RemoveConfirmed(messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.seen[messageID] {
		return
	}
	delete(r.seen, messageID)
	kept := r.confirmed[:0]
	for _, m := range r.confirmed {
		if m.ID != messageID {
			kept = append(kept, m)
		}
	}
	r.confirmed = kept
}

// Messages returns the merged view, always sorted by creation timestamp.
// Sorting on every read makes out-of-order arrival self-correcting.
func (r *Reconciler) Messages() []models.Message {
	r.mu.Lock()
	merged := make([]models.Message, 0, len(r.confirmed)+len(r.optimistic))
	merged = append(merged, r.confirmed...)
	for _, m := range r.optimistic {
		merged = append(merged, m)
	}
	r.mu.Unlock()

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].ID < merged[j].ID
		}
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})
	return merged
}

// Send appends a provisional message immediately, then emits the send and
// waits for the acknowledgment within the send window. On success the
// provisional entry is swapped for the confirmed copy in one step, so no
// duplicate or gap is ever visible. On failure or timeout the provisional
// entry is removed and the error returned; there is no retry.
func (r *Reconciler) Send(ctx context.Context, groupID, text string) (models.Message, error) {
	now := r.clock.Now()
	tempID := models.TempIDPrefix + strconv.FormatInt(now.UnixNano(), 10)
	provisional := models.Message{
		ID:         tempID,
		SenderID:   r.user.ID,
		GroupID:    groupID,
		Text:       text,
		CreatedAt:  now,
		Optimistic: true,
	}

	r.mu.Lock()
	r.optimistic[tempID] = provisional
	r.mu.Unlock()
	r.metrics.OptimisticSends.Inc()

	ev, err := realtime.NewEvent(realtime.EventSendMessage, groupID, realtime.SendMessagePayload{
		TempID:   tempID,
		SenderID: r.user.ID,
		Text:     text,
		SentAt:   now,
	})
	if err != nil {
		r.removeOptimistic(tempID)
		return models.Message{}, err
	}

	data, err := r.sender.Request(ctx, ev, r.sender.Timeouts().Send)
	if err != nil {
		r.removeOptimistic(tempID)
		r.metrics.SendFailures.Inc()
		log.Warn().Str("group_id", groupID).Str("temp_id", tempID).Err(err).Msg("message send failed")
		return models.Message{}, fmt.Errorf("send message: %w", err)
	}

	var confirmed models.Message
	if len(data) > 0 {
		if err := json.Unmarshal(data, &confirmed); err != nil {
			log.Warn().Err(err).Msg("send ack carried malformed message payload")
		}
	}

	// Swap provisional for confirmed under one lock so the view never shows
	// both or neither. The newMessage broadcast for the same id dedups.
	r.mu.Lock()
	delete(r.optimistic, tempID)
	if confirmed.ID != "" {
		r.appendConfirmedLocked(confirmed)
	}
	r.mu.Unlock()

	r.metrics.MessagesReconciled.Inc()
	log.Debug().
		Str("group_id", groupID).
		Str("temp_id", tempID).
		Str("message_id", confirmed.ID).
		Msg("message confirmed")
	return confirmed, nil
}

// Delete emits an acknowledged delete within the delete window. On timeout
// or an explicit error the message stays in the list.
func (r *Reconciler) Delete(ctx context.Context, groupID, messageID string) error {
	ev, err := realtime.NewEvent(realtime.EventDeleteMessage, groupID, realtime.DeleteMessagePayload{
		MessageID: messageID,
	})
	if err != nil {
		return err
	}

	if _, err := r.sender.Request(ctx, ev, r.sender.Timeouts().Delete); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	r.RemoveConfirmed(messageID)
	return nil
}

func (r *Reconciler) removeOptimistic(tempID string) {
	r.mu.Lock()
	delete(r.optimistic, tempID)
	r.mu.Unlock()
}
