package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TimeoutPolicy is the single place the acknowledgment windows live.
// Connection establishment and deletes get the short window; message sends
// and member-status updates get the long one.
type TimeoutPolicy struct {
	Connect      time.Duration
	Send         time.Duration
	Delete       time.Duration
	StatusUpdate time.Duration
}

// DefaultTimeoutPolicy returns the production windows.
func DefaultTimeoutPolicy() TimeoutPolicy {
	return TimeoutPolicy{
		Connect:      5 * time.Second,
		Send:         10 * time.Second,
		Delete:       5 * time.Second,
		StatusUpdate: 10 * time.Second,
	}
}

// ackResult carries the outcome of one acknowledged request.
type ackResult struct {
	data json.RawMessage
	err  error
}

// Request emits an event with a correlation id and waits for the matching
// ack. The outcome is exactly one of: the ack payload, a server-reported
// error, ErrAckTimeout after the window, or a context/teardown error. An
// ack that arrives after the window is dropped; the caller was already told
// the request failed.
func (s *Socket) Request(ctx context.Context, ev Event, timeout time.Duration) (json.RawMessage, error) {
	s.mu.Lock()
	c := s.cur
	if c == nil {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	ackID := uuid.New().String()
	ev.AckID = ackID
	ch := make(chan ackResult, 1)
	s.pending[ackID] = ch
	s.mu.Unlock()

	if err := s.enqueue(ev); err != nil {
		s.dropPending(ackID)
		return nil, err
	}

	timer := s.clock.NewTimer(timeout)
	defer stopAndDrainTimer(timer)

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return res.data, nil
	case <-timer.Chan():
		s.dropPending(ackID)
		s.metrics.AckTimeouts.Inc()
		log.Warn().
			Str("event", string(ev.Type)).
			Str("group_id", ev.GroupID).
			Dur("timeout", timeout).
			Msg("acknowledgment window elapsed")
		return nil, ErrAckTimeout
	case <-c.closedCh:
		s.dropPending(ackID)
		return nil, ErrSocketClosed
	case <-ctx.Done():
		s.dropPending(ackID)
		return nil, ctx.Err()
	}
}

// Timeouts returns the socket's timeout policy.
func (s *Socket) Timeouts() TimeoutPolicy {
	return s.cfg.Timeouts
}

func (s *Socket) dropPending(ackID string) {
	s.mu.Lock()
	delete(s.pending, ackID)
	s.mu.Unlock()
}
