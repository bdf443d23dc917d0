package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/metrics"
	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/models"
	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/realtime"
)

// GroupFetcher is the slice of the REST API the cache uses for full
// snapshot fetches.
type GroupFetcher interface {
	Group(ctx context.Context, groupID string) (*models.Group, error)
}

// Snapshot is the client's cached copy of one group's server-side state at
// last fetch time, plus two derived fields recomputed on every full fetch:
// NextPayoutAmount (savings amount times active member count) and IsAdmin
// (current user matches the group's admin).
//
// Incremental patches never touch the derived fields. A patch that could
// invalidate them sets DerivedStale instead, so callers refresh rather than
// silently serve outdated payout totals.
type Snapshot struct {
	Group            models.Group
	Messages         []models.Message
	NextPayoutAmount float64
	IsAdmin          bool
	DerivedStale     bool
	FetchedAt        time.Time
}

// SnapshotCache holds the latest known state per group and applies live
// patches to it.
type SnapshotCache struct {
	api     GroupFetcher
	sender  Transport
	user    models.User
	clock   clockwork.Clock
	metrics *metrics.Metrics

	mu    sync.Mutex
	snaps map[string]*Snapshot
}

// NewSnapshotCache creates an empty cache for the given user.
func NewSnapshotCache(api GroupFetcher, sender Transport, user models.User, clock clockwork.Clock, m *metrics.Metrics) *SnapshotCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &SnapshotCache{
		api:     api,
		sender:  sender,
		user:    user,
		clock:   clock,
		metrics: m,
		snaps:   make(map[string]*Snapshot),
	}
}

// Refresh fetches the group and wholesale-replaces the cached snapshot,
// recomputing the derived fields. The cached message list survives the
// refresh; history is owned by SetMessages.
func (c *SnapshotCache) Refresh(ctx context.Context, groupID string) (Snapshot, error) {
	group, err := c.api.Group(ctx, groupID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch group snapshot: %w", err)
	}

	snap := &Snapshot{
		Group:            *group,
		NextPayoutAmount: group.SavingsAmount * float64(group.ActiveMemberCount()),
		IsAdmin:          group.AdminID == c.user.ID,
		FetchedAt:        c.clock.Now(),
	}

	c.mu.Lock()
	if prev, ok := c.snaps[groupID]; ok {
		snap.Messages = prev.Messages
	}
	c.snaps[groupID] = snap
	out := *snap
	c.mu.Unlock()

	c.metrics.SnapshotRefreshes.Inc()
	log.Debug().
		Str("group_id", groupID).
		Float64("next_payout_amount", snap.NextPayoutAmount).
		Bool("is_admin", snap.IsAdmin).
		Msg("group snapshot refreshed")
	return out, nil
}

// Get returns a copy of the cached snapshot for a group.
func (c *SnapshotCache) Get(groupID string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, ok := c.snaps[groupID]
	if !ok {
		return Snapshot{}, false
	}
	return *snap, true
}

// SetMessages replaces the cached message list for a group, e.g. after a
// history fetch.
func (c *SnapshotCache) SetMessages(groupID string, msgs []models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, ok := c.snaps[groupID]
	if !ok {
		snap = &Snapshot{}
		snap.Group.ID = groupID
		c.snaps[groupID] = snap
	}
	snap.Messages = msgs
}

// ApplyIncomingMessage prepends a confirmed message as it streams in. No
// dedup against optimistic entries happens here; that is the reconciler's
// job.
func (c *SnapshotCache) ApplyIncomingMessage(msg models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, ok := c.snaps[msg.GroupID]
	if !ok {
		return
	}
	snap.Messages = append([]models.Message{msg}, snap.Messages...)
}

// UpdateMemberStatus applies the status change locally first, then runs the
// acknowledged round trip within the status-update window. The optimistic
// mutation is paired with its captured previous value; any failure rolls the
// member back instead of leaving the patch half-applied.
func (c *SnapshotCache) UpdateMemberStatus(ctx context.Context, groupID, memberID string, status models.MemberStatus) error {
	c.mu.Lock()
	snap, ok := c.snaps[groupID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("update member status: no snapshot for group %s", groupID)
	}
	member := snap.Group.MemberByUserID(memberID)
	if member == nil {
		c.mu.Unlock()
		return fmt.Errorf("update member status: %s is not a member of %s", memberID, groupID)
	}

	prevStatus := member.Status
	prevActive := member.IsActive
	prevStale := snap.DerivedStale

	member.Status = status
	member.IsActive = status == models.MemberStatusActive
	snap.DerivedStale = true
	c.mu.Unlock()

	ev, err := realtime.NewEvent(realtime.EventUpdateMemberStatus, groupID, realtime.UpdateMemberStatusPayload{
		MemberID: memberID,
		Status:   string(status),
	})
	if err != nil {
		c.rollbackMemberStatus(groupID, memberID, prevStatus, prevActive, prevStale)
		return err
	}

	if _, err := c.sender.Request(ctx, ev, c.sender.Timeouts().StatusUpdate); err != nil {
		c.rollbackMemberStatus(groupID, memberID, prevStatus, prevActive, prevStale)
		log.Warn().
			Str("group_id", groupID).
			Str("member_id", memberID).
			Err(err).
			Msg("member status update failed, rolled back")
		return fmt.Errorf("update member status: %w", err)
	}
	return nil
}

// ApplyMemberStatusEvent applies a server-pushed status patch from another
// client. Derived fields are left alone and flagged stale.
func (c *SnapshotCache) ApplyMemberStatusEvent(groupID, memberID string, status models.MemberStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, ok := c.snaps[groupID]
	if !ok {
		return
	}
	member := snap.Group.MemberByUserID(memberID)
	if member == nil {
		return
	}
	member.Status = status
	member.IsActive = status == models.MemberStatusActive
	snap.DerivedStale = true
}

func (c *SnapshotCache) rollbackMemberStatus(groupID, memberID string, status models.MemberStatus, active, stale bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, ok := c.snaps[groupID]
	if !ok {
		return
	}
	member := snap.Group.MemberByUserID(memberID)
	if member == nil {
		return
	}
	member.Status = status
	member.IsActive = active
	snap.DerivedStale = stale
}
