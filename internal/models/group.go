package models

import "time"

// GroupStatus represents the lifecycle state of a savings group.
type GroupStatus string

const (
	GroupStatusActive    GroupStatus = "active"
	GroupStatusPaused    GroupStatus = "paused"
	GroupStatusCompleted GroupStatus = "completed"
)

// Frequency represents the contribution schedule of a group.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// MemberRole represents a member's role within a group. Exactly one member
// per group carries RoleAdmin, and it must match Group.AdminID.
type MemberRole string

const (
	RoleAdmin     MemberRole = "admin"
	RoleModerator MemberRole = "moderator"
	RoleMember    MemberRole = "member"
)

// MemberStatus represents a member's approval state.
type MemberStatus string

const (
	MemberStatusPending MemberStatus = "pending"
	MemberStatusActive  MemberStatus = "active"
)

// Group represents a rotating savings circle as last fetched from the
// backend. The client only ever holds a cached, possibly-stale copy; all
// mutations happen server-side.
//
// Invariants (owned by the server, relied on by the client):
//   - PayoutOrder contains each active member at most once.
//   - NextRecipientID names a member of Members with status "active".
type Group struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	Description        string         `json:"description,omitempty"`
	Image              string         `json:"image,omitempty"`
	AdminID            string         `json:"adminId"`
	Members            []Member       `json:"members"`
	SavingsAmount      float64        `json:"savingsAmount"`
	Frequency          Frequency      `json:"frequency"`
	CurrentCycle       int            `json:"currentCycle"`
	WalletBalance      float64        `json:"walletBalance"`
	TotalContributions float64        `json:"totalContributions"`
	PayoutOrder        []string       `json:"payoutOrder"`
	NextRecipientID    string         `json:"nextRecipient"`
	NextPayoutDate     *time.Time     `json:"nextPayoutDate,omitempty"`
	Status             GroupStatus    `json:"status"`
	Contributions      []Contribution `json:"contributions,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// Member represents a user's membership in a group.
type Member struct {
	UserID   string       `json:"userId"`
	Role     MemberRole   `json:"role"`
	Status   MemberStatus `json:"status"`
	JoinedAt time.Time    `json:"joinedAt"`
	IsActive bool         `json:"isActive"`
}

// ActiveMemberCount returns the number of members with status "active".
func (g *Group) ActiveMemberCount() int {
	count := 0
	for _, m := range g.Members {
		if m.Status == MemberStatusActive {
			count++
		}
	}
	return count
}

// MemberByUserID returns the membership entry for a user, or nil when the
// user is not a member of the group.
func (g *Group) MemberByUserID(userID string) *Member {
	for i := range g.Members {
		if g.Members[i].UserID == userID {
			return &g.Members[i]
		}
	}
	return nil
}
