package models

import "time"

// SwapStatus represents the approval state of a payout-position swap.
type SwapStatus string

const (
	SwapStatusPending  SwapStatus = "pending"
	SwapStatusApproved SwapStatus = "approved"
	SwapStatusRejected SwapStatus = "rejected"
)

// SwapRequest represents a member-initiated request to exchange payout-order
// positions with another member. Approval is resolved server-side; the
// client only creates requests and displays their state.
type SwapRequest struct {
	ID          string     `json:"id"`
	GroupID     string     `json:"groupId"`
	RequesterID string     `json:"requesterId"`
	TargetID    string     `json:"targetId"`
	Status      SwapStatus `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
}
