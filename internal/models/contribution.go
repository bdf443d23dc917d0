package models

import "time"

// Contribution represents one member's payment for one cycle. The existence
// of a contribution row for (user, cycle) is the backend's "paid" fact; the
// client derives payment status from it rather than a separate flag.
type Contribution struct {
	UserID  string    `json:"userId"`
	GroupID string    `json:"groupId,omitempty"`
	Cycle   int       `json:"cycle"`
	Amount  float64   `json:"amount"`
	PaidAt  time.Time `json:"paidAt"`
}
