package session

// Payout derivations are pure functions of a snapshot: no network, no
// mutation, identical output for identical input.

// PositionOf returns the 1-based rank of a user within the payout rotation,
// or 0 when the user is not in the payout order. Absence is not an error;
// pending members simply have no position yet.
func (s Snapshot) PositionOf(userID string) int {
	for i, id := range s.Group.PayoutOrder {
		if id == userID {
			return i + 1
		}
	}
	return 0
}

// IsNextRecipient reports whether the user receives the next payout.
func (s Snapshot) IsNextRecipient(userID string) bool {
	return s.Group.NextRecipientID != "" && s.Group.NextRecipientID == userID
}

// PaymentStatus reports whether the user has paid for the given cycle and
// the amount of that contribution. A user with no contribution row for the
// cycle is unpaid with a zero amount.
func (s Snapshot) PaymentStatus(userID string, cycle int) (paid bool, amount float64) {
	for _, c := range s.Group.Contributions {
		if c.UserID == userID && c.Cycle == cycle {
			return true, c.Amount
		}
	}
	return false, 0
}
