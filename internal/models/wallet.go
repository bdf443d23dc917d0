package models

import "time"

// Wallet represents a user's wallet balance as reported by the backend.
type Wallet struct {
	UserID    string    `json:"userId"`
	Balance   float64   `json:"balance"`
	Currency  string    `json:"currency"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BankAccount represents a linked payout destination.
type BankAccount struct {
	ID            string `json:"id"`
	UserID        string `json:"userId"`
	BankName      string `json:"bankName"`
	AccountNumber string `json:"accountNumber"`
	AccountName   string `json:"accountName"`
}
