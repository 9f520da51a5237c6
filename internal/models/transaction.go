package models

import "time"

// Transaction directions
const (
	TransactionTypeCredit = "credit"
	TransactionTypeDebit  = "debit"
)

// Transaction represents a historical bank movement
type Transaction struct {
	ID        int64     `json:"id"`
	Date      time.Time `json:"date"`
	Type      string    `json:"type"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	Category  string    `json:"category"`
	AmountEUR float64   `json:"amount_eur"`
}
