package models

import "time"

// Invoice statuses
const (
	InvoiceStatusPaid    = "Paid"
	InvoiceStatusOpen    = "Open"
	InvoiceStatusOverdue = "Overdue"
)

// Invoice kinds
const (
	InvoiceKindSales    = "sales"
	InvoiceKindPurchase = "purchase"
)

// Invoice represents a receivable (sales) or payable (purchase) invoice
type Invoice struct {
	ID          int64      `json:"id"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	IssueDate   *time.Time `json:"issue_date"`
	DueDate     *time.Time `json:"due_date"`
	PaymentDate *time.Time `json:"payment_date"` // set only when paid
	Amount      float64    `json:"amount"`
	Currency    string     `json:"currency"`
}
