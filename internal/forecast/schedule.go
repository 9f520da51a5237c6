package forecast

import (
	"math"
	"time"

	"github.com/avelot/cashflow-service/internal/models"
)

// ScheduledItem is an open invoice projected onto its expected settlement
// date. The original amount and currency are kept for per-currency
// attribution in the daily loop; AmountEUR is the converted total.
type ScheduledItem struct {
	PaymentDate time.Time `json:"payment_date"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	AmountEUR   float64   `json:"amount_eur"`
}

// ScheduleOpenItems projects open and overdue invoices onto expected
// settlement dates by adding the mean collection/payment delay (DSO or DPO)
// to each due date. Invoices without a due date cannot be dated and are
// excluded. A negative or zero delay is valid and means payment on or
// before the due date.
func ScheduleOpenItems(invoices []models.Invoice, meanDelayDays float64, rates RateTable) []ScheduledItem {
	delay := 0
	if !math.IsNaN(meanDelayDays) {
		delay = int(math.Round(meanDelayDays))
	}

	items := make([]ScheduledItem, 0, len(invoices))
	for _, inv := range invoices {
		if inv.Status != models.InvoiceStatusOpen && inv.Status != models.InvoiceStatusOverdue {
			continue
		}
		if inv.DueDate == nil {
			continue
		}
		currency := inv.Currency
		if currency == "" {
			currency = "EUR"
		}
		expected := dateOnly(inv.DueDate.AddDate(0, 0, delay))
		items = append(items, ScheduledItem{
			PaymentDate: expected,
			Amount:      inv.Amount,
			Currency:    currency,
			AmountEUR:   ConvertToEUR(inv.Amount, currency, rates),
		})
	}
	return items
}

// dateOnly truncates a timestamp to a UTC calendar date.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
