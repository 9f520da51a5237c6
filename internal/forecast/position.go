package forecast

import (
	"time"

	"github.com/avelot/cashflow-service/internal/models"
)

// Categories whose historical outflows are assumed to repeat monthly
var recurringCategories = map[string]bool{
	"Loan Interest": true,
	"Payroll":       true,
	"Bank Fee":      true,
}

const loanInterestCategory = "Loan Interest"

// InitialBalance is the opening cash position at forecast start.
// ByCurrency holds original currency units, ByCurrencyEUR the EUR
// equivalents of the same sums.
type InitialBalance struct {
	ByCurrency    CurrencyAmount `json:"by_currency"`
	ByCurrencyEUR CurrencyAmount `json:"by_currency_eur"`
	TotalEUR      float64        `json:"total_eur"`
}

// ComputeInitialBalance sums all transactions strictly before the start
// date, per currency. The start date itself belongs to the forecast, not
// to history.
func ComputeInitialBalance(transactions []models.Transaction, startDate time.Time, rates RateTable) InitialBalance {
	var bal InitialBalance
	start := dateOnly(startDate)
	for _, tx := range transactions {
		if !dateOnly(tx.Date).Before(start) {
			continue
		}
		eur := txAmountEUR(tx, rates)
		switch tx.Currency {
		case "USD":
			bal.ByCurrency.USD += tx.Amount
			bal.ByCurrencyEUR.USD += eur
		case "JPY":
			bal.ByCurrency.JPY += tx.Amount
			bal.ByCurrencyEUR.JPY += eur
		default:
			bal.ByCurrency.EUR += tx.Amount
			bal.ByCurrencyEUR.EUR += eur
		}
	}
	bal.TotalEUR = bal.ByCurrencyEUR.EUR + bal.ByCurrencyEUR.USD + bal.ByCurrencyEUR.JPY
	return bal
}

// ComputeAverageMonthlyRecurring derives the expected monthly recurring
// outflow (payroll, bank fees, loan interest) from history. The contractual
// debt interest must always be fully represented: if the loan-interest
// average found in the data is below half the contractual payment, the
// shortfall is added, and the final total is floored at the average of the
// other recurring categories plus the full contractual payment.
func ComputeAverageMonthlyRecurring(transactions []models.Transaction, rates RateTable, debtMonthlyInterest float64) float64 {
	monthly := map[string]float64{}
	otherMonthly := map[string]float64{}
	loanInterestTotal := 0.0
	found := false

	for _, tx := range transactions {
		if !recurringCategories[tx.Category] {
			continue
		}
		found = true
		eur := txAmountEUR(tx, rates)
		month := tx.Date.Format("2006-01")
		monthly[month] += eur
		if tx.Category == loanInterestCategory {
			loanInterestTotal += eur
		} else {
			otherMonthly[month] += eur
		}
	}

	if !found {
		return debtMonthlyInterest
	}

	avgMonthly := meanOfMap(monthly)

	numMonths := len(monthly)
	avgLoanInterest := 0.0
	if numMonths > 0 {
		avgLoanInterest = loanInterestTotal / float64(numMonths)
	}

	// History may embed only part of the contractual interest; top up when
	// less than half is present (the 50% threshold avoids double counting).
	if avgLoanInterest < debtMonthlyInterest*0.5 {
		avgMonthly += debtMonthlyInterest - avgLoanInterest
	}

	// Final guarantee: the recurring assumption is never below the other
	// categories' average plus the full contractual interest.
	avgOther := meanOfMap(otherMonthly)
	if expected := avgOther + debtMonthlyInterest; avgMonthly < expected {
		avgMonthly = expected
	}

	return avgMonthly
}

func meanOfMap(m map[string]float64) float64 {
	if len(m) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range m {
		sum += v
	}
	return sum / float64(len(m))
}

// txAmountEUR prefers the precomputed EUR equivalent when present.
func txAmountEUR(tx models.Transaction, rates RateTable) float64 {
	if tx.AmountEUR != 0 {
		return tx.AmountEUR
	}
	return ConvertToEUR(tx.Amount, tx.Currency, rates)
}
