package forecast

import (
	"math"
	"time"

	"github.com/avelot/cashflow-service/internal/models"
)

// Default 86/4/14 currency split of baseline volume when no history
// exists. Normalized like measured proportions so that splitting a
// baseline and consolidating it back is volume-preserving.
var defaultProportions = normalizeRaw(CurrencyAmount{EUR: 0.86, USD: 0.04, JPY: 0.14})

// DailyStats holds mean and standard deviation of historical daily
// credit/debit volume in EUR.
type DailyStats struct {
	AvgDailyCredit float64 `json:"avg_daily_credit"`
	AvgDailyDebit  float64 `json:"avg_daily_debit"`
	StdDailyCredit float64 `json:"std_daily_credit"`
	StdDailyDebit  float64 `json:"std_daily_debit"`
}

// ComputeDSO returns the mean delay in days between invoice issue and
// actual payment across paid invoices with both dates present.
func ComputeDSO(invoices []models.Invoice) float64 {
	return meanSettlementDays(invoices)
}

// ComputeDPO is the payable-side counterpart of ComputeDSO.
func ComputeDPO(invoices []models.Invoice) float64 {
	return meanSettlementDays(invoices)
}

func meanSettlementDays(invoices []models.Invoice) float64 {
	totalDays := 0.0
	count := 0
	for _, inv := range invoices {
		if inv.Status != models.InvoiceStatusPaid || inv.IssueDate == nil || inv.PaymentDate == nil {
			continue
		}
		days := dateOnly(*inv.PaymentDate).Sub(dateOnly(*inv.IssueDate)).Hours() / 24
		totalDays += days
		count++
	}
	if count == 0 {
		return 0.0
	}
	return totalDays / float64(count)
}

// ComputeDailyStats aggregates transactions into daily EUR totals per
// direction and returns their mean and sample standard deviation.
func ComputeDailyStats(transactions []models.Transaction, rates RateTable) DailyStats {
	credits := dailyTotals(transactions, models.TransactionTypeCredit, rates)
	debits := dailyTotals(transactions, models.TransactionTypeDebit, rates)
	return DailyStats{
		AvgDailyCredit: mean(credits),
		AvgDailyDebit:  mean(debits),
		StdDailyCredit: stddev(credits),
		StdDailyDebit:  stddev(debits),
	}
}

// ComputeWeeklyPatterns returns the average daily EUR credit and debit
// volume per weekday name ("Monday" .. "Sunday"). Weekdays never observed
// in the data are absent from the maps.
func ComputeWeeklyPatterns(transactions []models.Transaction, rates RateTable) (map[string]float64, map[string]float64) {
	creditPattern := weekdayAverages(transactions, models.TransactionTypeCredit, rates)
	debitPattern := weekdayAverages(transactions, models.TransactionTypeDebit, rates)
	return creditPattern, debitPattern
}

// ComputeCurrencyProportions measures the historical share of credit and
// debit EUR volume per currency over transactions strictly before the
// start date. With no usable history both sides fall back to the default
// 86/4/14 split. The proportions are frozen at run start for determinism.
func ComputeCurrencyProportions(transactions []models.Transaction, startDate time.Time, rates RateTable) (credit, debit CurrencyAmount) {
	start := dateOnly(startDate)
	var creditVol, debitVol CurrencyAmount
	for _, tx := range transactions {
		if !dateOnly(tx.Date).Before(start) {
			continue
		}
		eur := txAmountEUR(tx, rates)
		var vol *CurrencyAmount
		switch tx.Type {
		case models.TransactionTypeCredit:
			vol = &creditVol
		case models.TransactionTypeDebit:
			vol = &debitVol
		default:
			continue
		}
		switch tx.Currency {
		case "USD":
			vol.USD += eur
		case "JPY":
			vol.JPY += eur
		default:
			vol.EUR += eur
		}
	}
	return normalizeProportions(creditVol), normalizeProportions(debitVol)
}

func normalizeProportions(vol CurrencyAmount) CurrencyAmount {
	if vol.EUR+vol.USD+vol.JPY <= 0 {
		return defaultProportions
	}
	return normalizeRaw(vol)
}

func normalizeRaw(vol CurrencyAmount) CurrencyAmount {
	total := vol.EUR + vol.USD + vol.JPY
	return CurrencyAmount{EUR: vol.EUR / total, USD: vol.USD / total, JPY: vol.JPY / total}
}

func dailyTotals(transactions []models.Transaction, txType string, rates RateTable) []float64 {
	byDay := map[time.Time]float64{}
	for _, tx := range transactions {
		if tx.Type != txType {
			continue
		}
		byDay[dateOnly(tx.Date)] += txAmountEUR(tx, rates)
	}
	totals := make([]float64, 0, len(byDay))
	for _, v := range byDay {
		totals = append(totals, v)
	}
	return totals
}

func weekdayAverages(transactions []models.Transaction, txType string, rates RateTable) map[string]float64 {
	byDay := map[time.Time]float64{}
	for _, tx := range transactions {
		if tx.Type != txType {
			continue
		}
		byDay[dateOnly(tx.Date)] += txAmountEUR(tx, rates)
	}
	sums := map[string]float64{}
	counts := map[string]int{}
	for day, total := range byDay {
		name := day.Weekday().String()
		sums[name] += total
		counts[name]++
	}
	pattern := make(map[string]float64, len(sums))
	for name, sum := range sums {
		pattern[name] = sum / float64(counts[name])
	}
	return pattern
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev is the sample standard deviation (n-1 divisor)
func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0.0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)-1))
}
