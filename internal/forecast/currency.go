package forecast

import "math"

// RateTable maps a currency code to its EUR-per-unit multiplier.
// It always contains EUR -> 1.0.
type RateTable map[string]float64

// Fallback rates used when the live table is missing or corrupted (2024 averages)
const (
	fallbackUSDRate = 0.92
	fallbackJPYRate = 0.0065
)

// A rate at or above this value is considered corrupted upstream data
const maxSaneRate = 1000.0

// DefaultRateTable returns the hardcoded fallback rate table.
func DefaultRateTable() RateTable {
	return RateTable{
		"EUR": 1.0,
		"USD": fallbackUSDRate,
		"JPY": fallbackJPYRate,
	}
}

// ConvertToEUR converts an amount in the given currency to its EUR
// equivalent. Missing amounts coerce to zero and unknown or out-of-range
// rates fall back to the default table, so a corrupted upstream rate feed
// can never poison a cumulative balance.
func ConvertToEUR(amount float64, currency string, rates RateTable) float64 {
	if math.IsNaN(amount) {
		return 0.0
	}
	if currency == "" || currency == "EUR" {
		return amount
	}
	if rate, ok := rates[currency]; ok && saneRate(rate) {
		return amount * rate
	}
	switch currency {
	case "USD":
		return amount * fallbackUSDRate
	case "JPY":
		return amount * fallbackJPYRate
	}
	// Unrecognized currency: treat as already EUR
	return amount
}

// Rate returns the EUR-per-unit rate for a currency, substituting the
// fallback table when the stored rate is absent or insane.
func (r RateTable) Rate(currency string) float64 {
	if currency == "" || currency == "EUR" {
		return 1.0
	}
	if rate, ok := r[currency]; ok && saneRate(rate) {
		return rate
	}
	switch currency {
	case "USD":
		return fallbackUSDRate
	case "JPY":
		return fallbackJPYRate
	}
	return 1.0
}

func saneRate(rate float64) bool {
	return !math.IsNaN(rate) && !math.IsInf(rate, 0) && rate > 0 && rate < maxSaneRate
}

// CurrencyAmount holds one value per tracked currency. Depending on context
// the components are either original currency units or EUR equivalents.
type CurrencyAmount struct {
	EUR float64 `json:"eur"`
	USD float64 `json:"usd"`
	JPY float64 `json:"jpy"`
}

// ConsolidateEUR collapses per-currency components (in original units) into
// a single EUR figure using the given rate table.
func (c CurrencyAmount) ConsolidateEUR(rates RateTable) float64 {
	return c.EUR + c.USD*rates.Rate("USD") + c.JPY*rates.Rate("JPY")
}

// Add returns the component-wise sum.
func (c CurrencyAmount) Add(o CurrencyAmount) CurrencyAmount {
	return CurrencyAmount{EUR: c.EUR + o.EUR, USD: c.USD + o.USD, JPY: c.JPY + o.JPY}
}

// Sub returns the component-wise difference.
func (c CurrencyAmount) Sub(o CurrencyAmount) CurrencyAmount {
	return CurrencyAmount{EUR: c.EUR - o.EUR, USD: c.USD - o.USD, JPY: c.JPY - o.JPY}
}

// Scale returns the amount with every component multiplied by f.
func (c CurrencyAmount) Scale(f float64) CurrencyAmount {
	return CurrencyAmount{EUR: c.EUR * f, USD: c.USD * f, JPY: c.JPY * f}
}

// Round returns the amount with every component rounded to 2 decimals.
func (c CurrencyAmount) Round() CurrencyAmount {
	return CurrencyAmount{EUR: round2(c.EUR), USD: round2(c.USD), JPY: round2(c.JPY)}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
