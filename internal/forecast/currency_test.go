package forecast

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertToEUR(t *testing.T) {
	rates := RateTable{"EUR": 1.0, "USD": 0.92, "JPY": 0.0065}

	assert.Equal(t, 100.0, ConvertToEUR(100, "EUR", rates))
	assert.Equal(t, 100.0, ConvertToEUR(100, "", rates))
	assert.InDelta(t, 92.0, ConvertToEUR(100, "USD", rates), 1e-9)
	assert.InDelta(t, 0.65, ConvertToEUR(100, "JPY", rates), 1e-9)
}

func TestConvertToEUR_MissingAmount(t *testing.T) {
	rates := DefaultRateTable()
	assert.Equal(t, 0.0, ConvertToEUR(math.NaN(), "USD", rates))
	assert.Equal(t, 0.0, ConvertToEUR(0, "USD", rates))
}

func TestConvertToEUR_InsaneRateFallsBack(t *testing.T) {
	for _, rate := range []float64{0, -1, 1000, 5000, math.NaN(), math.Inf(1)} {
		rates := RateTable{"USD": rate}
		assert.InDelta(t, 92.0, ConvertToEUR(100, "USD", rates), 1e-9, "rate %v", rate)
	}
}

func TestConvertToEUR_UnknownCurrency(t *testing.T) {
	rates := DefaultRateTable()
	// Unrecognized currency is treated as already EUR
	assert.Equal(t, 100.0, ConvertToEUR(100, "GBP", rates))
}

func TestConvertToEUR_MissingTableUsesFallback(t *testing.T) {
	assert.InDelta(t, 92.0, ConvertToEUR(100, "USD", RateTable{}), 1e-9)
	assert.InDelta(t, 0.65, ConvertToEUR(100, "JPY", RateTable{}), 1e-9)
}

func TestConvertToEUR_EURIdempotent(t *testing.T) {
	rates := DefaultRateTable()
	for _, x := range []float64{-12345.67, 0, 0.01, 99999.99} {
		once := ConvertToEUR(x, "EUR", rates)
		assert.Equal(t, x, ConvertToEUR(once, "EUR", rates))
	}
}

func TestRateTableRate(t *testing.T) {
	rates := RateTable{"USD": 0.95}
	assert.Equal(t, 1.0, rates.Rate("EUR"))
	assert.Equal(t, 0.95, rates.Rate("USD"))
	assert.Equal(t, fallbackJPYRate, rates.Rate("JPY"))
	assert.Equal(t, 1.0, rates.Rate("CHF"))
}

func TestCurrencyAmountConsolidateEUR(t *testing.T) {
	rates := RateTable{"EUR": 1.0, "USD": 0.92, "JPY": 0.0065}
	c := CurrencyAmount{EUR: 100, USD: 50, JPY: 10000}
	assert.InDelta(t, 100+46+65, c.ConsolidateEUR(rates), 1e-9)
}

func TestCurrencyAmountArithmetic(t *testing.T) {
	a := CurrencyAmount{EUR: 1, USD: 2, JPY: 3}
	b := CurrencyAmount{EUR: 10, USD: 20, JPY: 30}
	assert.Equal(t, CurrencyAmount{EUR: 11, USD: 22, JPY: 33}, a.Add(b))
	assert.Equal(t, CurrencyAmount{EUR: 9, USD: 18, JPY: 27}, b.Sub(a))
	assert.Equal(t, CurrencyAmount{EUR: 2, USD: 4, JPY: 6}, a.Scale(2))
	assert.Equal(t, CurrencyAmount{EUR: 1.23, USD: 4.57, JPY: 0}, CurrencyAmount{EUR: 1.234, USD: 4.567, JPY: 0.001}.Round())
}
