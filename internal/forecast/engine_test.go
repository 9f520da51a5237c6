package forecast

import (
	"math"
	"testing"
	"time"

	"github.com/avelot/cashflow-service/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

// A representative input snapshot with history and open items in all
// three currencies
func sampleEngine(policy DebtPolicy) *Engine {
	bank := []models.Transaction{
		tx(day(2024, 11, 4), "credit", 12000, "EUR", "Sales"),
		tx(day(2024, 11, 5), "credit", 3000, "USD", "Sales"),
		tx(day(2024, 11, 6), "credit", 400000, "JPY", "Sales"),
		tx(day(2024, 11, 7), "debit", 8000, "EUR", "Supplier"),
		tx(day(2024, 11, 15), "debit", 50000, "EUR", "Payroll"),
		tx(day(2024, 11, 20), "debit", 30000, "EUR", "Loan Interest"),
		tx(day(2024, 12, 2), "credit", 15000, "EUR", "Sales"),
		tx(day(2024, 12, 16), "debit", 50000, "EUR", "Payroll"),
		tx(day(2024, 12, 20), "debit", 30000, "EUR", "Loan Interest"),
	}
	sales := []models.Invoice{
		{Status: models.InvoiceStatusOpen, DueDate: datePtr(2025, 1, 10), Amount: 20000, Currency: "EUR"},
		{Status: models.InvoiceStatusOverdue, DueDate: datePtr(2024, 12, 28), Amount: 5000, Currency: "USD"},
		{Status: models.InvoiceStatusOpen, DueDate: datePtr(2025, 2, 1), Amount: 900000, Currency: "JPY"},
	}
	purchase := []models.Invoice{
		{Status: models.InvoiceStatusOpen, DueDate: datePtr(2025, 1, 15), Amount: 12000, Currency: "EUR"},
		{Status: models.InvoiceStatusOverdue, DueDate: datePtr(2025, 1, 3), Amount: 3000, Currency: "USD"},
	}
	return NewEngine(bank, sales, purchase, DefaultRateTable(), policy, quietLogger())
}

func sampleParams() Params {
	return Params{
		StartDate:              day(2025, 1, 1),
		MaxForecastDate:        day(2025, 3, 31),
		DSOMean:                12.4,
		DPOMean:                8.0,
		AvgDailyCredit:         10000,
		AvgDailyDebit:          9000,
		StdDailyCredit:         2500,
		StdDailyDebit:          2000,
		WeeklyCreditPattern:    map[string]float64{"Monday": 14000, "Friday": 8000},
		WeeklyDebitPattern:     map[string]float64{"Wednesday": 11000},
		InflationRate:          0.03,
		VolumeVolatilityCredit: 0.5,
		VolumeVolatilityDebit:  0.4,
	}
}

func TestEngineRun_Determinism(t *testing.T) {
	policy := DebtPolicy{Principal: 20_000_000, AnnualRate: 0.047, MonthlyInterest: 78333.33}

	first := sampleEngine(policy).Run(sampleParams())
	second := sampleEngine(policy).Run(sampleParams())

	require.Equal(t, first, second)
}

func TestEngineRun_SingleFixedDay(t *testing.T) {
	engine := NewEngine(nil, nil, nil, DefaultRateTable(), DebtPolicy{}, quietLogger())
	result := engine.Run(Params{
		// Not the 1st of a month, so no recurring payment lands on it
		StartDate:       day(2025, 1, 2),
		MaxForecastDate: day(2025, 1, 2),
		AvgDailyCredit:  1000,
		AvgDailyDebit:   800,
	})

	require.Equal(t, 1, result.DaysCount)
	rec := result.Records[0]
	assert.Equal(t, "Thursday", rec.Weekday)
	assert.Equal(t, 1000.00, rec.InflowEUR)
	assert.Equal(t, 800.00, rec.OutflowEUR)
	assert.Equal(t, 200.00, rec.NetFlowEUR)
	assert.Equal(t, 200.00, rec.CumulativeEUR)
	assert.Equal(t, RiskSafe, rec.RiskLevel)
	assert.False(t, result.Reconciled)
}

func TestEngineRun_BalanceConservation(t *testing.T) {
	policy := DebtPolicy{Principal: 20_000_000, MonthlyInterest: 78333.33}
	result := sampleEngine(policy).Run(sampleParams())

	sumNet := 0.0
	for _, rec := range result.Records {
		sumNet += rec.NetFlowEUR
	}
	assert.InDelta(t, result.FinalBalance-result.InitialBalance, sumNet, consistencyTolerance)
}

func TestEngineRun_CurrencyConsistency(t *testing.T) {
	policy := DebtPolicy{Principal: 20_000_000, MonthlyInterest: 78333.33}
	rates := DefaultRateTable()
	result := sampleEngine(policy).Run(sampleParams())

	for _, rec := range result.Records {
		// 0.02 allows for the 2-decimal presentation rounding of each leg
		assert.InDelta(t, rec.NetFlowEUR, rec.NetFlow.ConsolidateEUR(rates), 0.02, "on %s", rec.Date)
		assert.InDelta(t, rec.NetFlowEUR, rec.InflowEUR-rec.OutflowEUR, 0.02, "on %s", rec.Date)
	}
}

func TestEngineRun_RiskZonePartition(t *testing.T) {
	policy := DebtPolicy{Principal: 20_000_000, MonthlyInterest: 78333.33}
	result := sampleEngine(policy).Run(sampleParams())

	zones := result.RiskZones
	assert.Equal(t, result.DaysCount, zones.Safe+zones.Warning+zones.Critical)

	var tally RiskZones
	for _, rec := range result.Records {
		switch rec.RiskLevel {
		case RiskSafe:
			tally.Safe++
		case RiskWarning:
			tally.Warning++
		case RiskCritical:
			tally.Critical++
		default:
			t.Fatalf("unknown risk level %q on %s", rec.RiskLevel, rec.Date)
		}
	}
	assert.Equal(t, zones, tally)
	// Negative days are exactly the Warning and Critical ones
	assert.Len(t, result.NegativeDays, zones.Warning+zones.Critical)
}

func TestEngineRun_MonotonicDatesAndHorizonCap(t *testing.T) {
	policy := DebtPolicy{Principal: 20_000_000, MonthlyInterest: 78333.33}
	params := sampleParams()
	result := sampleEngine(policy).Run(params)

	// 2025-01-01 .. 2025-03-31 is 90 days, exactly the cap
	assert.Equal(t, 90, result.DaysCount)
	for i, rec := range result.Records {
		assert.Equal(t, params.StartDate.AddDate(0, 0, i), rec.Date)
		assert.False(t, rec.Date.After(params.MaxForecastDate))
	}
}

func TestEngineRun_ShortHorizon(t *testing.T) {
	params := sampleParams()
	params.StartDate = day(2025, 3, 25)
	result := sampleEngine(DebtPolicy{}).Run(params)
	assert.Equal(t, 7, result.DaysCount)
	assert.Equal(t, day(2025, 3, 31), result.EndDate)
}

func TestEngineRun_EmptyHorizon(t *testing.T) {
	params := sampleParams()
	params.StartDate = day(2025, 4, 1) // one day past the ceiling
	policy := DebtPolicy{Principal: 20_000_000, MonthlyInterest: 78333.33}
	result := sampleEngine(policy).Run(params)

	assert.Equal(t, 0, result.DaysCount)
	assert.Empty(t, result.Records)
	assert.Equal(t, result.InitialBalance, result.FinalBalance)
	assert.Equal(t, params.StartDate, result.WorstDay.Date)
	assert.InDelta(t, result.InitialBalance-policy.Principal, result.WorstDay.NetOfDebtEUR, 1e-9)
	assert.Empty(t, result.NegativeDays)
}

func TestEngineRun_NoOpenInvoices(t *testing.T) {
	bank := []models.Transaction{
		tx(day(2024, 12, 2), "credit", 5000, "EUR", "Sales"),
		tx(day(2024, 12, 3), "debit", 4000, "EUR", "Supplier"),
	}
	engine := NewEngine(bank, nil, nil, DefaultRateTable(), DebtPolicy{}, quietLogger())
	params := sampleParams()
	params.VolumeVolatilityCredit = 0
	params.VolumeVolatilityDebit = 0
	result := engine.Run(params)

	// Forecast still runs to full length on baselines alone
	assert.Equal(t, 90, result.DaysCount)
}

func TestEngineRun_WorstDaySelection(t *testing.T) {
	// Crafted flows: cumulative net-of-debt goes 100, -50, -200, -10, 50;
	// the third day must win even though later days recover
	sales := []models.Invoice{
		{Status: models.InvoiceStatusOpen, DueDate: datePtr(2025, 1, 2), Amount: 100, Currency: "EUR"},
		{Status: models.InvoiceStatusOpen, DueDate: datePtr(2025, 1, 5), Amount: 190, Currency: "EUR"},
		{Status: models.InvoiceStatusOpen, DueDate: datePtr(2025, 1, 6), Amount: 60, Currency: "EUR"},
	}
	purchase := []models.Invoice{
		{Status: models.InvoiceStatusOpen, DueDate: datePtr(2025, 1, 3), Amount: 150, Currency: "EUR"},
		{Status: models.InvoiceStatusOpen, DueDate: datePtr(2025, 1, 4), Amount: 150, Currency: "EUR"},
	}
	engine := NewEngine(nil, sales, purchase, DefaultRateTable(), DebtPolicy{}, quietLogger())
	result := engine.Run(Params{
		StartDate:       day(2025, 1, 2),
		MaxForecastDate: day(2025, 1, 6),
	})

	require.Equal(t, 5, result.DaysCount)
	expected := []float64{100, -50, -200, -10, 50}
	for i, rec := range result.Records {
		assert.InDelta(t, expected[i], rec.NetOfDebtEUR, 1e-9, "day %d", i)
	}
	assert.Equal(t, day(2025, 1, 4), result.WorstDay.Date)
	assert.InDelta(t, -200.0, result.WorstDay.NetOfDebtEUR, 1e-9)
	assert.Equal(t, RiskZones{Safe: 2, Warning: 3}, result.RiskZones)
	assert.Len(t, result.NegativeDays, 3)
}

func TestEngineRun_RecurringOnFirstOfMonth(t *testing.T) {
	policy := DebtPolicy{MonthlyInterest: 78000}
	engine := NewEngine(nil, nil, nil, DefaultRateTable(), policy, quietLogger())
	result := engine.Run(Params{
		StartDate:       day(2025, 1, 1),
		MaxForecastDate: day(2025, 3, 31),
	})

	require.Equal(t, 90, result.DaysCount)
	// With no history the recurring outflow is exactly the contractual
	// interest, landing on the 1st of each month only
	assert.InDelta(t, 78000.0, result.Records[0].OutflowEUR, 0.01)  // Jan 1
	assert.InDelta(t, 0.0, result.Records[1].OutflowEUR, 0.01)      // Jan 2
	assert.InDelta(t, 78000.0, result.Records[31].OutflowEUR, 0.01) // Feb 1
	assert.InDelta(t, 78000.0, result.Records[59].OutflowEUR, 0.01) // Mar 1
}

func TestEngineRun_ScheduledItemLandsOnExpectedDate(t *testing.T) {
	sales := []models.Invoice{
		{Status: models.InvoiceStatusOpen, DueDate: datePtr(2025, 1, 10), Amount: 5000, Currency: "EUR"},
	}
	engine := NewEngine(nil, sales, nil, DefaultRateTable(), DebtPolicy{}, quietLogger())
	result := engine.Run(Params{
		StartDate:       day(2025, 1, 1),
		MaxForecastDate: day(2025, 3, 31),
		DSOMean:         5,
	})

	// Due 2025-01-10 plus 5 days DSO settles on 2025-01-15 (day index 14)
	for i, rec := range result.Records {
		if i == 14 {
			assert.InDelta(t, 5000.0, rec.InflowEUR, 0.01)
		} else {
			assert.InDelta(t, 0.0, rec.InflowEUR, 0.01, "day %d", i)
		}
	}
}

func TestEngineRun_InflationRamp(t *testing.T) {
	engine := NewEngine(nil, nil, nil, DefaultRateTable(), DebtPolicy{}, quietLogger())
	result := engine.Run(Params{
		StartDate:       day(2025, 1, 2),
		MaxForecastDate: day(2025, 3, 31),
		AvgDailyDebit:   1000,
		InflationRate:   0.0365,
	})

	// Linear ramp from day 0: day 10 carries 1 + 0.0365*10/365 = 1.001
	assert.InDelta(t, 1000.0, result.Records[0].OutflowEUR, 0.01)
	assert.InDelta(t, 1001.0, result.Records[10].OutflowEUR, 0.01)
}

func TestEngineRun_VolatilityFloor(t *testing.T) {
	// An absurdly large coefficient cannot shrink a leg below 50%
	engine := NewEngine(nil, nil, nil, DefaultRateTable(), DebtPolicy{}, quietLogger())
	result := engine.Run(Params{
		StartDate:              day(2025, 1, 2),
		MaxForecastDate:        day(2025, 3, 31),
		AvgDailyCredit:         1000,
		VolumeVolatilityCredit: 1000,
	})

	for _, rec := range result.Records {
		assert.GreaterOrEqual(t, rec.InflowEUR, 500.0-0.01, "on %s", rec.Date)
	}
}

func TestEngineRun_NaNInputsDegrade(t *testing.T) {
	engine := NewEngine(nil, nil, nil, DefaultRateTable(), DebtPolicy{}, quietLogger())
	result := engine.Run(Params{
		StartDate:              day(2025, 1, 2),
		MaxForecastDate:        day(2025, 1, 11),
		AvgDailyCredit:         1000,
		AvgDailyDebit:          800,
		DSOMean:                math.NaN(),
		InflationRate:          math.NaN(),
		VolumeVolatilityCredit: math.NaN(),
		VolumeVolatilityDebit:  math.NaN(),
	})

	require.Equal(t, 10, result.DaysCount)
	for _, rec := range result.Records {
		assert.False(t, math.IsNaN(rec.CumulativeEUR))
		assert.Equal(t, 200.00, rec.NetFlowEUR)
	}
}
