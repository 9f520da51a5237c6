package forecast

import (
	"math"
	"math/rand"
	"time"

	"github.com/avelot/cashflow-service/internal/models"
	"github.com/sirupsen/logrus"
)

// Risk zones for a forecast day, classified on the net-of-debt balance
const (
	RiskSafe     = "Safe"
	RiskWarning  = "Warning"
	RiskCritical = "Critical"
)

const (
	// Maximum projection horizon in days
	horizonDays = 90
	// Net-of-debt balance below this is Critical
	criticalThreshold = -100000.0
	// Tolerance for cross-checking independently computed EUR figures
	consistencyTolerance = 0.01
	// Base offset for the per-day noise seed
	noiseSeedBase = 100
	// Volatility coefficients are damped before feeding the normal draw
	volatilityDamping = 0.3
	// A volume multiplier never shrinks a leg by more than 50%
	minVolumeAdjustment = 0.5
)

// DebtPolicy carries the business-given debt constants. Injected per run so
// concurrent runs with different assumptions do not interfere.
type DebtPolicy struct {
	Principal       float64 `json:"principal"`
	AnnualRate      float64 `json:"annual_rate"`
	MonthlyInterest float64 `json:"monthly_interest"`
}

// Params are the precomputed historical aggregates and policy inputs for
// one forecast run.
type Params struct {
	StartDate              time.Time
	MaxForecastDate        time.Time
	DSOMean                float64
	DPOMean                float64
	AvgDailyCredit         float64
	AvgDailyDebit          float64
	StdDailyCredit         float64
	StdDailyDebit          float64
	WeeklyCreditPattern    map[string]float64
	WeeklyDebitPattern     map[string]float64
	InflationRate          float64
	VolumeVolatilityCredit float64
	VolumeVolatilityDebit  float64
}

// DailyRecord is one emitted forecast day. All monetary fields are rounded
// to 2 decimals; the loop's internal accumulators keep full precision.
type DailyRecord struct {
	Date          time.Time      `json:"date"`
	Weekday       string         `json:"weekday"`
	Inflow        CurrencyAmount `json:"inflow"`
	Outflow       CurrencyAmount `json:"outflow"`
	NetFlow       CurrencyAmount `json:"net_flow"`
	InflowEUR     float64        `json:"inflow_eur"`
	OutflowEUR    float64        `json:"outflow_eur"`
	NetFlowEUR    float64        `json:"net_flow_eur"`
	Cumulative    CurrencyAmount `json:"cumulative"`
	CumulativeEUR float64        `json:"cumulative_eur"`
	NetOfDebtEUR  float64        `json:"net_of_debt_eur"`
	RiskLevel     string         `json:"risk_level"`
}

// RiskZones tallies days per risk classification. The three counts always
// sum to the number of days processed.
type RiskZones struct {
	Safe     int `json:"safe"`
	Warning  int `json:"warning"`
	Critical int `json:"critical"`
}

// WorstDay is the day with the minimum net-of-debt balance.
type WorstDay struct {
	Date         time.Time `json:"date"`
	NetOfDebtEUR float64   `json:"net_of_debt_eur"`
}

// Result is the output of one forecast run.
type Result struct {
	Records           []DailyRecord  `json:"records"`
	StartDate         time.Time      `json:"start_date"`
	EndDate           time.Time      `json:"end_date"`
	DaysCount         int            `json:"days_count"`
	InitialBalance    float64        `json:"initial_balance"`
	InitialBalanceNet float64        `json:"initial_balance_net"`
	InitialByCurrency CurrencyAmount `json:"initial_by_currency"`
	FinalBalance      float64        `json:"final_balance"`
	FinalBalanceNet   float64        `json:"final_balance_net"`
	NegativeDays      []time.Time    `json:"negative_days"`
	RiskZones         RiskZones      `json:"risk_zones"`
	WorstDay          WorstDay       `json:"worst_day"`
	// Reconciled reports whether the post-loop consistency repair had to
	// adjust the final record. Frequent triggering indicates a bug in one
	// of the two net-flow computation paths.
	Reconciled bool `json:"reconciled"`
}

// Engine runs daily cash forecasts over a snapshot of historical
// transactions and open invoices. An Engine is read-only for the duration
// of a run and safe for concurrent runs with the same inputs.
type Engine struct {
	bank     []models.Transaction
	sales    []models.Invoice
	purchase []models.Invoice
	rates    RateTable
	policy   DebtPolicy
	log      *logrus.Logger
}

// NewEngine builds an engine over input snapshots. The rate table is used
// as-is; insane or missing rates degrade to the fallback table per entry.
func NewEngine(bank []models.Transaction, sales, purchase []models.Invoice, rates RateTable, policy DebtPolicy, log *logrus.Logger) *Engine {
	if rates == nil {
		rates = DefaultRateTable()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{bank: bank, sales: sales, purchase: purchase, rates: rates, policy: policy, log: log}
}

// Run produces the day-by-day projection described by params. It never
// panics on degenerate input: an exhausted horizon yields an empty series
// with initial == final balance.
func (e *Engine) Run(params Params) *Result {
	startDate := dateOnly(params.StartDate)
	maxDate := dateOnly(params.MaxForecastDate)

	daysUntilLimit := int(maxDate.Sub(startDate).Hours()/24) + 1
	daysCount := daysUntilLimit
	if daysCount > horizonDays {
		daysCount = horizonDays
	}
	endDate := startDate.AddDate(0, 0, daysCount-1)

	salesOpen := ScheduleOpenItems(e.sales, params.DSOMean, e.rates)
	purchaseOpen := ScheduleOpenItems(e.purchase, params.DPOMean, e.rates)
	initial := ComputeInitialBalance(e.bank, startDate, e.rates)
	avgMonthlyRecurring := ComputeAverageMonthlyRecurring(e.bank, e.rates, e.policy.MonthlyInterest)
	propCredit, propDebit := ComputeCurrencyProportions(e.bank, startDate, e.rates)

	result := &Result{
		Records:           []DailyRecord{},
		StartDate:         startDate,
		EndDate:           endDate,
		InitialBalance:    initial.TotalEUR,
		InitialBalanceNet: initial.TotalEUR - e.policy.Principal,
		InitialByCurrency: initial.ByCurrency,
		NegativeDays:      []time.Time{},
		WorstDay:          WorstDay{Date: startDate, NetOfDebtEUR: initial.TotalEUR - e.policy.Principal},
	}

	if daysCount <= 0 {
		result.FinalBalance = initial.TotalEUR
		result.FinalBalanceNet = result.InitialBalanceNet
		return result
	}

	usdRate := e.rates.Rate("USD")
	jpyRate := e.rates.Rate("JPY")

	// Baseline shares per currency in original units: the EUR-volume share
	// is divided by the rate so that consolidation recovers the full
	// baseline without FX drift.
	splitBaseline := func(base float64, prop CurrencyAmount) CurrencyAmount {
		return CurrencyAmount{
			EUR: base * prop.EUR,
			USD: base * prop.USD / usdRate,
			JPY: base * prop.JPY / jpyRate,
		}
	}

	salesByDay := groupByPaymentDate(salesOpen)
	purchaseByDay := groupByPaymentDate(purchaseOpen)

	cumul := initial.ByCurrency // original units per currency
	cumulTotal := initial.TotalEUR
	sumEmittedNet := 0.0

	for day := 0; day < daysCount; day++ {
		forecastDate := startDate.AddDate(0, 0, day)
		if forecastDate.After(maxDate) {
			break
		}
		weekday := forecastDate.Weekday().String()

		// 1. Day-of-week baseline, falling back to the overall average
		baseCredit := params.AvgDailyCredit
		if v, ok := params.WeeklyCreditPattern[weekday]; ok {
			baseCredit = v
		}
		baseDebit := params.AvgDailyDebit
		if v, ok := params.WeeklyDebitPattern[weekday]; ok {
			baseDebit = v
		}

		// 2. Open items settling today, split by original currency
		salesDay := e.splitDayItems(salesByDay[forecastDate], usdRate, jpyRate)
		purchaseDay := e.splitDayItems(purchaseByDay[forecastDate], usdRate, jpyRate)

		// 3-5. Adjustment factors: linear inflation ramp and per-leg volume
		// noise from a fresh generator seeded on the day index, so repeated
		// runs are bit-identical regardless of iteration order.
		inflationAdj := 1.0
		if !math.IsNaN(params.InflationRate) {
			inflationAdj = 1 + params.InflationRate*float64(day)/365
		}
		rng := rand.New(rand.NewSource(noiseSeedBase + int64(day)))
		volumeAdjCredit := volumeAdjustment(rng, params.VolumeVolatilityCredit)
		volumeAdjDebit := volumeAdjustment(rng, params.VolumeVolatilityDebit)

		// 6. Combine baselines, scheduled items and recurring payments
		credit := splitBaseline(baseCredit, propCredit).Add(salesDay).Scale(inflationAdj * volumeAdjCredit)

		debitBase := splitBaseline(baseDebit, propDebit).Add(purchaseDay)
		if forecastDate.Day() == 1 && !math.IsNaN(avgMonthlyRecurring) {
			debitBase.EUR += avgMonthlyRecurring
		}
		debit := debitBase.Scale(inflationAdj * volumeAdjDebit)

		// 7. Consolidate to EUR two ways; the per-currency-derived value
		// wins when the paths disagree
		creditEUR := credit.ConsolidateEUR(e.rates)
		debitEUR := debit.ConsolidateEUR(e.rates)
		netEUR := creditEUR - debitEUR

		net := credit.Sub(debit)
		netFromCurrencies := net.ConsolidateEUR(e.rates)
		if math.Abs(netEUR-netFromCurrencies) > consistencyTolerance {
			e.log.Warnf("net flow paths diverged on %s: %.4f vs %.4f", forecastDate.Format("2006-01-02"), netEUR, netFromCurrencies)
			netEUR = netFromCurrencies
		}

		// 8. Running balances: per-currency in original units, consolidated
		// from the daily net to avoid compounding rounding
		cumul = cumul.Add(net)
		cumulTotal += netEUR

		// 9. Risk classification on the net-of-debt balance
		netOfDebt := cumulTotal - e.policy.Principal
		var riskLevel string
		switch {
		case netOfDebt < criticalThreshold:
			riskLevel = RiskCritical
			result.RiskZones.Critical++
		case netOfDebt < 0:
			riskLevel = RiskWarning
			result.RiskZones.Warning++
		default:
			riskLevel = RiskSafe
			result.RiskZones.Safe++
		}
		if netOfDebt < 0 {
			result.NegativeDays = append(result.NegativeDays, forecastDate)
		}

		// 10. Emit with presentation rounding
		record := DailyRecord{
			Date:          forecastDate,
			Weekday:       weekday,
			Inflow:        credit.Round(),
			Outflow:       debit.Round(),
			NetFlow:       net.Round(),
			InflowEUR:     round2(creditEUR),
			OutflowEUR:    round2(debitEUR),
			NetFlowEUR:    round2(netEUR),
			Cumulative:    cumul.Round(),
			CumulativeEUR: round2(cumulTotal),
			NetOfDebtEUR:  round2(netOfDebt),
			RiskLevel:     riskLevel,
		}
		result.Records = append(result.Records, record)
		sumEmittedNet += record.NetFlowEUR
	}

	result.DaysCount = len(result.Records)
	cumulTotal = e.reconcile(result, cumulTotal, cumul, sumEmittedNet, initial.TotalEUR, usdRate, jpyRate)

	result.FinalBalance = cumulTotal
	result.FinalBalanceNet = cumulTotal - e.policy.Principal

	if len(result.Records) > 0 {
		// First minimum wins on ties; seed from the first record
		result.WorstDay = WorstDay{Date: result.Records[0].Date, NetOfDebtEUR: result.Records[0].NetOfDebtEUR}
		for _, rec := range result.Records[1:] {
			if rec.NetOfDebtEUR < result.WorstDay.NetOfDebtEUR {
				result.WorstDay = WorstDay{Date: rec.Date, NetOfDebtEUR: rec.NetOfDebtEUR}
			}
		}
	}

	return result
}

// reconcile is the invariant-repair step run once after the loop. The
// balance must satisfy final == initial + sum(daily net flow); when the two
// independently accumulated paths drift past tolerance the arithmetically
// derived value wins and the last record is rescaled to match.
func (e *Engine) reconcile(result *Result, cumulTotal float64, cumul CurrencyAmount, sumEmittedNet, initialTotal, usdRate, jpyRate float64) float64 {
	if len(result.Records) == 0 {
		return cumulTotal
	}

	// Currency consistency: the consolidated balance must equal the
	// FX-weighted per-currency balances
	fromCurrencies := cumul.EUR + cumul.USD*usdRate + cumul.JPY*jpyRate
	if math.Abs(fromCurrencies-cumulTotal) > consistencyTolerance {
		e.log.Warnf("consolidated balance realigned to per-currency balances: %.4f -> %.4f", cumulTotal, fromCurrencies)
		cumulTotal = fromCurrencies
	}

	// Balance conservation over the emitted series
	calculatedFinal := initialTotal + sumEmittedNet
	if math.Abs(calculatedFinal-cumulTotal) > consistencyTolerance {
		e.log.Warnf("balance conservation repaired: %.4f -> %.4f", cumulTotal, calculatedFinal)
		cumulTotal = calculatedFinal
		last := &result.Records[len(result.Records)-1]
		last.CumulativeEUR = round2(cumulTotal)
		lastFromCurrencies := last.Cumulative.EUR + last.Cumulative.USD*usdRate + last.Cumulative.JPY*jpyRate
		if math.Abs(lastFromCurrencies) > consistencyTolerance {
			ratio := cumulTotal / lastFromCurrencies
			last.Cumulative = last.Cumulative.Scale(ratio).Round()
		}
		result.Reconciled = true
	}
	return cumulTotal
}

// splitDayItems sums the scheduled items of one day per original currency
// and cross-checks the split against the stored EUR totals. When the two
// disagree past tolerance (rates moved between scheduling and now) the
// stored EUR totals win and the split is rebuilt from them.
func (e *Engine) splitDayItems(items []ScheduledItem, usdRate, jpyRate float64) CurrencyAmount {
	if len(items) == 0 {
		return CurrencyAmount{}
	}
	var split CurrencyAmount
	var storedEUR float64
	var splitEURStored CurrencyAmount // per-currency sums of stored EUR totals
	for _, item := range items {
		storedEUR += item.AmountEUR
		switch item.Currency {
		case "USD":
			split.USD += item.Amount
			splitEURStored.USD += item.AmountEUR
		case "JPY":
			split.JPY += item.Amount
			splitEURStored.JPY += item.AmountEUR
		default:
			split.EUR += item.Amount
			splitEURStored.EUR += item.AmountEUR
		}
	}
	consolidated := split.EUR + split.USD*usdRate + split.JPY*jpyRate
	if math.Abs(consolidated-storedEUR) > consistencyTolerance {
		split.EUR = splitEURStored.EUR
		split.USD = splitEURStored.USD / usdRate
		split.JPY = splitEURStored.JPY / jpyRate
	}
	return split
}

func volumeAdjustment(rng *rand.Rand, coefficient float64) float64 {
	draw := rng.NormFloat64()
	if math.IsNaN(coefficient) {
		coefficient = 0.0
	}
	adj := 1 + draw*coefficient*volatilityDamping
	if adj < minVolumeAdjustment {
		return minVolumeAdjustment
	}
	return adj
}

func groupByPaymentDate(items []ScheduledItem) map[time.Time][]ScheduledItem {
	byDay := make(map[time.Time][]ScheduledItem, len(items))
	for _, item := range items {
		byDay[item.PaymentDate] = append(byDay[item.PaymentDate], item)
	}
	return byDay
}
