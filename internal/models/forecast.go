package models

import "time"

// ForecastRun is the persisted summary of one forecast invocation
type ForecastRun struct {
	ID              string    `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	DaysCount       int       `json:"days_count"`
	InitialBalance  float64   `json:"initial_balance"`
	FinalBalance    float64   `json:"final_balance"`
	FinalBalanceNet float64   `json:"final_balance_net"`
	SafeDays        int       `json:"safe_days"`
	WarningDays     int       `json:"warning_days"`
	CriticalDays    int       `json:"critical_days"`
	WorstDayDate    time.Time `json:"worst_day_date"`
	WorstDayNet     float64   `json:"worst_day_net"`
	Reconciled      bool      `json:"reconciled"`
}
