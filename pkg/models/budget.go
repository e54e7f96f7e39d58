package models

import "time"

// BudgetWindow defines the calendar window for the spend ceiling.
type BudgetWindow string

const (
	BudgetDaily   BudgetWindow = "daily"
	BudgetMonthly BudgetWindow = "monthly"
)

// BudgetStatus shows current spend against the configured ceiling.
type BudgetStatus struct {
	Window       BudgetWindow `json:"window"`
	WindowStart  time.Time    `json:"window_start"`
	LimitUSD     float64      `json:"limit_usd"`
	SpentUSD     float64      `json:"spent_usd"`
	RemainingUSD float64      `json:"remaining_usd"`
}
